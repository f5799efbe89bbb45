package peer

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/junsooki/ppmview/internal/transport"
)

type sentMessage struct {
	kind    string
	target  string
	payload json.RawMessage
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSignaler) record(kind, target string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{kind, target, payload})
	return nil
}

func (f *fakeSignaler) SendOffer(target string, payload json.RawMessage) error {
	return f.record("offer", target, payload)
}

func (f *fakeSignaler) SendAnswer(target string, payload json.RawMessage) error {
	return f.record("answer", target, payload)
}

func (f *fakeSignaler) SendICECandidate(target string, payload json.RawMessage) error {
	return f.record("candidate", target, payload)
}

func (f *fakeSignaler) first(kind string) (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if m.kind == kind {
			return m, true
		}
	}
	return sentMessage{}, false
}

func TestOfferAnswerExchange(t *testing.T) {
	logger := golog.NewTestLogger(t)

	viewerSig := &fakeSignaler{}
	v, err := NewViewer(viewerSig, "sender-1", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer v.Close()
	test.That(t, v.Connect(), test.ShouldBeNil)

	offer, ok := viewerSig.first("offer")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, offer.target, test.ShouldEqual, "sender-1")
	var offerDesc webrtc.SessionDescription
	test.That(t, json.Unmarshal(offer.payload, &offerDesc), test.ShouldBeNil)
	test.That(t, offerDesc.Type, test.ShouldEqual, webrtc.SDPTypeOffer)
	test.That(t, strings.Contains(offerDesc.SDP, "webrtc-datachannel"), test.ShouldBeTrue)

	senderSig := &fakeSignaler{}
	s, err := NewSender(senderSig, "viewer-1", nil, func(*transport.DataChannelWriter) {}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	test.That(t, s.ViewerID(), test.ShouldEqual, "viewer-1")
	test.That(t, s.HandleOffer(offer.payload), test.ShouldBeNil)

	answer, ok := senderSig.first("answer")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, answer.target, test.ShouldEqual, "viewer-1")
	test.That(t, v.HandleAnswer(answer.payload), test.ShouldBeNil)
}

func TestHandleBadPayloads(t *testing.T) {
	logger := golog.NewTestLogger(t)
	v, err := NewViewer(&fakeSignaler{}, "sender-1", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer v.Close()

	test.That(t, v.HandleAnswer(json.RawMessage(`not json`)), test.ShouldNotBeNil)
	test.That(t, v.HandleICECandidate(json.RawMessage(`[`)), test.ShouldNotBeNil)

	s, err := NewSender(&fakeSignaler{}, "viewer-1", nil, func(*transport.DataChannelWriter) {}, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	test.That(t, s.HandleOffer(json.RawMessage(`{}`)), test.ShouldNotBeNil)
}

type fakeAdder struct {
	added []string
	err   error
}

func (f *fakeAdder) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.added = append(f.added, c.Candidate)
	return f.err
}

func candidateJSON(t *testing.T, c string) json.RawMessage {
	data, err := json.Marshal(webrtc.ICECandidateInit{Candidate: c})
	test.That(t, err, test.ShouldBeNil)
	return data
}

func TestRemoteCandidatesQueueUntilFlush(t *testing.T) {
	adder := &fakeAdder{}
	q := &remoteCandidates{pc: adder}

	test.That(t, q.add(candidateJSON(t, "a")), test.ShouldBeNil)
	test.That(t, q.add(candidateJSON(t, "b")), test.ShouldBeNil)
	test.That(t, adder.added, test.ShouldHaveLength, 0)

	test.That(t, q.flush(), test.ShouldBeNil)
	test.That(t, adder.added, test.ShouldResemble, []string{"a", "b"})

	test.That(t, q.add(candidateJSON(t, "c")), test.ShouldBeNil)
	test.That(t, adder.added, test.ShouldResemble, []string{"a", "b", "c"})
}

func TestRemoteCandidatesFlushErrors(t *testing.T) {
	errBad := errors.New("bad candidate")
	adder := &fakeAdder{err: errBad}
	q := &remoteCandidates{pc: adder}

	test.That(t, q.add(candidateJSON(t, "a")), test.ShouldBeNil)
	test.That(t, q.add(candidateJSON(t, "b")), test.ShouldBeNil)
	err := q.flush()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, errBad), test.ShouldBeTrue)
	test.That(t, adder.added, test.ShouldHaveLength, 2)
}
