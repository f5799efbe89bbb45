package peer

import (
	"encoding/json"

	"github.com/edaniels/golog"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/junsooki/ppmview/internal/transport"
)

// Viewer is the receiving side. It offers the connection and opens the frames
// channel, ordered and reliable, since the byte stream cannot survive a gap.
type Viewer struct {
	pc         *webrtc.PeerConnection
	sig        Signaler
	reader     *transport.DataChannelReader
	candidates *remoteCandidates
	senderID   string
	logger     golog.Logger
}

// NewViewer creates a Viewer peer manager for the given sender.
func NewViewer(sig Signaler, senderID string, iceURLs []string, logger golog.Logger) (*Viewer, error) {
	v := &Viewer{
		sig:      sig,
		reader:   transport.NewDataChannelReader(),
		senderID: senderID,
		logger:   logger,
	}

	pc, err := NewPeerConnection(iceURLs, logger, func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			v.reader.Fail(errors.Errorf("peer connection %s", state))
		}
	})
	if err != nil {
		return nil, err
	}
	v.pc = pc
	v.candidates = &remoteCandidates{pc: pc}

	ordered := true
	dc, err := pc.CreateDataChannel(FramesLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, errors.Wrap(err, "create frames channel")
	}
	dc.OnOpen(func() {
		logger.Infow("frames data channel open", "sender", senderID)
	})
	v.reader.Attach(dc)

	sendCandidates(pc, sig, senderID, logger)
	return v, nil
}

// Reader returns the incoming byte stream.
func (v *Viewer) Reader() transport.StreamReader {
	return v.reader
}

// Abort ends the incoming stream with err.
func (v *Viewer) Abort(err error) {
	v.reader.Fail(err)
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	return v.sig.SendOffer(v.senderID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	if err := v.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	return v.candidates.flush()
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	return v.candidates.add(payload)
}

// Close shuts down the stream and the peer connection.
func (v *Viewer) Close() error {
	return multierr.Combine(v.reader.Close(), v.pc.Close())
}
