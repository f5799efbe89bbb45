// Package peer sets up the WebRTC connection that carries the frame stream from
// a sender to a viewer.
package peer

import (
	"encoding/json"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
)

// FramesLabel names the DataChannel carrying the P6 byte stream.
const FramesLabel = "frames"

// DefaultICEServers is the default STUN configuration.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

// Signaler relays session descriptions and candidates to the remote peer.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// NewPeerConnection creates a configured PeerConnection. onState, if set, is
// called on every connection state change after it is logged.
func NewPeerConnection(iceURLs []string, logger golog.Logger, onState func(webrtc.PeerConnectionState)) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{}
	if len(iceURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Infow("peer connection state", "state", state.String())
		if onState != nil {
			onState(state)
		}
	})
	return pc, nil
}

// sendCandidates forwards local ICE candidates to target.
func sendCandidates(pc *webrtc.PeerConnection, sig Signaler, target string, logger golog.Logger) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			logger.Warnw("marshal ICE candidate", "error", err)
			return
		}
		if err := sig.SendICECandidate(target, data); err != nil {
			logger.Warnw("send ICE candidate", "error", err)
		}
	})
}

type candidateAdder interface {
	AddICECandidate(candidate webrtc.ICECandidateInit) error
}

// remoteCandidates holds candidates that arrive before the remote description
// is set, which signaling does not order for us.
type remoteCandidates struct {
	mu      sync.Mutex
	pc      candidateAdder
	ready   bool
	pending []webrtc.ICECandidateInit
}

func (q *remoteCandidates) add(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}

	q.mu.Lock()
	if !q.ready {
		q.pending = append(q.pending, candidate)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	return q.pc.AddICECandidate(candidate)
}

// flush marks the remote description as set and applies queued candidates.
func (q *remoteCandidates) flush() error {
	q.mu.Lock()
	q.ready = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	var err error
	for _, c := range pending {
		err = multierr.Append(err, q.pc.AddICECandidate(c))
	}
	return err
}
