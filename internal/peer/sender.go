package peer

import (
	"encoding/json"

	"github.com/edaniels/golog"
	"github.com/pion/webrtc/v4"

	"github.com/junsooki/ppmview/internal/transport"
)

// Sender is the producing side. It answers a viewer's offer and hands out a
// writer once the viewer's frames channel opens.
type Sender struct {
	pc         *webrtc.PeerConnection
	sig        Signaler
	candidates *remoteCandidates
	viewerID   string
	logger     golog.Logger
}

// NewSender creates a Sender peer manager for one viewer. onWriter is called
// from a pion goroutine when the frames channel is ready; onGone when the
// connection fails or closes.
func NewSender(
	sig Signaler,
	viewerID string,
	iceURLs []string,
	onWriter func(w *transport.DataChannelWriter),
	onGone func(),
	logger golog.Logger,
) (*Sender, error) {
	pc, err := NewPeerConnection(iceURLs, logger, func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if onGone != nil {
				onGone()
			}
		}
	})
	if err != nil {
		return nil, err
	}

	s := &Sender{
		pc:         pc,
		sig:        sig,
		candidates: &remoteCandidates{pc: pc},
		viewerID:   viewerID,
		logger:     logger,
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		logger.Infow("data channel received", "label", dc.Label(), "viewer", viewerID)
		if dc.Label() != FramesLabel {
			return
		}
		dc.OnOpen(func() {
			logger.Infow("frames data channel open", "viewer", viewerID)
			onWriter(transport.NewDataChannelWriter(dc))
		})
	})

	sendCandidates(pc, sig, viewerID, logger)
	return s, nil
}

// ViewerID returns the id of the viewer this sender serves.
func (s *Sender) ViewerID() string {
	return s.viewerID
}

// HandleOffer processes the viewer's offer and replies with an answer.
func (s *Sender) HandleOffer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	if err := s.candidates.flush(); err != nil {
		s.logger.Warnw("apply early ICE candidates", "error", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}

	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	return s.sig.SendAnswer(s.viewerID, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (s *Sender) HandleICECandidate(payload json.RawMessage) error {
	return s.candidates.add(payload)
}

// Close shuts down the peer connection.
func (s *Sender) Close() error {
	return s.pc.Close()
}
