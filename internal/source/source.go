// Package source opens the byte stream the viewer decodes frames from.
package source

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/junsooki/ppmview/internal/config"
	"github.com/junsooki/ppmview/internal/peer"
	"github.com/junsooki/ppmview/internal/signaling"
	"github.com/junsooki/ppmview/internal/transport"
)

// Open returns the frame stream selected by cfg. A sender ID takes precedence
// over Input and receives frames over WebRTC.
func Open(ctx context.Context, cfg *config.ViewerConfig, logger golog.Logger) (io.ReadCloser, error) {
	if cfg.SenderID != "" {
		return openPeer(ctx, cfg, logger)
	}

	switch input := cfg.Input; {
	case input == "" || input == config.StdinInput:
		logger.Infow("reading frames", "source", "stdin")
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(input, "ws://") || strings.HasPrefix(input, "wss://"):
		r, err := transport.DialWebSocket(ctx, input)
		if err != nil {
			return nil, err
		}
		logger.Infow("reading frames", "source", input)
		return r, nil
	default:
		f, err := os.Open(input)
		if err != nil {
			return nil, errors.Wrap(err, "open input")
		}
		logger.Infow("reading frames", "source", input)
		return f, nil
	}
}

type peerStream struct {
	viewer *peer.Viewer
	sig    *signaling.Client
}

func (s *peerStream) Read(p []byte) (int, error) {
	return s.viewer.Reader().Read(p)
}

func (s *peerStream) Close() error {
	return multierr.Combine(s.viewer.Close(), s.sig.Close())
}

func openPeer(ctx context.Context, cfg *config.ViewerConfig, logger golog.Logger) (io.ReadCloser, error) {
	var v *peer.Viewer
	sig := signaling.NewClient(cfg.SignalingURL, cfg.ViewerID, signaling.ClientTypeViewer, signaling.Handler{
		OnRegistered: func() {
			logger.Infow("registered with signaling server", "id", cfg.ViewerID)
			if err := v.Connect(); err != nil {
				logger.Errorw("send offer", "error", err)
				v.Abort(errors.Wrap(err, "send offer"))
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if from != cfg.SenderID {
				return
			}
			if err := v.HandleAnswer(payload); err != nil {
				logger.Errorw("handle answer", "error", err)
				v.Abort(errors.Wrap(err, "handle answer"))
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if from != cfg.SenderID {
				return
			}
			if err := v.HandleICECandidate(payload); err != nil {
				logger.Warnw("handle ICE candidate", "error", err)
			}
		},
		OnPeerLeft: func(peerID string) {
			if peerID == cfg.SenderID {
				logger.Infow("sender left", "sender", peerID)
				v.Abort(io.EOF)
			}
		},
		OnError: func(msg string) {
			logger.Warnw("signaling error", "message", msg)
		},
	}, logger)

	v, err := peer.NewViewer(sig, cfg.SenderID, cfg.ICEServers, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create viewer peer")
	}
	if err := sig.Connect(ctx); err != nil {
		return nil, multierr.Combine(err, v.Close())
	}
	logger.Infow("reading frames", "source", "webrtc", "sender", cfg.SenderID)
	return &peerStream{viewer: v, sig: sig}, nil
}
