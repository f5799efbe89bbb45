package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/junsooki/ppmview/internal/config"
	"github.com/junsooki/ppmview/internal/decoder"
	"github.com/junsooki/ppmview/internal/frame"
	"github.com/junsooki/ppmview/internal/peer"
	"github.com/junsooki/ppmview/internal/redraw"
	"github.com/junsooki/ppmview/internal/relay"
	"github.com/junsooki/ppmview/internal/signaling"
	"github.com/junsooki/ppmview/internal/transport"
)

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("ppmsend"))
}

// session is the connection to the one viewer being served.
type session struct {
	sender *peer.Sender

	mu     sync.Mutex
	writer *transport.DataChannelWriter
}

func (s *session) setWriter(w *transport.DataChannelWriter) {
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()
}

func (s *session) currentWriter() *transport.DataChannelWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	cfg, err := config.ParseSenderFlags(args)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger = golog.NewDebugLogger("ppmsend")
	}
	logger.Infow("ppmsend starting", "id", cfg.SenderID, "signaling", cfg.SignalingURL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shared := frame.NewSharedFrame()
	defer shared.Release()
	notifier := redraw.NewNotifier()
	rel := relay.New(shared, notifier, logger.Named("relay"))

	// Only signaling handlers touch cur, and they run one at a time.
	var cur *session
	dropSession := func() {
		if cur == nil {
			return
		}
		if w := cur.currentWriter(); w != nil {
			rel.ClearSink(w)
		}
		if err := cur.sender.Close(); err != nil {
			logger.Debugw("close viewer connection", "error", err)
		}
		cur = nil
	}

	var sig *signaling.Client
	sig = signaling.NewClient(cfg.SignalingURL, cfg.SenderID, signaling.ClientTypeSender, signaling.Handler{
		OnRegistered: func() {
			logger.Infow("registered with signaling server, share this ID with viewers", "id", cfg.SenderID)
		},
		OnOffer: func(from string, payload json.RawMessage) {
			logger.Infow("received offer", "viewer", from)
			dropSession()

			sess := &session{}
			sender, err := peer.NewSender(sig, from, cfg.ICEServers,
				func(w *transport.DataChannelWriter) {
					sess.setWriter(w)
					rel.SetSink(w)
				},
				func() {
					if w := sess.currentWriter(); w != nil {
						rel.ClearSink(w)
					}
				},
				logger.Named("peer"))
			if err != nil {
				logger.Errorw("create sender peer", "error", err)
				return
			}
			sess.sender = sender
			cur = sess

			if err := sender.HandleOffer(payload); err != nil {
				logger.Errorw("handle offer", "viewer", from, "error", err)
				dropSession()
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if cur == nil || cur.sender.ViewerID() != from {
				return
			}
			if err := cur.sender.HandleICECandidate(payload); err != nil {
				logger.Warnw("handle ICE candidate", "error", err)
			}
		},
		OnPeerLeft: func(peerID string) {
			if cur != nil && cur.sender.ViewerID() == peerID {
				logger.Infow("viewer left", "viewer", peerID)
				dropSession()
			}
		},
		OnError: func(msg string) {
			logger.Warnw("signaling error", "message", msg)
		},
	}, logger.Named("signaling"))

	if err := sig.Connect(ctx); err != nil {
		return err
	}

	dec := decoder.NewStreamDecoder(os.Stdin, shared, notifier, decoder.Options{
		MaxFrameBytes: cfg.MaxFrameBytes,
	}, logger.Named("decoder"))

	inputDone := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(inputDone)
		if err := dec.Run(ctx); err != nil {
			logger.Errorw("decoding stopped", "frames", dec.Frames(), "error", err)
		}
	})
	goutils.PanicCapturingGo(func() {
		if err := rel.Run(ctx); err != nil {
			logger.Errorw("relay stopped", "error", err)
		}
	})

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-inputDone:
		logger.Infow("input finished, shutting down", "frames", dec.Frames(), "relayed", rel.Sent())
	}

	cancel()
	// Close waits for the handler goroutine, so cur is safe to use after it.
	if err := sig.Close(); err != nil {
		logger.Debugw("close signaling", "error", err)
	}
	dropSession()
	return nil
}
