package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/junsooki/ppmview/internal/decoder"
	"github.com/junsooki/ppmview/internal/peer"
	"github.com/junsooki/ppmview/internal/render"
)

// StdinInput selects standard input as the frame source.
const StdinInput = "-"

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	Input        string
	SignalingURL string
	ViewerID     string
	SenderID     string
	ICEServers   []string

	Width      int
	Height     int
	Title      string
	Color      render.ColorMode
	Background color.RGBA

	MaxFrameBytes int64
	FPSInterval   time.Duration
	Debug         bool
}

// ParseViewerFlags parses the viewer's command line. args includes the program
// name, as in os.Args.
func ParseViewerFlags(args []string) (*ViewerConfig, error) {
	fs := flag.NewFlagSet(programName(args, "ppmview"), flag.ContinueOnError)
	return parseViewerFlags(fs, tail(args))
}

func parseViewerFlags(fs *flag.FlagSet, args []string) (*ViewerConfig, error) {
	cfg := &ViewerConfig{}
	var colorMode, background, iceServers string
	fs.StringVar(&cfg.Input, "input", StdinInput, "Frame source: - for stdin, a file or FIFO path, or a ws:// URL")
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080", "Signaling server WebSocket URL (with -sender)")
	fs.StringVar(&cfg.ViewerID, "id", "", "Viewer ID (auto-generated if empty)")
	fs.StringVar(&cfg.SenderID, "sender", "", "Sender ID to receive frames from over WebRTC")
	fs.StringVar(&iceServers, "ice", strings.Join(peer.DefaultICEServers, ","), "Comma separated STUN/TURN URLs")
	fs.IntVar(&cfg.Width, "width", 200, "Initial window width")
	fs.IntVar(&cfg.Height, "height", 100, "Initial window height")
	fs.StringVar(&cfg.Title, "title", "ppmview", "Window title")
	fs.StringVar(&colorMode, "color", "rgb", "Pixel interpretation: rgb, or gray to replicate the first sample")
	fs.StringVar(&background, "background", "000000", "Fill color (RRGGBB) for window area outside the frame")
	fs.Int64Var(&cfg.MaxFrameBytes, "max-frame-bytes", decoder.DefaultMaxFrameBytes, "Largest accepted frame payload")
	fs.DurationVar(&cfg.FPSInterval, "fps-interval", 10*time.Second, "How often to log the render rate (0 disables)")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.Color, err = render.ParseColorMode(colorMode); err != nil {
		return nil, err
	}
	if cfg.Background, err = render.ParseBackground(background); err != nil {
		return nil, err
	}
	cfg.ICEServers = splitList(iceServers)

	if cfg.ViewerID == "" {
		cfg.ViewerID = fmt.Sprintf("viewer-%s", randomID())
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the viewer cannot run with.
func (c *ViewerConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("window size %dx%d must be positive", c.Width, c.Height)
	}
	if c.MaxFrameBytes <= 0 {
		return errors.New("max-frame-bytes must be positive")
	}
	if c.FPSInterval < 0 {
		return errors.New("fps-interval must not be negative")
	}
	if c.SenderID != "" && c.SignalingURL == "" {
		return errors.New("-sender needs -signaling")
	}
	if c.Input == "" {
		return errors.New("input must not be empty")
	}
	return nil
}

// SenderConfig holds configuration for the sender binary.
type SenderConfig struct {
	SignalingURL  string
	SenderID      string
	ICEServers    []string
	MaxFrameBytes int64
	Debug         bool
}

// ParseSenderFlags parses the sender's command line. args includes the program
// name, as in os.Args.
func ParseSenderFlags(args []string) (*SenderConfig, error) {
	fs := flag.NewFlagSet(programName(args, "ppmsend"), flag.ContinueOnError)
	return parseSenderFlags(fs, tail(args))
}

func parseSenderFlags(fs *flag.FlagSet, args []string) (*SenderConfig, error) {
	cfg := &SenderConfig{}
	var iceServers string
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080", "Signaling server WebSocket URL")
	fs.StringVar(&cfg.SenderID, "id", "", "Sender ID (auto-generated if empty)")
	fs.StringVar(&iceServers, "ice", strings.Join(peer.DefaultICEServers, ","), "Comma separated STUN/TURN URLs")
	fs.Int64Var(&cfg.MaxFrameBytes, "max-frame-bytes", decoder.DefaultMaxFrameBytes, "Largest accepted frame payload")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.ICEServers = splitList(iceServers)

	if cfg.SenderID == "" {
		cfg.SenderID = fmt.Sprintf("sender-%s", randomID())
	}
	if cfg.SignalingURL == "" {
		return nil, errors.New("signaling URL must not be empty")
	}
	if cfg.MaxFrameBytes <= 0 {
		return nil, errors.New("max-frame-bytes must be positive")
	}
	return cfg, nil
}

func programName(args []string, fallback string) string {
	if len(args) == 0 {
		return fallback
	}
	return args[0]
}

func tail(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
