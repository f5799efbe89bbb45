package main

import (
	"context"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/junsooki/ppmview/internal/config"
	"github.com/junsooki/ppmview/internal/decoder"
	"github.com/junsooki/ppmview/internal/display"
	"github.com/junsooki/ppmview/internal/frame"
	"github.com/junsooki/ppmview/internal/redraw"
	"github.com/junsooki/ppmview/internal/render"
	"github.com/junsooki/ppmview/internal/source"
)

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("ppmview"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	cfg, err := config.ParseViewerFlags(args)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger = golog.NewDebugLogger("ppmview")
	}
	logger.Infow("ppmview starting",
		"id", cfg.ViewerID,
		"input", cfg.Input,
		"sender", cfg.SenderID,
		"size", []int{cfg.Width, cfg.Height},
		"color", cfg.Color)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in, err := source.Open(ctx, cfg, logger.Named("source"))
	if err != nil {
		return err
	}

	shared := frame.NewSharedFrame()
	defer shared.Release()
	notifier := redraw.NewNotifier()
	disp := display.NewEbitenDisplay(cfg.Width, cfg.Height, cfg.Title, notifier.Notify)

	dec := decoder.NewStreamDecoder(in, shared, notifier, decoder.Options{
		MaxFrameBytes: cfg.MaxFrameBytes,
	}, logger.Named("decoder"))
	renderer := render.NewRenderer(shared, disp, notifier, render.Options{
		Color:       cfg.Color,
		Background:  cfg.Background,
		FPSInterval: cfg.FPSInterval,
	}, logger.Named("render"))

	// The window keeps showing the last frame after the input ends.
	goutils.PanicCapturingGo(func() {
		if err := dec.Run(ctx); err != nil {
			logger.Errorw("decoding stopped", "frames", dec.Frames(), "error", err)
			return
		}
		logger.Infow("input finished", "frames", dec.Frames())
	})
	goutils.PanicCapturingGo(func() {
		if err := renderer.Run(ctx); err != nil {
			logger.Errorw("rendering stopped", "error", err)
		}
	})
	goutils.PanicCapturingGo(func() {
		<-ctx.Done()
		disp.Close()
	})

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	runErr := disp.Run()
	cancel()
	if err := goutils.TryClose(context.Background(), in); err != nil {
		logger.Debugw("close frame source", "error", err)
	}
	return runErr
}
