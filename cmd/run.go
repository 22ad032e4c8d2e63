package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/argentwm/argent/internal/comp"
	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/comp/backend/headless"
	"github.com/argentwm/argent/internal/config"
	"github.com/argentwm/argent/internal/logging"
	"github.com/argentwm/argent/internal/script"
	"github.com/argentwm/argent/wire"
	"github.com/spf13/cobra"
)

// Exit statuses, distinguishable by service managers.
const (
	exitBackend  = 1
	exitScript   = 2
	exitListener = 3
	exitConfig   = 4
)

var (
	runBackend string
	runScript  string
	runSocket  string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the compositor",
		RunE: func(cmd *cobra.Command, args []string) error {
			run()
			return nil
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&runBackend, "backend", "", "backend to use (auto, headless, drm)")
	runCmd.Flags().StringVar(&runScript, "script", "", "policy script path")
	runCmd.Flags().StringVar(&runSocket, "socket", "", "wayland socket name")
}

func run() {
	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Logger.Error("bad configuration", "err", err)
		os.Exit(exitConfig)
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}
	if runBackend != "" {
		cfg.Backend = runBackend
	}
	if runScript != "" {
		cfg.Script = runScript
	}
	if runSocket != "" {
		cfg.Socket = runSocket
	}

	be, err := comp.OpenBackend(cfg.Backend, cfg.DRMDevice, headlessOutputs(cfg))
	if err != nil {
		logging.Logger.Error("backend init failed", "err", err)
		os.Exit(exitBackend)
	}

	socketPath := ""
	if cfg.Socket != "" {
		socketPath = wire.PathFor(cfg.Socket)
	} else {
		socketPath, err = wire.NewSocketPath()
		if err != nil {
			logging.Logger.Error("no socket path available", "err", err)
			be.Close()
			os.Exit(exitListener)
		}
	}

	c, err := comp.New(be, socketPath)
	if err != nil {
		logging.Logger.Error("listener setup failed", "err", err)
		be.Close()
		os.Exit(exitListener)
	}

	bridge := script.New(c, script.Options{Privileged: true})
	c.SetBridge(bridge)

	if path := cfg.ScriptPath(); path != "" {
		if err := bridge.Load(path); err != nil {
			logging.Logger.Error("script load failed", "err", err)
			os.Exit(exitScript)
		}
		logging.Logger.Info("policy script loaded", "path", path)
	} else {
		logging.Logger.Info("no policy script; surfaces go to the first enabled output")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		logging.Logger.Error("compositor failed", "err", err)
		if errors.As(err, new(backend.FatalError)) {
			os.Exit(exitBackend)
		}
		os.Exit(exitListener)
	}
}

func headlessOutputs(cfg *config.Config) []headless.OutputConfig {
	outs := make([]headless.OutputConfig, len(cfg.Outputs))
	for i, o := range cfg.Outputs {
		outs[i] = headless.OutputConfig{
			Name:    o.Name,
			Width:   o.Width,
			Height:  o.Height,
			Refresh: o.Refresh,
			Scale:   o.Scale,
			X:       o.X,
			Y:       o.Y,
		}
	}
	return outs
}
