package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/radar"
	"github.com/roach88/sidecar/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	Listen string // overrides control_address when set
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a runner from a configuration file",
		Long: `Start every pipeline named in the configuration file, the status
emitter and the HTTP control surface.

The runner stops on SIGINT, SIGTERM or a shutdown request.

Example:
  sidecar run --config ./runner.yaml
  sidecar run --config ./runner.yaml --listen 0.0.0.0:8780 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunner(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to runner configuration (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "control surface address, overrides the configuration")

	return cmd
}

func runRunner(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.ControlAddress = opts.Listen
	}

	app, err := runner.NewApp(cfg, runner.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start runner", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("error closing runner", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Runner %s started with %d pipeline(s).\n", cfg.Name, len(app.Streams()))
	if cfg.ControlAddress != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Control surface on http://%s\n", cfg.ControlAddress)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "runner error", err)
	}
	return nil
}

// loadConfig reads the runner configuration. An unreadable file is a
// command error; a rejected one is a failure.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return nil, WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
}

// loadRadar returns the radar section of the configuration at path, or the
// default radar when path is empty.
func loadRadar(path string) (radar.Config, error) {
	if path == "" {
		return radar.Default(), nil
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return radar.Config{}, err
	}
	return cfg.Radar, nil
}
