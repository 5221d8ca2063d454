package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apiforge-ai/apiforge/internal/cmd"
	"github.com/apiforge-ai/apiforge/internal/config"
	"github.com/apiforge-ai/apiforge/internal/daemon"
	"github.com/apiforge-ai/apiforge/internal/flags"
	"github.com/apiforge-ai/apiforge/internal/store"
)

// DaemonCmd should be used to represent the 'daemon' command.
type DaemonCmd struct {
	*cmd.BaseCmd
	Dev       bool
	Addr      string
	cfgLoader config.Loader
}

// NewDaemonCmd creates a newly configured (Cobra) command.
func NewDaemonCmd(baseCmd *cmd.BaseCmd) (*cobra.Command, error) {
	c := &DaemonCmd{
		BaseCmd:   baseCmd,
		cfgLoader: &config.DefaultLoader{},
	}

	cobraCommand := &cobra.Command{
		Use:   "daemon [--dev] [--addr]",
		Short: "Launches an `apiforge` daemon instance",
		Long:  "Launches an `apiforge` daemon instance, which serves deployed tool servers via HTTP API",
		RunE:  c.run,
	}

	cobraCommand.Flags().BoolVar(
		&c.Dev,
		"dev",
		false,
		"Run the daemon in development-focused mode (in-memory store, localhost bind)",
	)

	cobraCommand.Flags().StringVar(
		&c.Addr,
		"addr",
		"",
		"Address for the daemon to bind (overrides the configured address)",
	)

	cobraCommand.MarkFlagsMutuallyExclusive("dev", "addr")

	return cobraCommand, nil
}

// run is configured (via NewDaemonCmd) to be called by the Cobra framework
// when the command is executed.
func (c *DaemonCmd) run(_ *cobra.Command, _ []string) error {
	logger := c.Logger()

	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	addr := resolveAddr(cfg, strings.TrimSpace(c.Addr), c.Dev)

	st, err := buildStore(cfg, c.Dev)
	if err != nil {
		return err
	}

	deps, err := daemon.NewDependencies(logger, st, addr)
	if err != nil {
		return fmt.Errorf("error configuring apiforge daemon dependencies: %w", err)
	}
	d, err := daemon.NewDaemon(deps, daemonOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create apiforge daemon instance: %w", err)
	}

	// Create the signal handling context for the application.
	daemonCtx, daemonCtxCancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer daemonCtxCancel()

	runErr := make(chan error, 1)
	go func() {
		if err := d.StartAndManage(daemonCtx); err != nil && !errors.Is(err, context.Canceled) {
			runErr <- err
		}
		close(runErr)
	}()

	if c.Dev {
		banner := fmt.Sprintf("apiforge daemon running in 'dev' mode.\n\n"+
			"  Local API:\thttp://%s/api/v1\n"+
			"  OpenAPI UI:\thttp://%s/docs\n"+
			"  Config file:\t%s\n",
			addr, addr, flags.ConfigFile)

		if flags.LogPath != "" {
			banner += fmt.Sprintf("  Log file:\t%s => (%s)\n", flags.LogPath, flags.LogLevel)
		}

		banner += "\nPress Ctrl+C to stop.\n\n"
		fmt.Print(banner)
	}

	select {
	case <-daemonCtx.Done():
		logger.Info("Shutting down daemon")
		err := <-runErr // Wait for cleanup and deferred logging.
		return err      // Graceful Ctrl+C / SIGTERM.
	case err := <-runErr:
		return err
	}
}

// resolveAddr picks the bind address: flag wins, then config, then the
// default; dev mode forces localhost.
func resolveAddr(cfg *config.Config, flagAddr string, dev bool) string {
	if dev {
		return "localhost:8090"
	}
	if flagAddr != "" {
		return flagAddr
	}
	if cfg.API != nil && cfg.API.Addr != nil && strings.TrimSpace(*cfg.API.Addr) != "" {
		return strings.TrimSpace(*cfg.API.Addr)
	}
	return "0.0.0.0:8090"
}

// buildStore selects the persistence backend: dev mode and configs without a
// data dir run in-memory, otherwise records live under the configured dir.
func buildStore(cfg *config.Config, dev bool) (store.Store, error) {
	if dev || cfg.Store == nil || cfg.Store.DataDir == nil || strings.TrimSpace(*cfg.Store.DataDir) == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewFileStore(strings.TrimSpace(*cfg.Store.DataDir))
}

// daemonOptions translates the loaded configuration into daemon options.
func daemonOptions(cfg *config.Config) []daemon.Option {
	var apiOpts []daemon.APIOption
	if cfg.API != nil {
		if cfg.API.ShutdownTimeout != nil {
			apiOpts = append(apiOpts, daemon.WithShutdownTimeout(time.Duration(*cfg.API.ShutdownTimeout)))
		}
		if c := cfg.API.CORS; c != nil {
			if c.Enable != nil {
				apiOpts = append(apiOpts, daemon.WithCORSEnabled(*c.Enable))
			}
			if len(c.Origins) > 0 {
				apiOpts = append(apiOpts, daemon.WithCORSAllowOrigins(c.Origins))
			}
			if len(c.Methods) > 0 {
				apiOpts = append(apiOpts, daemon.WithCORSAllowMethods(c.Methods))
			}
			if len(c.Headers) > 0 {
				apiOpts = append(apiOpts, daemon.WithCORSAllowHeaders(c.Headers))
			}
			if c.Credentials != nil {
				apiOpts = append(apiOpts, daemon.WithCORSAllowCredentials(*c.Credentials))
			}
			if c.MaxAge != nil {
				apiOpts = append(apiOpts, daemon.WithCORSMaxAge(time.Duration(*c.MaxAge)))
			}
		}
	}

	opts := []daemon.Option{daemon.WithAPIOptions(apiOpts...)}
	if cfg.Upstream != nil && cfg.Upstream.CallTimeout != nil {
		opts = append(opts, daemon.WithUpstreamCallTimeout(time.Duration(*cfg.Upstream.CallTimeout)))
	}

	return opts
}
