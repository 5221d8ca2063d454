// Package cmd wires the apiforge CLI: project initialization and the daemon
// that serves the HTTP API.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/apiforge-ai/apiforge/internal/cmd"
	"github.com/apiforge-ai/apiforge/internal/flags"
)

// RootCmd is the top-level apiforge command.
type RootCmd struct {
	*cmd.BaseCmd
}

// Execute runs the CLI and returns any execution error.
func Execute() error {
	logger, err := configureLogger()
	if err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}

	rootCmd, err := NewRootCmd(logger)
	if err != nil {
		return fmt.Errorf("error creating root command: %w", err)
	}

	return rootCmd.Execute()
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd(logger hclog.Logger) (*cobra.Command, error) {
	base := &cmd.BaseCmd{}
	base.SetLogger(logger)

	c := &RootCmd{BaseCmd: base}

	rootCmd := &cobra.Command{
		Use:          "apiforge <command> [args]",
		Short:        "'apiforge' turns REST endpoint documents into LLM-callable tool servers.",
		Long:         c.longDescription(),
		SilenceUsage: true,
		Version:      cmd.Version(),
	}

	// Global flags.
	flags.InitFlags(rootCmd.PersistentFlags())

	initCmd, err := NewInitCmd(base)
	if err != nil {
		return nil, err
	}
	importCmd, err := NewImportCmd(base)
	if err != nil {
		return nil, err
	}
	daemonCmd, err := NewDaemonCmd(base)
	if err != nil {
		return nil, err
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(daemonCmd)

	return rootCmd, nil
}

func (c *RootCmd) longDescription() string {
	return `The 'apiforge' CLI manages imported REST endpoint documents and runs the
daemon that deploys them as tool servers for AI agents.`
}

// configureLogger builds the process logger from environment settings. When no
// log path is configured, output is discarded so stdout stays clean.
func configureLogger() (hclog.Logger, error) {
	logPath := strings.TrimSpace(os.Getenv(flags.EnvVarLogPath))

	logOutput := io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		logOutput = f
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "apiforge",
		Level:  hclog.LevelFromString(getLogLevel()),
		Output: logOutput,
	})

	return logger, nil
}

func getLogLevel() string {
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv(flags.EnvVarLogLevel)))
	if lvl == "" {
		lvl = flags.DefaultLogLevel
	}
	return lvl
}
