package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/apiforge-ai/apiforge/internal/cmd"
	"github.com/apiforge-ai/apiforge/internal/config"
	"github.com/apiforge-ai/apiforge/internal/flags"
)

// InitCmd creates the project configuration file in the current directory.
type InitCmd struct {
	*cmd.BaseCmd
	cfgInitializer config.Initializer
}

// NewInitCmd creates a newly configured (Cobra) command.
func NewInitCmd(baseCmd *cmd.BaseCmd) (*cobra.Command, error) {
	c := &InitCmd{
		BaseCmd:        baseCmd,
		cfgInitializer: &config.DefaultLoader{},
	}

	cobraCommand := &cobra.Command{
		Use:   "init",
		Short: "Initializes the current directory as an `apiforge` project",
		Long:  c.longDescription(),
		RunE:  c.run,
	}

	return cobraCommand, nil
}

func (c *InitCmd) longDescription() string {
	return fmt.Sprintf(
		"Initializes the current directory as an `apiforge` project, creating a %s configuration file.\n\n"+
			"The configuration file path can be overridden using the `--%s` flag or the `%s` environment variable.",
		flags.DefaultConfigFile,
		flags.FlagNameConfigFile,
		flags.EnvVarConfigFile,
	)
}

func (c *InitCmd) run(_ *cobra.Command, _ []string) error {
	logger := c.Logger()

	initFilePath := flags.ConfigFile
	if initFilePath == flags.DefaultConfigFile {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		initFilePath = filepath.Join(wd, flags.DefaultConfigFile)
	}

	if err := c.cfgInitializer.Init(initFilePath); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	logger.Info("Project initialized", "config", initFilePath)
	fmt.Printf("Created %s\n", initFilePath)

	return nil
}
