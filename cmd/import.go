package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apiforge-ai/apiforge/internal/cmd"
	"github.com/apiforge-ai/apiforge/internal/config"
	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/flags"
	"github.com/apiforge-ai/apiforge/internal/store"
)

// ImportCmd imports an endpoint document file into the project's data dir
// without requiring a running daemon.
type ImportCmd struct {
	*cmd.BaseCmd
	cfgLoader config.Loader
}

// NewImportCmd creates a newly configured (Cobra) command.
func NewImportCmd(baseCmd *cmd.BaseCmd) (*cobra.Command, error) {
	c := &ImportCmd{
		BaseCmd:   baseCmd,
		cfgLoader: &config.DefaultLoader{},
	}

	cobraCommand := &cobra.Command{
		Use:   "import <document-file>",
		Short: "Imports an endpoint document (YAML or JSON) into the project store",
		Long: "Imports a normalized endpoint document into the project's data directory. " +
			"The daemon serves imported documents the next time it starts; a running daemon " +
			"can also receive documents directly via its HTTP API.",
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}

	return cobraCommand, nil
}

// run is configured (via NewImportCmd) to be called by the Cobra framework
// when the command is executed.
func (c *ImportCmd) run(_ *cobra.Command, args []string) error {
	logger := c.Logger()

	cfg, err := c.cfgLoader.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	if cfg.Store == nil || cfg.Store.DataDir == nil || strings.TrimSpace(*cfg.Store.DataDir) == "" {
		return fmt.Errorf("no store data_dir configured in %s, offline import requires one", flags.ConfigFile)
	}

	st, err := store.NewFileStore(strings.TrimSpace(*cfg.Store.DataDir))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read document file: %w", err)
	}

	doc, err := endpoint.ParseDocument(data)
	if err != nil {
		return err
	}

	// Compile up front so broken documents are caught at import time,
	// not daemon startup.
	compiled, err := endpoint.CompileDocument(doc)
	if err != nil {
		return err
	}

	if err := st.SaveDocument(doc); err != nil {
		return err
	}

	logger.Info("Document imported", "id", doc.ID, "endpoints", len(doc.Endpoints), "tools", len(compiled))
	fmt.Printf("Imported document %q: %d endpoints, %d selected as tools\n", doc.ID, len(doc.Endpoints), len(compiled))
	for _, tool := range compiled {
		fmt.Printf("  %s (%s %s)\n", tool.Definition.Name, tool.Descriptor.Method, tool.Descriptor.Path)
	}

	return nil
}
