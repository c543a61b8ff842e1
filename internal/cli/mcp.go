package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threatlens/threatlens/internal/audit"
	"github.com/threatlens/threatlens/internal/mcpserver"
	"github.com/threatlens/threatlens/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP stdio server",
	Long: `Serve the detection engine over the Model Context Protocol on
stdin/stdout, for use from MCP-capable agents and IDEs.

Tools:
  analyze_prompt          analyze one text
  batch_analyze           analyze several texts
  get_threat_statistics   detection statistics

Add to an MCP client config:
  { "command": "threatlens", "args": ["mcp"] }`,
	RunE: mcpCommand,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	// Stdout carries the protocol, so failures to open the optional
	// store or audit log are reported on stderr and tolerated.
	var db *store.Store
	if db, err = store.Open(cfg.Store.Path); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "history store unavailable: %v\n", err)
		db = nil
	} else {
		defer db.Close()
	}

	var logger *audit.Logger
	if logger, err = audit.New(cfg.Audit.Path); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "audit log unavailable: %v\n", err)
		logger = nil
	} else {
		defer logger.Close()
	}

	srv := mcpserver.New(mcpserver.Config{
		Engine:  eng,
		Store:   db,
		Audit:   logger,
		Version: Version,
	})
	return srv.RunStdio(cmd.Context())
}
