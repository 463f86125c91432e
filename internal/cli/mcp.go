package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/config"
	geomcp "github.com/ppiankov/geowatch/internal/mcp"
)

var (
	mcpPolicy   string
	mcpAuditLog string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicy, "policy", "", "Path to policy YAML")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs geowatch as an MCP (Model Context Protocol) server over stdio.\nExposes tools: geowatch_evaluate, geowatch_distance, geowatch_policy.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := geomcp.Config{
		PolicyPath:   firstSet(mcpPolicy, config.GetEnv(config.EnvPolicy, "")),
		AuditLogPath: firstSet(mcpAuditLog, config.GetEnv(config.EnvAuditLog, "")),
		Version:      version,
	}

	srv, err := geomcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "geowatch MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Policy: %s\n\n", srv.PolicyHash())

	return srv.Run(ctx)
}

// firstSet returns the first non-empty value.
func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
