package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath   string
	AuditLogPath string
	Version      string
}

// Server exposes geowatch evaluation as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	policy    *policy.Store
	auditLog  *audit.Log
	session   string
}

// New creates an MCP server with the loaded policy and registered tools.
func New(cfg Config) (*Server, error) {
	policyCfg, policyHash, err := policy.LoadConfigWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		policy:   policy.NewStore(policyCfg, policyHash),
		auditLog: auditLog,
		session:  uuid.NewString(),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "geowatch",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close closes the audit log if configured.
func (s *Server) Close() error {
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// PolicyHash returns the hash of the loaded policy.
func (s *Server) PolicyHash() string {
	return s.policy.Hash()
}

func (s *Server) recordAudit(entry audit.AuditEntry) {
	if s.auditLog == nil {
		return
	}
	_ = s.auditLog.Record(entry.At(time.Now()))
}

// registerTools adds all geowatch tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "geowatch_evaluate",
		Description: "Evaluate a location sample against the heuristic rules (accuracy, speed, altitude, provider, mock flag, implied movement). Returns the issues found.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "geowatch_distance",
		Description: "Compute the great-circle distance between two points and, when elapsed time is given, the implied speed.",
	}, s.handleDistance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "geowatch_policy",
		Description: "Show the active thresholds for a mode and the policy hash.",
	}, s.handlePolicy)
}
