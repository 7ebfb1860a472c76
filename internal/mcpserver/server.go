// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the configuration document, open surfaces and the event journal
// to LLM clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/surface"
)

// DefaultConfigURI is the resource holding the default document.
const DefaultConfigURI = "shiba://config/default"

// SurfaceLister reports open surfaces.
type SurfaceLister interface {
	IDs() []string
}

// Broadcaster pushes a message to every open surface. A SurfaceLister that
// also implements it receives the document after a reload.
type Broadcaster interface {
	Broadcast(msg surface.Message) (int, error)
}

// Journal lists recorded events.
type Journal interface {
	Recent(ctx context.Context, limit int, kind string) ([]history.Entry, error)
}

// Server wraps the MCP server with shiba tools.
type Server struct {
	mcp      *server.MCPServer
	configs  *appconfig.Store
	surfaces SurfaceLister
	journal  Journal
}

// New creates a new MCP server with all tools registered. surfaces may be
// nil when running outside the daemon, where no surface can be open.
func New(configs *appconfig.Store, surfaces SurfaceLister, journal Journal) *Server {
	s := &Server{configs: configs, surfaces: surfaces, journal: journal}

	s.mcp = server.NewMCPServer(
		"Shiba",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_config",
		mcp.WithDescription("Return the current configuration document as JSON, "+
			"including the directory it was loaded from."),
		mcp.WithBoolean("reload", mcp.Description("Re-read the file from disk instead of using the cached document "+
			"and push the result to every connected surface")),
	), s.getConfig)

	s.mcp.AddTool(mcp.NewTool("list_surfaces",
		mcp.WithDescription("List the ids of the UI surfaces currently connected to the daemon."),
	), s.listSurfaces)

	s.mcp.AddTool(mcp.NewTool("recent_events",
		mcp.WithDescription("List recent journal entries (config reloads, watch errors, surface lifecycle), newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50)")),
		mcp.WithString("kind", mcp.Description("Optional kind filter, e.g. config.loaded or watch.error")),
	), s.recentEvents)

	s.mcp.AddResource(
		mcp.NewResource(DefaultConfigURI, "Default configuration",
			mcp.WithResourceDescription("The document written when no configuration file exists."),
			mcp.WithMIMEType("application/yaml"),
		),
		s.readDefaultConfig,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// HTTPHandler serves the MCP server over streamable HTTP.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := s.configs.Get()
	reload := req.GetBool("reload", false)
	if reload {
		doc, _ = s.configs.LoadOrCreate(s.configs.Dir())
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := mcp.NewToolResultText(string(out))

	if b, ok := s.surfaces.(Broadcaster); ok && reload {
		if _, err := b.Broadcast(surface.ConfigUpdated(doc)); err != nil {
			result.Content = append(result.Content, mcp.NewTextContent(fmt.Sprintf("config push failed: %v", err)))
		}
	}
	return result, nil
}

func (s *Server) listSurfaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := []string{}
	if s.surfaces != nil {
		ids = s.surfaces.IDs()
	}
	out, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) recentEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.journal == nil {
		return mcp.NewToolResultError("journal unavailable"), nil
	}
	limit := req.GetInt("limit", 50)
	entries, err := s.journal.Recent(ctx, limit, req.GetString("kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no events recorded"), nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDefaultConfig(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := yaml.Marshal(appconfig.DefaultDocument())
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode default config: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DefaultConfigURI,
			MIMEType: "application/yaml",
			Text:     string(data),
		},
	}, nil
}
