// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido graph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/noteservice"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note, including its outgoing links and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_outgoing_links",
		mcp.WithDescription("List the links going out of the specified note, with their resolved targets."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to list links from")),
	), s.getOutgoingLinks)

	s.mcp.AddTool(mcp.NewTool("get_distance",
		mcp.WithDescription("Compute the link distance (shortest path length over the undirected link graph) between two notes. Returns -1 when they are not connected."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Path of the starting note")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Path of the destination note")),
	), s.getDistance)

	s.mcp.AddTool(mcp.NewTool("get_connected_graph",
		mcp.WithDescription("Return all notes reachable from the specified note within the given depth."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the root note")),
		mcp.WithString("depth", mcp.Description("Maximum traversal depth (empty or negative for unlimited)")),
	), s.getConnectedGraph)

	s.mcp.AddTool(mcp.NewTool("list_broken_links",
		mcp.WithDescription("List every note that contains links whose targets do not exist."),
	), s.listBrokenLinks)

	s.mcp.AddTool(mcp.NewTool("validate_links",
		mcp.WithDescription("Validate all links in the vault and report valid/broken counts with per-link details."),
	), s.validateLinks)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Resolve a link title to a note path the way [[wikilinks]] are resolved, with ranked candidates on a miss."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Link title to resolve (e.g. My Note)")),
		mcp.WithString("source", mcp.Description("Optional source note path, used to prefer same-directory matches")),
	), s.resolveLink)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl := s.svc.Backlinks(ctx, path)
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getOutgoingLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links := s.svc.LinksFrom(ctx, path)
	if len(links) == 0 {
		return mcp.NewToolResultText("no outgoing links"), nil
	}
	var b strings.Builder
	for _, l := range links {
		if l.TargetExists {
			fmt.Fprintf(&b, "%s -> %s\n", l.Title, l.TargetFile)
		} else {
			fmt.Fprintf(&b, "%s -> (broken)\n", l.Title)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getDistance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := s.svc.Distance(ctx, from, to)
	if d < 0 {
		return mcp.NewToolResultText("not connected"), nil
	}
	return mcp.NewToolResultText(strconv.Itoa(d)), nil
}

func (s *Server) getConnectedGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := -1
	if raw, rerr := req.RequireString("depth"); rerr == nil && raw != "" {
		d, perr := strconv.Atoi(raw)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid depth: %s", raw)), nil
		}
		depth = d
	}
	nodes := s.svc.Connected(ctx, path, depth)
	if len(nodes) == 0 {
		return mcp.NewToolResultText("no connected notes"), nil
	}
	var b strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&b, "%s (distance %d)\n", n.Path, n.Distance)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listBrokenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files := s.svc.BrokenFiles(ctx)
	if len(files) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	var b strings.Builder
	for _, f := range files {
		for _, l := range f.OutgoingLinks {
			if !l.TargetExists {
				fmt.Fprintf(&b, "%s: [[%s]]\n", f.Path, l.Title)
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) validateLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.svc.Validate(ctx)
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := ""
	if src, serr := req.RequireString("source"); serr == nil {
		source = src
	}
	res := s.svc.Resolve(ctx, title, source)
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
