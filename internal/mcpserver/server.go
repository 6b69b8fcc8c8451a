// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package mcpserver exposes the tool registry over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"itassist/internal/tools"
)

// ServerName is advertised to MCP clients.
const ServerName = "it-assistant"

// Server adapts a tools.Registry to an MCP server.
type Server struct {
	registry *tools.Registry
	mcp      *server.MCPServer
	logger   zerolog.Logger
}

// New registers every allowed tool of registry on a new MCP server.
func New(registry *tools.Registry, version, instructions string, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		registry: registry,
		logger:   logger,
	}
	s.mcp = server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, tool := range registry.Tools() {
		def, err := toolDefinition(tool)
		if err != nil {
			return nil, err
		}
		s.mcp.AddTool(def, s.handler(tool.Name()))
		logger.Debug().Str("tool", tool.Name()).Msg("registered MCP tool")
	}
	return s, nil
}

func toolDefinition(tool tools.Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(tool.Parameters())
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to encode schema for %s: %w", tool.Name(), err)
	}
	def := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	def.Annotations.ReadOnlyHint = mcp.ToBoolPtr(true)
	def.Annotations.DestructiveHint = mcp.ToBoolPtr(false)
	return def, nil
}

// handler runs a call through the registry. Tool failures are returned as
// error results, never as protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.registry.Execute(ctx, name, req.GetArguments())
		if result.Error != nil {
			return mcp.NewToolResultError(result.Text()), nil
		}
		return mcp.NewToolResultText(result.Text()), nil
	}
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves JSON-RPC over in/out until ctx is canceled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(zerologWriter{s.logger}, "", 0))
	s.logger.Info().Int("tools", len(s.registry.Tools())).Msg("serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// zerologWriter routes the MCP library's log lines into zerolog.
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Error().Str("component", "mcp").Msg(msg)
	return len(p), nil
}
