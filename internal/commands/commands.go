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

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"itassist/internal/theme"
	"itassist/internal/tools"
)

// maxHistory bounds the results kept for /history.
const maxHistory = 50

// Session is the console state shared by command handlers.
type Session struct {
	Out    io.Writer
	Tools  *tools.Registry
	Colors *theme.ColorScheme
	Debug  bool

	mu      sync.Mutex
	history []*tools.ToolResult
}

// NewSession creates a console session.
func NewSession(out io.Writer, registry *tools.Registry, colors *theme.ColorScheme) *Session {
	if colors == nil {
		colors = theme.DisabledColorScheme()
	}
	return &Session{Out: out, Tools: registry, Colors: colors}
}

// Record remembers a finished tool call.
func (s *Session) Record(result *tools.ToolResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, result)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}

// History returns a copy of the recorded calls, oldest first.
func (s *Session) History() []*tools.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*tools.ToolResult(nil), s.history...)
}

// ClearHistory forgets all recorded calls.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// Handler runs a command and reports whether the console should quit.
type Handler func(s *Session, args []string) bool

// Command represents a console slash command
type Command struct {
	Name        string
	Usage       string
	Description string
	Handler     Handler
}

// Registry holds all available commands
type Registry struct {
	commands map[string]*Command
	logger   zerolog.Logger
}

// NewRegistry creates a command registry with the built-in commands.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		logger:   logger,
	}

	r.Register("help", "", "Show available commands", r.handleHelp)
	r.Register("tools", "", "List the tools that may run", handleTools)
	r.Register("schema", "<tool>", "Show the argument schema of a tool", handleSchema)
	r.Register("enable", "<tool>", "Allow a tool for this session", handleEnable)
	r.Register("disable", "<tool>", "Block a tool for this session", handleDisable)
	r.Register("history", "", "Show recent tool calls", handleHistory)
	r.Register("clear", "", "Clear the call history", handleClear)
	r.Register("debug", "", "Toggle debug logging", handleDebug)
	r.Register("quit", "", "Exit the console", handleQuit)
	r.Register("exit", "", "Exit the console", handleQuit)

	return r
}

// Register adds a new command to the registry
func (r *Registry) Register(name, usage, description string, handler Handler) {
	r.commands[name] = &Command{
		Name:        name,
		Usage:       usage,
		Description: description,
		Handler:     handler,
	}
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute runs a slash command and reports whether the console should quit.
func (r *Registry) Execute(input string, s *Session) bool {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	if len(fields) == 0 {
		theme.Println(s.Out, s.Colors.Error, "Empty command (type /help for available commands)")
		return false
	}
	name := strings.ToLower(fields[0])
	r.logger.Debug().Str("command", name).Msg("executing command")

	cmd, exists := r.commands[name]
	if !exists {
		theme.Println(s.Out, s.Colors.Error, "Unknown command: /%s (type /help for available commands)", name)
		return false
	}
	return cmd.Handler(s, fields[1:])
}

// GetCommands returns all registered commands sorted by name.
func (r *Registry) GetCommands() []*Command {
	list := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Names returns the slash-prefixed command names for completion.
func (r *Registry) Names() []string {
	cmds := r.GetCommands()
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = "/" + cmd.Name
	}
	return names
}

func (r *Registry) handleHelp(s *Session, _ []string) bool {
	theme.Println(s.Out, s.Colors.Header, "Available Commands:")
	for _, cmd := range r.GetCommands() {
		usage := "/" + cmd.Name
		if cmd.Usage != "" {
			usage += " " + cmd.Usage
		}
		fmt.Fprintf(s.Out, "  %-18s - %s\n", usage, cmd.Description)
	}
	theme.Println(s.Out, s.Colors.Header, "\nCalling Tools:")
	fmt.Fprintln(s.Out, `  port_scan {"host": "example.com", "ports": "22,80"}`)
	fmt.Fprintln(s.Out, "  port_scan host=example.com ports=1-1024")
	fmt.Fprintln(s.Out, "  Ctrl+C cancels a running call")
	return false
}

func handleTools(s *Session, _ []string) bool {
	list := s.Tools.Tools()
	if len(list) == 0 {
		theme.Println(s.Out, s.Colors.Error, "No tools available")
		return false
	}
	theme.Println(s.Out, s.Colors.Header, "Tools:")
	w := tabwriter.NewWriter(s.Out, 0, 8, 2, ' ', 0)
	for _, tool := range list {
		fmt.Fprintf(w, "  %s\t%s\n", tool.Name(), firstSentence(tool.Description()))
	}
	_ = w.Flush()
	return false
}

func handleSchema(s *Session, args []string) bool {
	if len(args) != 1 {
		theme.Println(s.Out, s.Colors.Error, "Usage: /schema <tool>")
		return false
	}
	tool, ok := s.Tools.Lookup(args[0])
	if !ok {
		theme.Println(s.Out, s.Colors.Error, "Unknown tool: %s", args[0])
		return false
	}
	data, err := json.MarshalIndent(tool.Parameters(), "", "  ")
	if err != nil {
		theme.Println(s.Out, s.Colors.Error, "Failed to render schema: %v", err)
		return false
	}
	theme.Println(s.Out, s.Colors.Header, "%s", tool.Name())
	fmt.Fprintln(s.Out, tool.Description())
	fmt.Fprintln(s.Out, string(data))
	return false
}

func handleEnable(s *Session, args []string) bool {
	return setAllowed(s, args, true)
}

func handleDisable(s *Session, args []string) bool {
	return setAllowed(s, args, false)
}

func setAllowed(s *Session, args []string, allowed bool) bool {
	if len(args) != 1 {
		theme.Println(s.Out, s.Colors.Error, "Usage: /enable <tool> or /disable <tool>")
		return false
	}
	name := args[0]
	if _, ok := s.Tools.Lookup(name); !ok {
		theme.Println(s.Out, s.Colors.Error, "Unknown tool: %s", name)
		return false
	}
	s.Tools.SetAllowed(name, allowed)
	state := "disabled"
	if s.Tools.IsAllowed(name) {
		state = "enabled"
	}
	theme.Println(s.Out, s.Colors.Success, "✓ %s %s", name, state)
	return false
}

func handleHistory(s *Session, _ []string) bool {
	history := s.History()
	if len(history) == 0 {
		theme.Println(s.Out, s.Colors.Error, "No tool calls yet")
		return false
	}
	theme.Println(s.Out, s.Colors.Header, "Recent Calls:")
	w := tabwriter.NewWriter(s.Out, 0, 8, 2, ' ', 0)
	for _, res := range history {
		status := "ok"
		if res.Error != nil {
			status = "error: " + firstLine(res.Error.Error())
		} else if res.Truncated {
			status = "ok (truncated)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", res.Function, res.Duration.Round(time.Millisecond), status)
	}
	_ = w.Flush()
	return false
}

func handleClear(s *Session, _ []string) bool {
	s.ClearHistory()
	theme.Println(s.Out, s.Colors.Success, "✓ Call history cleared")
	return false
}

func handleDebug(s *Session, _ []string) bool {
	s.Debug = !s.Debug
	if s.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		theme.Println(s.Out, s.Colors.Success, "✓ Debug mode enabled")
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		theme.Println(s.Out, s.Colors.Success, "✓ Debug mode disabled")
	}
	return false
}

func handleQuit(_ *Session, _ []string) bool {
	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstSentence(s string) string {
	s = firstLine(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
