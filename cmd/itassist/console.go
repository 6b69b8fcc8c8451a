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

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"itassist/internal/commands"
	"itassist/internal/theme"
	"itassist/internal/tools"
)

const historyFileName = ".itassist_history"

// console runs tool calls typed by an operator.
type console struct {
	session  *commands.Session
	commands *commands.Registry
	canceler *operationCanceler
	logger   zerolog.Logger
}

func newConsole(registry *tools.Registry, out io.Writer, colors *theme.ColorScheme, logger zerolog.Logger) *console {
	return &console{
		session:  commands.NewSession(out, registry, colors),
		commands: commands.NewRegistry(logger),
		canceler: &operationCanceler{},
		logger:   logger,
	}
}

// handleLine processes one input line and reports whether the console
// should exit.
func (c *console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(sanitizeInputLine(line))
	if line == "" {
		return false
	}
	c.logger.Debug().Str("input", line).Msg("console input")

	if commands.IsCommand(line) {
		return c.commands.Execute(line, c.session)
	}

	s := c.session
	name, args, err := commands.ParseToolLine(line)
	if err != nil {
		theme.Println(s.Out, s.Colors.Error, "%v", err)
		return false
	}
	if tool, ok := s.Tools.Lookup(name); ok {
		args = commands.CoerceArgs(args, tool.Parameters())
	}

	callCtx, cancel := context.WithCancel(ctx)
	c.canceler.Set(cancel)
	result := s.Tools.Execute(callCtx, name, args)
	c.canceler.Clear()
	cancel()

	s.Record(result)
	if result.Error != nil {
		theme.Println(s.Out, s.Colors.Error, "%s", result.Text())
	} else {
		theme.Println(s.Out, s.Colors.Result, "%s", result.Text())
	}
	if s.Debug {
		theme.Println(s.Out, s.Colors.Header, "(%s in %s)", result.Function, result.Duration)
	}
	return false
}

// completer offers slash commands and tool names.
func (c *console) completer() *readline.PrefixCompleter {
	names := c.commands.Names()
	items := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	for _, name := range c.session.Tools.GetToolNames() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// watchInterrupts cancels the running tool call on Ctrl-C. Readline handles
// Ctrl-C itself while waiting for input.
func (c *console) watchInterrupts(ctx context.Context) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sigCh:
				if c.canceler.Cancel() {
					c.logger.Debug().Msg("tool call interrupted")
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
		wg.Wait()
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

func runConsole(ctx context.Context, registry *tools.Registry, themePath string, logger zerolog.Logger) error {
	colors, err := theme.NewColorScheme(themePath)
	if err != nil {
		return err
	}
	c := newConsole(registry, os.Stdout, colors, logger)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              colors.Prompt.Sprint("itassist> "),
		HistoryFile:         historyFilePath(),
		AutoComplete:        c.completer(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		FuncFilterInputRune: filterInterruptRune,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	stop := c.watchInterrupts(ctx)
	defer stop()

	theme.Println(os.Stdout, colors.Header, "IT Assistant %s", Version)
	theme.Println(os.Stdout, colors.Header, "Type a tool call such as: port_scan host=localhost ports=22,80")
	theme.Println(os.Stdout, colors.Header, "Type /help for commands, /quit to exit")

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			switch classifyReadlineError(line, err) {
			case readlineContinue:
				continue
			case readlineExit:
				return nil
			default:
				return err
			}
		}
		if c.handleLine(ctx, line) {
			logger.Debug().Msg("console ended")
			return nil
		}
	}
}
