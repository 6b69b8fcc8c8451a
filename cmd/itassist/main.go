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
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"itassist/internal/config"
	"itassist/internal/mcpserver"
	"itassist/internal/tools"
	systemprompt "itassist/system_prompt"
)

// Version is set via ldflags at build time
var Version = "dev"

var (
	version     = flag.Bool("version", false, "Print version and exit")
	debugMode   = flag.Bool("d", false, "Enable debug logging")
	logFile     = flag.String("log-file", "", "Log file path (default: warnings to stderr)")
	configPath  = flag.String("config", "itassist.json", "Config file (.json, .yaml or .yml)")
	themePath   = flag.String("theme", "", "Console color theme file")
	batchMode   = flag.Bool("batch", false, "Read OpenAI tool calls as JSON lines from stdin")
	interactive = flag.Bool("i", false, "Start the interactive console")
	printConfig = flag.Bool("print-config", false, "Print an example config and exit")
)

type runMode int

const (
	modeMCP runMode = iota
	modeBatch
	modeConsole
)

func (m runMode) String() string {
	switch m {
	case modeBatch:
		return "batch"
	case modeConsole:
		return "console"
	default:
		return "mcp"
	}
}

func selectMode(batch, console bool, args []string) runMode {
	switch {
	case batch || (len(args) > 0 && args[0] == "-"):
		return modeBatch
	case console:
		return modeConsole
	default:
		return modeMCP
	}
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("itassist %s\n", Version)
		return
	}
	if *printConfig {
		fmt.Println(config.ExampleConfigJSON())
		return
	}

	logger, closer, err := initLogger(*debugMode, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("itassist failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if closer != nil {
			_ = closer.Close()
		}
		os.Exit(1)
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if !*debugMode && cfg.LogLevel != "" {
		if level, err := cfg.Level(); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	registry := tools.NewRegistryWithOptions(cfg.ToolsOptions(logger))
	defer registry.Close()

	for _, w := range cfg.Validate(registry) {
		logger.Warn().Str("field", w.Field).Msg(w.Message)
	}

	mode := selectMode(*batchMode, *interactive, flag.Args())
	logger.Info().Str("version", Version).Str("mode", mode.String()).Msg("itassist starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeBatch:
		return runBatch(ctx, registry, os.Stdin, os.Stdout, logger)
	case modeConsole:
		return runConsole(ctx, registry, *themePath, logger)
	default:
		if term.IsTerminal(int(os.Stdin.Fd())) {
			logger.Warn().Msg("stdin is a terminal; waiting for MCP messages (use -i for the interactive console)")
		}
		instructions, err := systemprompt.Load()
		if err != nil {
			return err
		}
		srv, err := mcpserver.New(registry, Version, instructions, logger)
		if err != nil {
			return err
		}
		ctx, stopInterrupt := signal.NotifyContext(ctx, os.Interrupt)
		defer stopInterrupt()
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
}

// initLogger configures zerolog. With a log file, logs go there; otherwise
// warnings and errors go to stderr, since stdout may carry the MCP protocol.
func initLogger(debug bool, logFilePath string) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if logFilePath != "" {
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		zerolog.SetGlobalLevel(level)
		return zerolog.New(file).With().Timestamp().Logger(), file, nil
	}

	if !debug {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(output).With().Timestamp().Logger(), nil, nil
}
