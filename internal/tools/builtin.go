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

package tools

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"itassist/internal/paths"
	"itassist/internal/scan"
)

const builtinToolVersion = "1.0.0"

// builtins carries the state shared by the built-in tools.
type builtins struct {
	limits  Limits
	paths   paths.Policy
	scanner *scan.Scanner
	http    *httpTool
	logger  zerolog.Logger
}

func newBuiltins(opts Options) *builtins {
	scanOpts := append([]scan.Option{scan.WithLogger(opts.Logger)}, opts.ScanOptions...)
	return &builtins{
		limits:  normalizeLimits(opts.Limits),
		paths:   opts.Paths,
		scanner: scan.New(opts.Scan, scanOpts...),
		http:    newHTTPTool(opts.HTTP),
		logger:  opts.Logger,
	}
}

// registerBuiltInTools registers all built-in tools to the registry
func registerBuiltInTools(r *Registry, b *builtins) {
	register := func(tool Tool) {
		if err := r.RegisterTool(tool); err != nil {
			panic(err)
		}
	}

	register(typedTool("port_scan",
		"Scan TCP ports on a host and report which are open and which are closed",
		b.portScan))
	register(typedTool("ping_host",
		"Check whether a host is reachable with ping",
		b.pingHost))
	register(typedTool("calculator",
		"Evaluate a mathematical expression (supports sqrt, sin, cos, tan, log, exp, pow, abs, round, min, max, pi, e)",
		b.calculate))
	register(typedTool("system_info",
		"Get information about this system: general, cpu, memory, disk, network or processes",
		b.systemInfo))
	register(typedTool("read_file",
		"Read the contents of a text file",
		b.readFile))
	register(typedTool("http_request",
		"Send an HTTP request and show the status, headers and the beginning of the body",
		b.httpRequest))
	register(typedTool("log_analysis",
		"Search the last lines of a log file for a pattern (case-insensitive regular expression)",
		b.analyzeLog))
	register(typedTool("get_current_datetime",
		"Get the current date and time in ISO 8601 format",
		getCurrentDatetime))
}

type datetimeArgs struct{}

func getCurrentDatetime(ctx context.Context, _ datetimeArgs) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	return time.Now().Format(time.RFC3339), nil
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
