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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"itassist/internal/scan"
)

const (
	defaultPingCount = 4
	pingTimeout      = 30 * time.Second
)

// fallbackPorts are probed when no ping binary is available.
var fallbackPorts = []int{80, 443}

type portScanArgs struct {
	Host   string  `json:"host" validate:"required" jsonschema:"description=Host name or IP address to scan"`
	Ports  *string `json:"ports,omitempty" jsonschema:"description=Ports to scan: single ports or ranges such as 443 or 1-1000 separated by commas (default: common service ports; at most 100 ports are scanned)"`
	Detail bool    `json:"detail,omitempty" jsonschema:"description=Break closed ports down into refused and timed out and errored probes"`
}

func (b *builtins) portScan(ctx context.Context, args portScanArgs) (string, error) {
	// an explicit empty string scans nothing
	spec := scan.DefaultPortSpec
	if args.Ports != nil {
		spec = *args.Ports
	}

	report, err := b.scanner.Scan(ctx, args.Host, spec)
	if err != nil {
		return "", err
	}

	limit := b.scanner.Config().ClosedDisplayLimit
	if args.Detail {
		return report.FormatDetail(limit), nil
	}
	return report.Format(limit), nil
}

type pingArgs struct {
	Host  string `json:"host" validate:"required" jsonschema:"description=Host name or IP address to ping"`
	Count int    `json:"count,omitempty" validate:"omitempty,min=1,max=20" jsonschema:"description=Number of echo requests to send (default 4)"`
}

func (b *builtins) pingHost(ctx context.Context, args pingArgs) (string, error) {
	host, err := scan.NormalizeHost(args.Host)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(host, "-") {
		return "", fmt.Errorf("invalid host %q", args.Host)
	}
	count := args.Count
	if count == 0 {
		count = defaultPingCount
	}

	bin, err := exec.LookPath("ping")
	if err != nil {
		b.logger.Debug().Str("host", host).Msg("ping binary not found, probing TCP ports instead")
		return b.tcpReachability(ctx, host)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	cmd := exec.CommandContext(pingCtx, bin, pingArguments(runtime.GOOS, host, count)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(pingCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("ping %s timed out after %s", host, pingTimeout)
	}
	return pingOutput(host, err, stdout.String(), stderr.String())
}

// pingOutput renders a finished ping run. A non-zero exit, such as total
// packet loss, is still a result: the output is returned with the status.
func pingOutput(host string, runErr error, stdout, stderr string) (string, error) {
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return "", fmt.Errorf("ping %s failed: %w", host, runErr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ping results for %s:\n\n%s", host, strings.TrimSpace(stdout))
	if msg := strings.TrimSpace(stderr); msg != "" {
		fmt.Fprintf(&b, "\n%s", msg)
	}
	if exitErr != nil {
		fmt.Fprintf(&b, "\n\nping exited with status %d", exitErr.ExitCode())
	}
	return b.String(), nil
}

func pingArguments(goos, host string, count int) []string {
	n := strconv.Itoa(count)
	if goos == "windows" {
		return []string{"-n", n, host}
	}
	return []string{"-c", n, host}
}

// tcpReachability reports a host as reachable when any fallback port accepts
// or actively refuses a connection.
func (b *builtins) tcpReachability(ctx context.Context, host string) (string, error) {
	report, err := b.scanner.Scan(ctx, host, joinInts(fallbackPorts))
	if err != nil {
		return "", err
	}

	var lines []string
	reachable := false
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("  port %d: %s", o.Port, o.State)
		if o.RTT > 0 && (o.State == scan.StateOpen || o.State == scan.StateClosed) {
			line += fmt.Sprintf(" (%s)", o.RTT.Round(time.Millisecond))
		}
		lines = append(lines, line)
		if o.State == scan.StateOpen || o.Refused {
			reachable = true
		}
	}

	status := "unreachable"
	if reachable {
		status = "reachable"
	}
	return fmt.Sprintf("TCP reachability for %s (ping unavailable): %s\n%s", host, status, strings.Join(lines, "\n")), nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
