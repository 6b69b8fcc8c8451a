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

// Package sysinfo renders host metrics for the system_info tool.
package sysinfo

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Kinds lists the supported report kinds.
var Kinds = []string{"general", "cpu", "memory", "disk", "network", "processes"}

// Collect renders the report of the given kind.
func Collect(ctx context.Context, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "general":
		return general()
	case "cpu":
		return cpu(ctx)
	case "memory":
		return memory()
	case "disk":
		return disk("/")
	case "network":
		return network()
	case "processes":
		return processes(ctx)
	default:
		return "", fmt.Errorf("unknown info type %q (expected one of: %s)", kind, strings.Join(Kinds, ", "))
	}
}

func network() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %v", err)
	}

	var b strings.Builder
	b.WriteString("Network interfaces:\n")
	for _, iface := range ifaces {
		state := "down"
		if iface.Flags&net.FlagUp != 0 {
			state = "up"
		}
		fmt.Fprintf(&b, "\n%s (%s", iface.Name, state)
		if len(iface.HardwareAddr) > 0 {
			fmt.Fprintf(&b, ", mac %s", iface.HardwareAddr)
		}
		fmt.Fprintf(&b, ", mtu %d)\n", iface.MTU)

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			fmt.Fprintf(&b, "  %s\n", addr.String())
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// FormatBytes converts bytes to a human-readable size.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}

	sizes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f%s", float64(bytes)/float64(div), sizes[exp])
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
