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

package scan

import (
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535

	// DefaultMaxPorts bounds a single scan. Longer specs are truncated.
	DefaultMaxPorts = 100

	// DefaultPortSpec lists the common service ports scanned when none are given.
	DefaultPortSpec = "22,23,25,53,80,110,443,993,995"
)

// PortSet is an ordered list of distinct ports in first-seen order.
type PortSet []int

// Contains reports whether port is in the set.
func (s PortSet) Contains(port int) bool {
	for _, p := range s {
		if p == port {
			return true
		}
	}
	return false
}

// ParsePortSpec parses a comma separated list of ports and inclusive ranges,
// e.g. "22,80,443", "1-1000" or "22,8000-8100".
//
// Every token is validated even once the set is full: the limit truncates the
// expansion, it never turns a bad spec into a good one. A blank spec yields an
// empty set. limit <= 0 means DefaultMaxPorts.
func ParsePortSpec(spec string, limit int) (PortSet, error) {
	if limit <= 0 {
		limit = DefaultMaxPorts
	}

	ports := make(PortSet, 0)
	seen := make(map[int]struct{})
	add := func(p int) {
		if len(ports) >= limit {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}

	for _, raw := range strings.Split(spec, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		if strings.Contains(token, "-") {
			start, end, err := parseRange(token)
			if err != nil {
				return nil, err
			}
			for p := start; p <= end && len(ports) < limit; p++ {
				add(p)
			}
			continue
		}

		p, err := parsePort(token)
		if err != nil {
			return nil, err
		}
		add(p)
	}

	return ports, nil
}

func parsePort(token string) (int, error) {
	p, err := strconv.Atoi(token)
	if err != nil {
		return 0, &InvalidPortError{Token: token, Reason: "not a number"}
	}
	if p < MinPort || p > MaxPort {
		return 0, &InvalidPortError{Token: token, Reason: "out of range 1-65535"}
	}
	return p, nil
}

func parseRange(token string) (int, int, error) {
	bounds := strings.SplitN(token, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil {
		return 0, 0, &InvalidRangeError{Token: token, Reason: "start is not a number"}
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return 0, 0, &InvalidRangeError{Token: token, Reason: "end is not a number"}
	}
	if start < MinPort || end > MaxPort {
		return 0, 0, &InvalidRangeError{Token: token, Reason: "bounds must be within 1-65535"}
	}
	if start > end {
		return 0, 0, &InvalidRangeError{Token: token, Reason: "start is greater than end"}
	}
	return start, end, nil
}
