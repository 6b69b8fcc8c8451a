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
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultClosedDisplayLimit caps the closed-port listing of a formatted report.
const DefaultClosedDisplayLimit = 20

// Report aggregates every outcome of one scan, in port-set order.
type Report struct {
	Host     string
	Address  string
	Outcomes []Outcome
	Open     []int
	Closed   []int
	Elapsed  time.Duration

	// PeakInFlight is the highest number of simultaneous probes observed.
	PeakInFlight int
}

// Total returns the number of ports covered by the report.
func (r *Report) Total() int {
	return len(r.Outcomes)
}

// Count returns how many outcomes are in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

func newReport(host, address string, outcomes []Outcome) *Report {
	r := &Report{
		Host:     host,
		Address:  address,
		Outcomes: outcomes,
		Open:     make([]int, 0),
		Closed:   make([]int, 0),
	}
	for _, o := range outcomes {
		if o.Open() {
			r.Open = append(r.Open, o.Port)
		} else {
			r.Closed = append(r.Closed, o.Port)
		}
	}
	return r
}

// Format renders the two-bucket summary. At most closedLimit closed ports are
// listed, followed by "... and N more"; closedLimit <= 0 means
// DefaultClosedDisplayLimit.
func (r *Report) Format(closedLimit int) string {
	if closedLimit <= 0 {
		closedLimit = DefaultClosedDisplayLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Port scan for %s:\n\n", r.Host)
	fmt.Fprintf(&b, "Open ports (%d): %s\n", len(r.Open), joinPorts(r.Open))

	shown := r.Closed
	if len(shown) > closedLimit {
		shown = shown[:closedLimit]
	}
	fmt.Fprintf(&b, "Closed ports (%d): %s", len(r.Closed), joinPorts(shown))
	if extra := len(r.Closed) - len(shown); extra > 0 {
		fmt.Fprintf(&b, " ... and %d more", extra)
	}
	return b.String()
}

// FormatDetail appends the per-state breakdown of the closed bucket to Format.
func (r *Report) FormatDetail(closedLimit int) string {
	var b strings.Builder
	b.WriteString(r.Format(closedLimit))
	b.WriteString("\n\n")
	if r.Address != "" && r.Address != r.Host {
		fmt.Fprintf(&b, "Address: %s\n", r.Address)
	}
	fmt.Fprintf(&b, "Refused or unreachable: %d\n", r.Count(StateClosed))
	fmt.Fprintf(&b, "Timed out: %d\n", r.Count(StateTimedOut))
	fmt.Fprintf(&b, "Errors: %d\n", r.Count(StateError))
	fmt.Fprintf(&b, "Elapsed: %s", r.Elapsed.Round(time.Millisecond))
	return b.String()
}

func joinPorts(ports []int) string {
	if len(ports) == 0 {
		return "none"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
