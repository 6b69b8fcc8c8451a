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
	"strings"
	"testing"
)

func TestReportFormat(t *testing.T) {
	outcomes := []Outcome{
		{Port: 22, State: StateOpen},
		{Port: 23, State: StateClosed},
		{Port: 80, State: StateOpen},
		{Port: 110, State: StateTimedOut},
	}
	r := newReport("example.com", "192.0.2.1", outcomes)

	want := "Port scan for example.com:\n\nOpen ports (2): 22, 80\nClosed ports (2): 23, 110"
	if got := r.Format(0); got != want {
		t.Fatalf("unexpected format:\n%s\nwant:\n%s", got, want)
	}
}

func TestReportFormatTruncatesClosed(t *testing.T) {
	outcomes := make([]Outcome, 0, 25)
	for p := 1; p <= 25; p++ {
		outcomes = append(outcomes, Outcome{Port: p, State: StateClosed})
	}
	r := newReport("h", "h", outcomes)

	out := r.Format(0)
	if !strings.HasSuffix(out, "Closed ports (25): 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20 ... and 5 more") {
		t.Fatalf("unexpected closed listing: %s", out)
	}
	if !strings.Contains(out, "Open ports (0): none") {
		t.Fatalf("unexpected open listing: %s", out)
	}
}

func TestReportFormatDetail(t *testing.T) {
	outcomes := []Outcome{
		{Port: 1, State: StateClosed},
		{Port: 2, State: StateTimedOut},
		{Port: 3, State: StateError},
	}
	r := newReport("example.com", "192.0.2.1", outcomes)
	out := r.FormatDetail(0)
	for _, want := range []string{"Address: 192.0.2.1", "Refused or unreachable: 1", "Timed out: 1", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in detail output:\n%s", want, out)
		}
	}
}
