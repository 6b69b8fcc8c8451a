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
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestProbeOpenAndClosedLoopback(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port

	out := Probe(context.Background(), "127.0.0.1", port, time.Second)
	if out.State != StateOpen {
		t.Fatalf("expected open, got %s (%s)", out.State, out.Err)
	}

	_ = l.Close()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	out = Probe(context.Background(), "127.0.0.1", port, 2*time.Second)
	if out.State != StateClosed && out.State != StateTimedOut {
		t.Fatalf("expected closed or timed out, got %s (%s)", out.State, out.Err)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Fatalf("probe took %s, expected to respect the 2s timeout", elapsed)
	}
}

func TestProbeTimeout(t *testing.T) {
	p := NewProber(&scriptedDialer{hang: map[int]bool{81: true}}, 50*time.Millisecond)

	start := time.Now()
	out := p.Probe(context.Background(), "192.0.2.1", 81)
	if out.State != StateTimedOut {
		t.Fatalf("expected timed out, got %s", out.State)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe ignored its timeout, took %s", elapsed)
	}
}

func TestProbeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProber(&scriptedDialer{open: map[int]bool{80: true}}, time.Second)
	out := p.Probe(ctx, "192.0.2.1", 80)
	if out.State != StateTimedOut {
		t.Fatalf("expected canceled probe to be timed out, got %s", out.State)
	}
}

func TestClassifyDialError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want State
	}{
		{"deadline", context.DeadlineExceeded, StateTimedOut},
		{"canceled", fmt.Errorf("dial: %w", context.Canceled), StateTimedOut},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, StateError},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "slow.example", IsTimeout: true}, StateTimedOut},
		{"other", errors.New("network is unreachable"), StateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyDialError(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateOpen:     "open",
		StateClosed:   "closed",
		StateTimedOut: "timed out",
		StateError:    "error",
		State(42):     "unknown",
	}
	for state, s := range want {
		if state.String() != s {
			t.Fatalf("expected %q, got %q", s, state.String())
		}
	}
}

type errDialer struct{ err error }

func (d errDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, d.err
}

// rejectedError carries ECONNREFUSED without saying so in its text.
type rejectedError struct{}

func (rejectedError) Error() string { return "peer said no" }
func (rejectedError) Unwrap() error { return syscall.ECONNREFUSED }

func TestProbeRecordsRefusal(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		wantState   State
		wantRefused bool
	}{
		{"refused", rejectedError{}, StateClosed, true},
		{"unreachable", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, StateClosed, false},
		{"text only", errors.New("connection refused"), StateClosed, false},
	}
	for _, tc := range cases {
		out := NewProber(errDialer{tc.err}, time.Second).Probe(context.Background(), "192.0.2.1", 80)
		if out.State != tc.wantState || out.Refused != tc.wantRefused {
			t.Fatalf("%s: got state %s refused %v", tc.name, out.State, out.Refused)
		}
	}
}
