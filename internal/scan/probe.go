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
	"net"
	"strconv"
	"syscall"
	"time"
)

// DefaultProbeTimeout bounds a single connect attempt.
const DefaultProbeTimeout = 2 * time.Second

// State classifies the outcome of one probe.
type State int

const (
	StateOpen State = iota
	StateClosed
	StateTimedOut
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateTimedOut:
		return "timed out"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the write-once result of probing one port.
type Outcome struct {
	Port  int
	State State
	Err   string
	RTT   time.Duration

	// Refused is set when the host actively rejected the connection.
	Refused bool
}

// Open reports whether the port accepted a connection.
func (o Outcome) Open() bool {
	return o.State == StateOpen
}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober performs single TCP connect attempts.
type Prober struct {
	dialer  Dialer
	timeout time.Duration
}

// NewProber returns a prober using d, or a plain net.Dialer when d is nil.
func NewProber(d Dialer, timeout time.Duration) *Prober {
	if d == nil {
		d = &net.Dialer{}
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{dialer: d, timeout: timeout}
}

// Timeout returns the per-probe timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe attempts one TCP connection to host:port. It never fails: every
// failure mode is folded into the returned state. The connection, if any, is
// closed before returning without exchanging data.
func (p *Prober) Probe(ctx context.Context, host string, port int) Outcome {
	out := Outcome{Port: port, State: StateTimedOut}
	if err := ctx.Err(); err != nil {
		out.Err = err.Error()
		return out
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	out.RTT = time.Since(start)
	if err == nil {
		_ = conn.Close()
		out.State = StateOpen
		return out
	}

	out.State = classifyDialError(err)
	out.Refused = errors.Is(err, syscall.ECONNREFUSED)
	out.Err = err.Error()
	return out
}

// Probe is a convenience wrapper around a default Prober.
func Probe(ctx context.Context, host string, port int, timeout time.Duration) Outcome {
	return NewProber(nil, timeout).Probe(ctx, host, port)
}

func classifyDialError(err error) State {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StateTimedOut
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return StateTimedOut
		}
		return StateError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateTimedOut
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StateClosed
	}
	// unreachable networks, resets and the like
	return StateClosed
}
