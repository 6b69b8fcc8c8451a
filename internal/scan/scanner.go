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
	"net"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency caps simultaneous probes of one scan.
	DefaultConcurrency = 50

	// DefaultDeadline bounds a whole scan, independent of the probe timeout.
	DefaultDeadline = 10 * time.Second
)

// Config tunes a Scanner. Zero fields fall back to the defaults.
type Config struct {
	Concurrency        int
	MaxPorts           int
	ProbeTimeout       time.Duration
	Deadline           time.Duration
	ClosedDisplayLimit int
}

// DefaultConfig returns the default scan settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:        DefaultConcurrency,
		MaxPorts:           DefaultMaxPorts,
		ProbeTimeout:       DefaultProbeTimeout,
		Deadline:           DefaultDeadline,
		ClosedDisplayLimit: DefaultClosedDisplayLimit,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxPorts <= 0 {
		cfg.MaxPorts = def.MaxPorts
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = def.Deadline
	}
	if cfg.ClosedDisplayLimit <= 0 {
		cfg.ClosedDisplayLimit = def.ClosedDisplayLimit
	}
	return cfg
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithDialer replaces the dialer used by probes.
func WithDialer(d Dialer) Option {
	return func(s *Scanner) {
		s.dialer = d
	}
}

// WithResolver replaces the host resolver.
func WithResolver(r Resolver) Option {
	return func(s *Scanner) {
		s.resolver = r
	}
}

// Scanner coordinates bounded, deadline-limited TCP port scans.
// It holds configuration only; every Scan owns its own state.
type Scanner struct {
	cfg      Config
	dialer   Dialer
	resolver Resolver
	prober   *Prober
	logger   zerolog.Logger
}

// New creates a scanner.
func New(cfg Config, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:      normalizeConfig(cfg),
		resolver: net.DefaultResolver,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prober = NewProber(s.dialer, s.cfg.ProbeTimeout)
	return s
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Prober returns the prober shared by the scanner's scans.
func (s *Scanner) Prober() *Prober {
	return s.prober
}

// Scan parses spec, resolves host once and probes every port with at most
// Concurrency probes in flight. Ports still pending when the deadline (or
// ctx) expires are reported as timed out, so the report always covers the
// whole port set. Only parse and resolution failures return an error.
func (s *Scanner) Scan(ctx context.Context, host, spec string) (*Report, error) {
	started := time.Now()
	log := s.logger.With().Str("host", host).Logger()

	log.Debug().Str("phase", "parsing").Str("ports", spec).Msg("scan started")
	ports, err := ParsePortSpec(spec, s.cfg.MaxPorts)
	if err != nil {
		log.Debug().Err(err).Msg("port spec rejected")
		return nil, err
	}

	target, err := NormalizeHost(host)
	if err != nil {
		return nil, &ResolutionError{Host: host, Err: err}
	}

	if len(ports) == 0 {
		report := newReport(target, "", nil)
		report.Elapsed = time.Since(started)
		log.Debug().Str("phase", "done").Msg("empty port set, nothing to probe")
		return report, nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	address, err := resolveOnce(scanCtx, s.resolver, target)
	if err != nil {
		log.Debug().Err(err).Msg("resolution failed")
		return nil, err
	}

	log.Debug().
		Str("phase", "probing").
		Str("address", address).
		Int("ports", len(ports)).
		Int("concurrency", s.cfg.Concurrency).
		Msg("fanning out probes")

	outcomes, peak := s.probeAll(scanCtx, address, ports)

	log.Debug().Str("phase", "aggregating").Msg("collecting outcomes")
	report := newReport(target, address, outcomes)
	report.Elapsed = time.Since(started)
	report.PeakInFlight = peak

	log.Debug().
		Str("phase", "done").
		Int("open", len(report.Open)).
		Int("closed", len(report.Closed)).
		Dur("elapsed", report.Elapsed).
		Msg("scan finished")
	return report, nil
}

// probeAll fills one slot per port. Slots start as timed out and are written
// exactly once by the probe that owns them, so no locking is needed.
func (s *Scanner) probeAll(ctx context.Context, address string, ports PortSet) ([]Outcome, int) {
	outcomes := make([]Outcome, len(ports))
	for i, p := range ports {
		outcomes[i] = Outcome{Port: p, State: StateTimedOut, Err: "not probed before deadline"}
	}

	var (
		inFlight  = atomic.NewInt32(0)
		peak      = atomic.NewInt32(0)
		completed = atomic.NewInt32(0)
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, p := range ports {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n := inFlight.Inc()
			defer inFlight.Dec()
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}

			outcomes[i] = s.prober.Probe(ctx, address, p)
			completed.Inc()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug().
		Int32("completed", completed.Load()).
		Int("total", len(ports)).
		Int32("peak_in_flight", peak.Load()).
		Msg("probes settled")
	return outcomes, int(peak.Load())
}
