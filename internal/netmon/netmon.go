// Package netmon tracks network reachability with edge-triggered,
// debounced notifications. It is the single source of truth for "is the
// network usable right now".
package netmon

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	stdsync "sync"
	"time"
)

// flipThreshold is the number of consecutive probe results disagreeing
// with the current state required before the state flips. A single
// connectivity change can produce a burst of contradictory probe results;
// debouncing keeps subscribers from flapping.
const flipThreshold = 2

// probeTimeout bounds a single reachability probe.
const probeTimeout = 3 * time.Second

// ProbeFunc reports whether the network currently looks usable.
type ProbeFunc func(ctx context.Context) bool

// Monitor polls a reachability probe and notifies subscribers on state
// transitions only. New subscribers immediately receive the current state
// so they never miss the baseline.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *slog.Logger

	mu     stdsync.Mutex
	online bool
	primed bool // first probe bypasses debounce to establish a baseline
	streak int  // consecutive probes disagreeing with current state
	subs   []func(bool)
}

// New creates a Monitor. The initial state is offline until the first
// probe succeeds; the resulting offline→online transition is what kicks
// off the first sync after startup.
func New(probe ProbeFunc, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger,
	}
}

// DialProbe returns a ProbeFunc that TCP-dials the host of the given API
// base URL. Ports default to 443/80 by scheme.
func DialProbe(baseURL string) ProbeFunc {
	addr := probeAddr(baseURL)

	return func(ctx context.Context) bool {
		dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		var d net.Dialer

		conn, err := d.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			return false
		}

		conn.Close()

		return true
	}
}

// probeAddr extracts host:port from a base URL, defaulting the port from
// the scheme. Falls back to the raw string for unparseable input.
func probeAddr(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}

	if u.Port() != "" {
		return u.Host
	}

	if u.Scheme == "http" {
		return u.Host + ":80"
	}

	return u.Host + ":443"
}

// Online returns the current debounced state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.online
}

// Subscribe registers a callback. It is invoked synchronously once with
// the current state, then again only on state transitions.
func (m *Monitor) Subscribe(cb func(online bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, cb)
	current := m.online
	m.mu.Unlock()

	cb(current)
}

// Run polls the probe until the context is canceled. The first probe runs
// immediately so startup does not wait a full interval for connectivity.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.observe(ctx)
		}
	}
}

// observe runs one probe and applies debounced state transition logic.
func (m *Monitor) observe(ctx context.Context) {
	result := m.probe(ctx)

	m.mu.Lock()

	if result == m.online {
		m.primed = true
		m.streak = 0
		m.mu.Unlock()

		return
	}

	if m.primed {
		m.streak++
		if m.streak < flipThreshold {
			m.mu.Unlock()

			return
		}
	}

	m.primed = true

	m.online = result
	m.streak = 0
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("reachability changed", slog.Bool("online", result))

	for _, cb := range subs {
		cb(result)
	}
}
