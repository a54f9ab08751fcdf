package netmon

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProbe returns a ProbeFunc reading from an atomic flag.
func fakeProbe(online *atomic.Bool) ProbeFunc {
	return func(context.Context) bool { return online.Load() }
}

func TestSubscribe_ImmediateBaseline(t *testing.T) {
	t.Parallel()

	var flag atomic.Bool

	m := New(fakeProbe(&flag), time.Hour, testLogger(t))

	var calls []bool
	m.Subscribe(func(online bool) { calls = append(calls, online) })

	if len(calls) != 1 || calls[0] != false {
		t.Errorf("baseline calls = %v, want [false]", calls)
	}
}

func TestObserve_FirstProbeBypassesDebounce(t *testing.T) {
	t.Parallel()

	var flag atomic.Bool
	flag.Store(true)

	m := New(fakeProbe(&flag), time.Hour, testLogger(t))

	var transitions []bool
	m.Subscribe(func(online bool) { transitions = append(transitions, online) })

	// First probe establishes the baseline without waiting for a streak.
	m.observe(context.Background())

	if !m.Online() {
		t.Error("monitor should be online after first successful probe")
	}

	if len(transitions) != 2 || transitions[1] != true {
		t.Errorf("transitions = %v, want baseline false then true", transitions)
	}
}

func TestObserve_DebouncesFlaps(t *testing.T) {
	t.Parallel()

	var flag atomic.Bool
	flag.Store(true)

	m := New(fakeProbe(&flag), time.Hour, testLogger(t))
	m.observe(context.Background()) // prime online

	var notifications int
	m.Subscribe(func(bool) { notifications++ })
	notifications = 0 // discard baseline call

	// One contradictory probe is not enough to flip.
	flag.Store(false)
	m.observe(context.Background())

	if !m.Online() {
		t.Fatal("single offline probe should not flip state")
	}

	if notifications != 0 {
		t.Errorf("notifications = %d, want 0", notifications)
	}

	// A second consecutive contradictory probe flips.
	m.observe(context.Background())

	if m.Online() {
		t.Fatal("state should flip after streak reaches threshold")
	}

	if notifications != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifications)
	}
}

func TestObserve_StreakResetOnAgreement(t *testing.T) {
	t.Parallel()

	var flag atomic.Bool
	flag.Store(true)

	m := New(fakeProbe(&flag), time.Hour, testLogger(t))
	m.observe(context.Background()) // prime online

	// offline, online, offline: never two in a row, never flips.
	flag.Store(false)
	m.observe(context.Background())
	flag.Store(true)
	m.observe(context.Background())
	flag.Store(false)
	m.observe(context.Background())

	if !m.Online() {
		t.Error("alternating probes should not flip state")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	var flag atomic.Bool

	m := New(fakeProbe(&flag), time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestProbeAddr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://api.example.com/api/v2", "api.example.com:443"},
		{"http://localhost:8080/api/v2", "localhost:8080"},
		{"http://plain.example.com", "plain.example.com:80"},
	}

	for _, tc := range cases {
		if got := probeAddr(tc.in); got != tc.want {
			t.Errorf("probeAddr(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
