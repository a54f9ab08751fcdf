// Command fundsync is an offline-first watchlist synchronization client.
// It mirrors the server-side watchlist into a local SQLite database,
// queues mutations while offline, and reconciles through periodic and
// push-triggered sync cycles.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	stdsync "sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/api"
	"github.com/alphasignal/fundsync/internal/config"
	"github.com/alphasignal/fundsync/internal/engine"
	"github.com/alphasignal/fundsync/internal/netmon"
	"github.com/alphasignal/fundsync/internal/store"
	"github.com/alphasignal/fundsync/internal/stream"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// httpClientTimeout bounds one-shot API requests. The push stream builds
// its own client without a timeout because its body stays open.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fundsync",
		Short:   "Offline-first watchlist sync client",
		Long:    "Synchronizes a fund watchlist with the backend, queueing changes while offline.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(flagConfigPath)
			if err != nil {
				return err
			}

			resolvedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newMoveCmd())
	cmd.AddCommand(newReorderCmd())
	cmd.AddCommand(newGroupCmd())
	cmd.AddCommand(newResyncCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// services bundles the wired dependencies behind a CLI command.
type services struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	client *api.Client
}

// openServices wires the store and API client from the resolved config.
// Callers must Close when done.
func openServices() (*services, error) {
	logger := buildLogger()

	st, err := store.Open(resolvedCfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(resolvedCfg.BaseURL, defaultHTTPClient(),
		api.StaticToken(resolvedCfg.Token), logger)

	return &services{
		cfg:    resolvedCfg,
		logger: logger,
		store:  st,
		client: client,
	}, nil
}

// Close releases the underlying store.
func (s *services) Close() error {
	return s.store.Close()
}

// streamDial returns the configured push stream transport.
func (s *services) streamDial() stream.DialFunc {
	token := api.StaticToken(s.cfg.Token)

	if s.cfg.StreamTransport == config.TransportWebSocket {
		return stream.WebSocketDial(s.cfg.BaseURL, defaultHTTPClient(), token)
	}

	// The event stream stays open indefinitely, so no client timeout.
	return stream.HTTPDial(s.cfg.BaseURL, &http.Client{}, token)
}

// newEngine assembles a full engine (monitor + stream) for the daemon.
func (s *services) newEngine() *engine.Engine {
	monitor := netmon.New(netmon.DialProbe(s.cfg.BaseURL),
		s.cfg.ProbeIntervalDuration(), s.logger)

	return engine.New(engine.Config{
		Store:             s.store,
		API:               s.client,
		Monitor:           monitor,
		StreamDial:        s.streamDial(),
		StreamBackoff:     s.cfg.StreamBackoffDuration(),
		StreamMaxAttempts: s.cfg.StreamMaxAttempts,
		DeviceID:          s.cfg.DeviceID,
		SyncInterval:      s.cfg.SyncIntervalDuration(),
		Logger:            s.logger,
	})
}

// cliNet is a hand-set Reachability for one-shot commands: the enqueue
// happens with the network treated as offline so nothing fires in the
// background, then the command flips it and runs one cycle itself.
type cliNet struct {
	mu     stdsync.Mutex
	online bool
}

func (n *cliNet) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.online
}

func (n *cliNet) Subscribe(cb func(bool)) {
	cb(n.Online())
}

func (n *cliNet) Run(ctx context.Context) error {
	<-ctx.Done()

	return nil
}

func (n *cliNet) set(online bool) {
	n.mu.Lock()
	n.online = online
	n.mu.Unlock()
}
