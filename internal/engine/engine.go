// Package engine orchestrates offline-first watchlist synchronization: it
// owns the operation log drain, the incremental pull/merge, the watermark,
// and the reaction to reachability and push-stream events. All shared
// state mutation flows through the engine; concurrent sync triggers
// collapse into one running cycle.
package engine

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/alphasignal/fundsync/internal/api"
	"github.com/alphasignal/fundsync/internal/store"
	"github.com/alphasignal/fundsync/internal/stream"
)

// Default tuning, overridable through Config.
const (
	defaultSyncInterval      = 30 * time.Second
	defaultStreamBackoff     = 2 * time.Second
	defaultStreamMaxAttempts = 5
)

// SyncAPI is the slice of the backend client the engine needs. Defined
// here so tests can fake the server without HTTP.
type SyncAPI interface {
	PullChanges(ctx context.Context, since time.Time) (*api.ChangesResponse, error)
	PushOperations(ctx context.Context, ops []api.Operation, lastSync time.Time) (*api.SyncResponse, error)
}

// Reachability is the slice of the network monitor the engine needs.
type Reachability interface {
	Online() bool
	Subscribe(cb func(online bool))
	Run(ctx context.Context) error
}

// ConnStatus is the engine's user-facing connection status.
type ConnStatus int

const (
	StatusDisconnected ConnStatus = iota
	StatusConnected
	StatusReconnecting
	StatusOffline
)

// String returns the lowercase status name.
func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot for display.
type Status struct {
	Connection    ConnStatus
	Syncing       bool
	LastSync      time.Time
	LastError     string
	PendingOps    int
	DroppedCycles int64
}

// Config assembles an Engine. Store, API, and Monitor are required;
// StreamDial may be nil for a pull-only engine (tests, one-shot CLI
// commands).
type Config struct {
	Store             *store.Store
	API               SyncAPI
	Monitor           Reachability
	StreamDial        stream.DialFunc
	StreamBackoff     time.Duration
	StreamMaxAttempts int
	DeviceID          string
	SyncInterval      time.Duration
	Logger            *slog.Logger
}

// Engine is the synchronization orchestrator.
type Engine struct {
	store        *store.Store
	api          SyncAPI
	monitor      Reachability
	stream       *stream.Client
	deviceID     string
	syncInterval time.Duration
	logger       *slog.Logger

	nowFunc func() time.Time // injectable for deterministic tests

	syncing atomic.Bool  // re-entrancy guard for sync cycles
	dropped atomic.Int64 // cycle triggers collapsed by the guard

	// cycleCtx outlives Stop so an in-flight cycle is never aborted;
	// Stop only prevents new cycles from being triggered.
	cycleCtx context.Context
	cancel   context.CancelFunc
	stopOnce stdsync.Once

	mu       stdsync.Mutex
	lastSync time.Time
	lastErr  error
	onUpdate []func(items []store.Item, groups []store.Group)
}

// New creates an Engine. The push stream client, when configured, is owned
// by the engine so its events dispatch back into sync cycles.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}

	if cfg.StreamBackoff <= 0 {
		cfg.StreamBackoff = defaultStreamBackoff
	}

	if cfg.StreamMaxAttempts <= 0 {
		cfg.StreamMaxAttempts = defaultStreamMaxAttempts
	}

	e := &Engine{
		store:        cfg.Store,
		api:          cfg.API,
		monitor:      cfg.Monitor,
		deviceID:     cfg.DeviceID,
		syncInterval: cfg.SyncInterval,
		logger:       cfg.Logger,
		nowFunc:      time.Now,
		cycleCtx:     context.Background(),
	}

	if cfg.StreamDial != nil {
		e.stream = stream.NewClient(cfg.StreamDial, e.handleEvent,
			cfg.StreamBackoff, cfg.StreamMaxAttempts, cfg.Logger)
	}

	return e
}

// OnUpdate registers a callback fired after every successful merge with
// fresh mirror snapshots. Callbacks run on the sync cycle's goroutine.
func (e *Engine) OnUpdate(cb func(items []store.Item, groups []store.Group)) {
	e.mu.Lock()
	e.onUpdate = append(e.onUpdate, cb)
	e.mu.Unlock()
}

// Start runs the monitor, the push stream, and the periodic sync timer
// until the context is canceled or Stop is called. An online transition
// triggers exactly one sync cycle and one stream reconnect attempt.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	e.cycleCtx = context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.monitor.Run(gctx) })

	if e.stream != nil {
		g.Go(func() error { return e.stream.Run(gctx) })
	}

	g.Go(func() error { return e.tickLoop(gctx) })

	e.monitor.Subscribe(func(online bool) {
		if gctx.Err() != nil {
			return
		}

		if !online {
			e.logger.Info("connectivity lost, sync deferred")
			return
		}

		e.logger.Info("connectivity restored, syncing")

		if e.stream != nil {
			e.stream.Reconnect()
		}

		go e.RunSyncCycle(e.cycleCtx) //nolint:errcheck // recorded in status
	})

	return g.Wait()
}

// Stop shuts the engine down. Idempotent; an in-flight cycle completes.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
	})
}

// tickLoop fires a sync cycle at the fixed interval while online. A slow
// cycle makes the next tick a guarded no-op rather than an overlap.
func (e *Engine) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !e.monitor.Online() {
				continue
			}

			e.RunSyncCycle(e.cycleCtx) //nolint:errcheck // recorded in status
		}
	}
}

// handleEvent dispatches a push stream event.
func (e *Engine) handleEvent(ev stream.Event) {
	switch ev.Type {
	case stream.EventWatchlistUpdated:
		e.logger.Debug("push notification received")

		go e.RunSyncCycle(e.cycleCtx) //nolint:errcheck // recorded in status
	case stream.EventError:
		remoteErr := parseRemoteError(ev.Data)
		e.logger.Warn("server pushed error", slog.String("message", remoteErr.Message))
		e.setError(remoteErr)
	default:
		e.logger.Debug("ignoring push event", slog.String("type", ev.Type))
	}
}

// RunSyncCycle runs one upload-then-pull synchronization cycle. A cycle
// already in progress makes this call a counted no-op. Offline, the cycle
// is deferred with ErrOffline. Any upload/pull/merge failure leaves the
// watermark untouched so the next cycle retries the same window.
func (e *Engine) RunSyncCycle(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		e.logger.Debug("sync cycle already running, trigger dropped")

		return nil
	}
	defer e.syncing.Store(false)

	if !e.monitor.Online() {
		e.setError(ErrOffline)

		return ErrOffline
	}

	if err := e.cycle(ctx); err != nil {
		e.setError(err)
		e.logger.Error("sync cycle failed", slog.String("error", err.Error()))

		return err
	}

	e.clearError()

	return nil
}

// cycle is the guarded body of RunSyncCycle.
func (e *Engine) cycle(ctx context.Context) error {
	if err := e.upload(ctx); err != nil {
		return err
	}

	changes, err := e.pull(ctx)
	if err != nil {
		return err
	}

	wm := changes.SyncTime.Time
	if wm.IsZero() {
		wm = e.nowFunc()
	}

	if err := e.store.SetWatermark(ctx, wm); err != nil {
		return err
	}

	e.mu.Lock()
	e.lastSync = e.nowFunc()
	e.mu.Unlock()

	e.notifyUpdate(ctx)

	return nil
}

// upload drains the operation log to the server and acknowledges the
// codes the server confirmed. Failed codes stay queued and are retried
// verbatim on the next cycle; the cycle interval is their pacing.
func (e *Engine) upload(ctx context.Context) error {
	ops, err := e.store.PendingOperations(ctx)
	if err != nil {
		return err
	}

	if len(ops) == 0 {
		return nil
	}

	watermark, err := e.store.Watermark(ctx)
	if err != nil {
		return err
	}

	resp, err := e.api.PushOperations(ctx, toWireOps(ops), watermark)
	if err != nil {
		return err
	}

	for _, result := range resp.Results {
		if !result.Success {
			e.logger.Warn("operation rejected, retrying next cycle",
				slog.String("operation", result.Operation),
				slog.String("fund_code", result.FundCode),
				slog.String("error", result.Error),
			)

			continue
		}

		if err := e.store.Acknowledge(ctx, result.FundCode); err != nil {
			return err
		}
	}

	e.logger.Info("operations uploaded", slog.Int("count", len(ops)))

	return nil
}

// pull fetches remote changes since the watermark and merges them into
// the mirror. Remote data wins over local rows, pending or not; still
// queued local intent re-applies on the next upload.
func (e *Engine) pull(ctx context.Context) (*api.ChangesResponse, error) {
	since, err := e.store.Watermark(ctx)
	if err != nil {
		return nil, err
	}

	changes, err := e.api.PullChanges(ctx, since)
	if err != nil {
		return nil, err
	}

	items := make([]store.Item, len(changes.Data))
	for i, it := range changes.Data {
		items[i] = store.Item{
			ID:        it.ID,
			UserID:    it.UserID,
			FundCode:  it.FundCode,
			FundName:  norm.NFC.String(it.FundName),
			GroupID:   it.GroupID,
			SortIndex: it.SortIndex,
			CreatedAt: it.CreatedAt.Time,
			UpdatedAt: it.UpdatedAt.Time,
			IsDeleted: it.IsDeleted,
		}
	}

	groups := make([]store.Group, len(changes.Groups))
	for i, g := range changes.Groups {
		groups[i] = store.Group{
			ID:        g.ID,
			UserID:    g.UserID,
			Name:      norm.NFC.String(g.Name),
			Icon:      g.Icon,
			Color:     g.Color,
			SortIndex: g.SortIndex,
			CreatedAt: g.CreatedAt.Time,
			UpdatedAt: g.UpdatedAt.Time,
		}
	}

	if err := e.store.ApplyChanges(ctx, items, groups); err != nil {
		return nil, err
	}

	if len(items) > 0 || len(groups) > 0 {
		e.logger.Info("remote changes applied",
			slog.Int("items", len(items)),
			slog.Int("groups", len(groups)),
		)
	}

	return changes, nil
}

// notifyUpdate fires registered callbacks with fresh mirror snapshots.
func (e *Engine) notifyUpdate(ctx context.Context) {
	e.mu.Lock()
	subs := make([]func([]store.Item, []store.Group), len(e.onUpdate))
	copy(subs, e.onUpdate)
	e.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	items, err := e.store.AllItems(ctx, true)
	if err != nil {
		e.logger.Error("reading items for update notification", slog.String("error", err.Error()))
		return
	}

	groups, err := e.store.AllGroups(ctx)
	if err != nil {
		e.logger.Error("reading groups for update notification", slog.String("error", err.Error()))
		return
	}

	for _, cb := range subs {
		cb(items, groups)
	}
}

// EnqueueAdd queues an ADD, placing the new item after the current mirror
// tail, and opportunistically triggers a sync when online. The optimistic
// placeholder row comes from the store's append.
func (e *Engine) EnqueueAdd(ctx context.Context, code, name string, groupID *string) error {
	maxIdx, err := e.store.MaxSortIndex(ctx)
	if err != nil {
		return err
	}

	idx := maxIdx + 1
	name = norm.NFC.String(name)

	op := store.Operation{
		ID:              uuid.NewString(),
		Kind:            api.OpAdd,
		FundCode:        code,
		FundName:        &name,
		GroupID:         groupID,
		SortIndex:       &idx,
		ClientTimestamp: e.nowFunc(),
		DeviceID:        e.deviceID,
	}

	if err := e.store.AppendOperation(ctx, op); err != nil {
		return err
	}

	e.kickSync()

	return nil
}

// EnqueueRemove queues a REMOVE and optimistically soft-deletes the
// mirror row.
func (e *Engine) EnqueueRemove(ctx context.Context, code string) error {
	op := store.Operation{
		ID:              uuid.NewString(),
		Kind:            api.OpRemove,
		FundCode:        code,
		ClientTimestamp: e.nowFunc(),
		DeviceID:        e.deviceID,
	}

	if err := e.store.AppendOperation(ctx, op); err != nil {
		return err
	}

	if err := e.store.MarkItemDeleted(ctx, code); err != nil {
		return err
	}

	e.kickSync()

	return nil
}

// EnqueueMove queues a MOVE_GROUP and optimistically updates the mirror
// row's group. A nil group means ungrouped.
func (e *Engine) EnqueueMove(ctx context.Context, code string, groupID *string) error {
	op := store.Operation{
		ID:              uuid.NewString(),
		Kind:            api.OpMoveGroup,
		FundCode:        code,
		GroupID:         groupID,
		ClientTimestamp: e.nowFunc(),
		DeviceID:        e.deviceID,
	}

	if err := e.store.AppendOperation(ctx, op); err != nil {
		return err
	}

	if err := e.store.SetItemGroup(ctx, code, groupID); err != nil {
		return err
	}

	e.kickSync()

	return nil
}

// EnqueueReorder queues a REORDER and optimistically updates the mirror
// row's sort index.
func (e *Engine) EnqueueReorder(ctx context.Context, code string, sortIndex int) error {
	op := store.Operation{
		ID:              uuid.NewString(),
		Kind:            api.OpReorder,
		FundCode:        code,
		SortIndex:       &sortIndex,
		ClientTimestamp: e.nowFunc(),
		DeviceID:        e.deviceID,
	}

	if err := e.store.AppendOperation(ctx, op); err != nil {
		return err
	}

	if err := e.store.SetItemSortIndex(ctx, code, sortIndex); err != nil {
		return err
	}

	e.kickSync()

	return nil
}

// kickSync fires an opportunistic, non-blocking sync cycle when online.
func (e *Engine) kickSync() {
	if !e.monitor.Online() {
		return
	}

	go e.RunSyncCycle(e.cycleCtx) //nolint:errcheck // recorded in status
}

// ForceFullResync clears the watermark and runs a cycle, so the pull
// requests the server's complete state instead of a delta.
func (e *Engine) ForceFullResync(ctx context.Context) error {
	if err := e.store.ClearWatermark(ctx); err != nil {
		return err
	}

	e.logger.Info("watermark cleared, forcing full resync")

	return e.RunSyncCycle(ctx)
}

// Status returns a snapshot for display.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	lastSync := e.lastSync
	lastErr := ""
	if e.lastErr != nil {
		lastErr = e.lastErr.Error()
	}
	e.mu.Unlock()

	return Status{
		Connection:    e.connStatus(),
		Syncing:       e.syncing.Load(),
		LastSync:      lastSync,
		LastError:     lastErr,
		PendingOps:    pending,
		DroppedCycles: e.dropped.Load(),
	}, nil
}

// connStatus derives the user-facing connection status. Offline wins over
// any push-stream state; the stream state refines the online cases.
func (e *Engine) connStatus() ConnStatus {
	if !e.monitor.Online() {
		return StatusOffline
	}

	if e.stream == nil {
		return StatusConnected
	}

	switch e.stream.State() {
	case stream.StateOpen:
		return StatusConnected
	case stream.StateConnecting, stream.StateReconnecting, stream.StateFailed:
		return StatusReconnecting
	default:
		return StatusDisconnected
	}
}

// LastError returns the most recently recorded sync error, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastErr
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) clearError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

// IsOffline reports whether an error is the deferred-offline condition.
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// toWireOps converts stored operations to their wire representation.
func toWireOps(ops []store.Operation) []api.Operation {
	wire := make([]api.Operation, len(ops))
	for i, op := range ops {
		wire[i] = api.Operation{
			ID:              op.ID,
			OperationType:   op.Kind,
			FundCode:        op.FundCode,
			FundName:        op.FundName,
			GroupID:         op.GroupID,
			SortIndex:       op.SortIndex,
			ClientTimestamp: api.Timestamp{Time: op.ClientTimestamp},
			DeviceID:        op.DeviceID,
		}
	}

	return wire
}
