// Package sessions keeps one verification controller per active user and
// closes the ones that go idle.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mobirides/internal/verification/controller"
	"mobirides/internal/verification/metrics"
	id "mobirides/pkg/domain"
)

// Factory builds a fresh, uninitialized controller.
type Factory func() *controller.Controller

type entry struct {
	ctrl     *controller.Controller
	lastSeen time.Time
}

type Registry struct {
	factory Factory
	idleTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	watch   time.Duration

	mu      sync.Mutex
	entries map[id.UserID]*entry
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the wall clock used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithWatch starts a background refresh for every new controller. The
// refresh stops when the controller is closed.
func WithWatch(interval time.Duration) Option {
	return func(r *Registry) {
		r.watch = interval
	}
}

func New(factory Factory, idleTTL time.Duration, opts ...Option) *Registry {
	r := &Registry{
		factory: factory,
		idleTTL: idleTTL,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[id.UserID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the user's controller, initializing it when it has no data
// yet. A controller that was reset is initialized again.
func (r *Registry) Get(ctx context.Context, userID id.UserID, role id.Role) (*controller.Controller, error) {
	ctrl := r.lookup(userID)
	if ctrl.Initialized() {
		return ctrl, nil
	}
	if _, err := ctrl.InitializeVerification(ctx, userID, role); err != nil {
		return nil, err
	}
	return ctrl, nil
}

// Peek returns the user's controller without creating or initializing one.
func (r *Registry) Peek(userID id.UserID) (*controller.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok || !e.ctrl.Active() {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.ctrl, true
}

func (r *Registry) lookup(userID id.UserID) *controller.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok || !e.ctrl.Active() {
		e = &entry{ctrl: r.factory()}
		r.entries[userID] = e
		r.reportLocked()
		if r.watch > 0 {
			go r.watchSession(userID, e.ctrl)
		}
	}
	e.lastSeen = r.now()
	return e.ctrl
}

func (r *Registry) watchSession(userID id.UserID, ctrl *controller.Controller) {
	err := ctrl.Watch(context.Background(), r.watch, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("verification session watch stopped", "user_id", userID.String(), "error", err)
	}
}

// Drop closes and forgets the user's controller.
func (r *Registry) Drop(userID id.UserID) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if ok {
		delete(r.entries, userID)
		r.reportLocked()
	}
	r.mu.Unlock()
	if ok {
		e.ctrl.Close()
	}
}

// Len reports the number of tracked controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run evicts idle controllers every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.EvictIdleAt(r.now()); n > 0 {
				r.logger.InfoContext(ctx, "evicted idle verification sessions", "count", n)
			}
		case <-ctx.Done():
			r.CloseAll()
			return ctx.Err()
		}
	}
}

// EvictIdleAt closes controllers not accessed within the idle TTL as of now
// and returns how many were removed.
func (r *Registry) EvictIdleAt(now time.Time) int {
	var idle []*controller.Controller
	r.mu.Lock()
	for userID, e := range r.entries {
		if now.Sub(e.lastSeen) >= r.idleTTL || !e.ctrl.Active() {
			idle = append(idle, e.ctrl)
			delete(r.entries, userID)
		}
	}
	if len(idle) > 0 {
		r.reportLocked()
	}
	r.mu.Unlock()

	for _, ctrl := range idle {
		ctrl.Close()
	}
	return len(idle)
}

// CloseAll closes every controller, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[id.UserID]*entry)
	r.reportLocked()
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Close()
	}
}

func (r *Registry) reportLocked() {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(len(r.entries))
	}
}
