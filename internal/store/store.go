// Package store implements the central reactive state container: one
// authoritative tree, a synchronous dispatch path with a middleware chain,
// and reference-equality subscriptions.
//
// The store follows a single-writer model. Dispatch and Flush must only be
// called from one goroutine at a time — normally the Run loop — while State
// may be read from anywhere. Producers on other goroutines hand actions to
// the loop through Send. Reentrant dispatch (calling Dispatch from a reducer
// or a synchronous subscriber) is rejected, never interleaved; anything that
// must happen as a reaction to a dispatch is scheduled with API.Defer and
// applied by the loop as its own follow-up dispatch, in order.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"streamglass/internal/action"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
)

var (
	// ErrReentrantDispatch is returned when Dispatch is invoked while a
	// dispatch is already in progress. The nested action is dropped.
	ErrReentrantDispatch = errors.New("store: reentrant dispatch rejected")
	// ErrInboxFull is returned by Send when the loop cannot keep up. The
	// action is dropped instead of blocking the producer.
	ErrInboxFull = errors.New("store: inbox full, action dropped")
)

// Next advances an action toward the reducer. A middleware that does not call
// its Next short-circuits the dispatch: the action is silently swallowed.
// That is intentional and allows filtering, but it is a sharp edge — see the
// package tests.
type Next func(action.Action) error

// API is the store surface middleware may touch during a dispatch.
type API interface {
	// State returns the current committed tree. Called before Next it
	// observes the pre-action state; after Next, the post-action state.
	State() state.Tree
	// Defer schedules a follow-up action to be dispatched after the
	// current dispatch (and any actions already deferred) completes.
	Defer(action.Action)
}

// Middleware wraps the dispatch path. Registration order is outermost-first:
// the first registered middleware sees the action before any other.
type Middleware func(api API, next Next) Next

// Config assembles a Store.
type Config struct {
	Initial state.Tree
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// InboxSize bounds Send's buffer. Zero means DefaultInboxSize.
	InboxSize int
}

// DefaultInboxSize bounds the Send buffer when not configured.
const DefaultInboxSize = 256

type subscription struct {
	fn func(prev, next state.Tree)
}

// Store owns the state tree. See the package comment for the threading model.
type Store struct {
	logger *slog.Logger
	rec    *metrics.Recorder

	current atomic.Pointer[state.Tree]
	inbox   chan action.Action

	// Single-writer dispatch fields; only touched on the dispatch goroutine.
	dispatching bool
	deferred    []action.Action
	middlewares []Middleware
	chain       Next

	subMu sync.Mutex
	subs  []*subscription
}

// New builds a store seeded with the provided tree.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Default()
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	s := &Store{
		logger: logger.With("component", "store"),
		rec:    rec,
		inbox:  make(chan action.Action, size),
	}
	initial := cfg.Initial
	s.current.Store(&initial)
	s.chain = s.commit
	return s
}

// State returns the current committed tree. Safe from any goroutine.
func (s *Store) State() state.Tree {
	return *s.current.Load()
}

// Defer schedules a follow-up dispatch. Part of the middleware API.
func (s *Store) Defer(a action.Action) {
	s.deferred = append(s.deferred, a)
}

// Use appends a middleware to the chain. Middleware must be registered
// before the first dispatch; order matters (logging first, then admission,
// then the best-effort side channels).
func (s *Store) Use(mw Middleware) {
	s.middlewares = append(s.middlewares, mw)
	chain := Next(s.commit)
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](s, chain)
	}
	s.chain = chain
}

// Dispatch applies one action synchronously: middleware chain, root reducer,
// then subscriber notification. It returns ErrReentrantDispatch when called
// from inside a dispatch; the nested action is logged and dropped. A panic
// anywhere on the dispatch path, middleware or reducer, rolls the dispatch
// back: the previous tree is retained, no subscriber fires, and the panic is
// returned as an error. The store stays usable afterwards.
//
// Deferred follow-ups are not applied here; they accumulate until Flush (or
// the Run loop) drains them. That keeps a synchronous burst of dispatches
// atomic with respect to admission decisions.
func (s *Store) Dispatch(a action.Action) (err error) {
	if s.dispatching {
		s.rec.ReentrantRejected()
		s.logger.Warn("reentrant dispatch rejected", "action", a.Type)
		return ErrReentrantDispatch
	}
	s.dispatching = true
	defer func() {
		s.dispatching = false
		if r := recover(); r != nil {
			err = fmt.Errorf("middleware panic on %s: %v", a.Type, r)
		}
		if err != nil {
			s.rec.ObserveDispatchFailure(string(a.Type))
			s.logger.Error("dispatch failed", "action", a.Type, "error", err)
			return
		}
		s.rec.ObserveDispatch(string(a.Type))
	}()
	return s.chain(a)
}

// Flush dispatches deferred follow-up actions in order until none remain.
// Follow-ups may defer further actions; those are applied in the same pass.
// Errors are logged and do not stop the drain.
func (s *Store) Flush() {
	for len(s.deferred) > 0 {
		next := s.deferred[0]
		s.deferred = s.deferred[1:]
		_ = s.Dispatch(next)
	}
}

// Send hands an action to the Run loop from any goroutine. When the inbox is
// full the action is dropped with an error rather than blocking the producer;
// the alert queue's own backpressure makes this loss-tolerant.
func (s *Store) Send(a action.Action) error {
	select {
	case s.inbox <- a:
		return nil
	default:
		s.logger.Warn("inbox full, dropping action", "action", a.Type)
		return ErrInboxFull
	}
}

// Run consumes the inbox until the context ends. Buffered actions are
// drained ahead of deferred follow-ups, so a burst that arrived together is
// fully admitted before promotions run — mirroring deferred-promotion
// semantics on a single logical thread.
func (s *Store) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-s.inbox:
			_ = s.Dispatch(a)
		default:
			if len(s.deferred) > 0 {
				next := s.deferred[0]
				s.deferred = s.deferred[1:]
				_ = s.Dispatch(next)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case a := <-s.inbox:
				_ = s.Dispatch(a)
			}
		}
	}
}

// commit is the terminal Next: it runs the root reducer and notifies
// subscribers. A panicking reducer must not corrupt the store, so the reduce
// step is isolated and the previous tree survives any fault.
func (s *Store) commit(a action.Action) (err error) {
	prev := s.State()
	var next state.Tree
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("reducer panic on %s: %v", a.Type, r)
			}
		}()
		next = state.Reduce(prev, a)
	}()
	if err != nil {
		return err
	}
	s.current.Store(&next)
	s.notify(prev, next)
	return nil
}

func (s *Store) notify(prev, next state.Tree) {
	s.subMu.Lock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("subscriber panic", "error", fmt.Sprint(r))
				}
			}()
			sub.fn(prev, next)
		}()
	}
}

// subscribe registers a raw tree observer in registration order and returns
// an idempotent cancel function. Observation starts with the next committed
// dispatch; nothing fires at registration time.
func (s *Store) subscribe(fn func(prev, next state.Tree)) func() {
	sub := &subscription{fn: fn}
	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, candidate := range s.subs {
			if candidate == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Observe registers a selector-based subscription: callback fires only when
// the selector's derived value changes between commits, compared with ==.
// Selectors used here must therefore be reference-stable: return the slice
// pointer (or a scalar), not a freshly built value. Late subscribers do not
// receive an initial callback; read Store.State through the selector at
// registration when the current value is needed.
func Observe[T comparable](s *Store, selector func(state.Tree) T, callback func(prev, next T)) func() {
	return s.subscribe(func(prev, next state.Tree) {
		before := selector(prev)
		after := selector(next)
		if before != after {
			callback(before, after)
		}
	})
}
