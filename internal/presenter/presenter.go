// Package presenter times the on-screen life of promoted alerts. Overlay
// pages are passive renderers; the exit and dismissal transitions are driven
// here so that every connected page sees the same timeline. Each newly active
// alert gets an exit timer and a dismissal timer; dismissal frees the slot
// and the admission middleware promotes the next pending alert.
package presenter

import (
	"log/slog"
	"sync"
	"time"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/state"
	"streamglass/internal/store"
)

// Defaults for the alert timeline.
const (
	DefaultDisplay = 6 * time.Second
	DefaultExit    = time.Second
)

// Config assembles a Presenter.
type Config struct {
	Store *store.Store
	// Display is how long an alert stays fully visible before its exit
	// transition starts.
	Display time.Duration
	// Exit is the length of the exit transition; the alert still holds its
	// slot until it elapses.
	Exit   time.Duration
	Logger *slog.Logger
}

type timerPair struct {
	exit    *time.Timer
	dismiss *time.Timer
}

// Presenter watches the visible set and schedules lifecycle transitions.
type Presenter struct {
	store   *store.Store
	display time.Duration
	exit    time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	timers      map[string]timerPair
	unsubscribe func()
	closed      bool
}

// New builds a presenter and subscribes it to the store's alerts slice.
func New(cfg Config) *Presenter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	display := cfg.Display
	if display <= 0 {
		display = DefaultDisplay
	}
	exit := cfg.Exit
	if exit <= 0 {
		exit = DefaultExit
	}
	p := &Presenter{
		store:   cfg.Store,
		display: display,
		exit:    exit,
		logger:  logger.With("component", "presenter"),
		timers:  make(map[string]timerPair),
	}
	p.unsubscribe = store.Observe(cfg.Store,
		func(t state.Tree) *state.AlertsState { return t.Alerts },
		p.onChange)
	return p
}

// onChange runs on the dispatch goroutine. It only starts and stops timers;
// the timer callbacks hand their transitions back through Send, keeping the
// single-writer model intact.
func (p *Presenter) onChange(prev, next *state.AlertsState) {
	onScreen := make(map[string]struct{}, len(next.Active))
	for _, a := range next.Active {
		onScreen[a.ID] = struct{}{}
		if a.Lifecycle == models.LifecycleActive {
			p.schedule(a.ID)
		}
	}

	// Alerts gone from the visible set were dismissed or force-cleared;
	// their pending transitions are moot.
	p.mu.Lock()
	for id, pair := range p.timers {
		if _, ok := onScreen[id]; !ok {
			pair.exit.Stop()
			pair.dismiss.Stop()
			delete(p.timers, id)
		}
	}
	p.mu.Unlock()
}

func (p *Presenter) schedule(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.timers[id]; ok {
		return
	}
	p.timers[id] = timerPair{
		exit: time.AfterFunc(p.display, func() {
			if err := p.store.Send(action.NewAlertExiting(id)); err != nil {
				p.logger.Warn("exit transition dropped", "alert_id", id, "error", err)
			}
		}),
		dismiss: time.AfterFunc(p.display+p.exit, func() {
			if err := p.store.Send(action.NewAlertDismissed(id)); err != nil {
				p.logger.Warn("dismissal dropped", "alert_id", id, "error", err)
			}
		}),
	}
}

// Close detaches from the store and stops every pending timer.
func (p *Presenter) Close() {
	p.unsubscribe()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, pair := range p.timers {
		pair.exit.Stop()
		pair.dismiss.Stop()
		delete(p.timers, id)
	}
}
