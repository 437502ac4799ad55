// Package state holds the overlay's single source of truth: one plain,
// JSON-serializable tree partitioned into independent slices, and one pure
// reducer per slice. Reducers never perform I/O and never read the wall
// clock; time always comes from the action's own timestamp.
package state

import (
	"time"

	"streamglass/internal/models"
)

// Version identifies the state tree layout for observability.
const Version = "1"

// Defaults for the admission and feed bounds. Overridable through Options.
const (
	DefaultMaxVisible   = 2
	DefaultMaxQueueSize = 20
	DefaultMaxDismissed = 50
	DefaultActivityMax  = 50
)

// ConnectionState mirrors the bot socket status.
type ConnectionState struct {
	Status    string    `json:"status"`
	Since     time.Time `json:"since"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
}

// BroadcasterState identifies the channel the overlay belongs to.
type BroadcasterState struct {
	Name      string          `json:"name"`
	Platform  models.Platform `json:"platform"`
	AvatarURL string          `json:"avatarUrl,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CountersState holds the fixed set of counter slots created at startup.
// Unknown counter ids are ignored by the reducer; no slot is ever created or
// destroyed mid-session.
type CountersState struct {
	Entries map[string]models.Counter `json:"entries"`
}

// HealthState is the overlay's self-reported telemetry, replaced wholesale on
// each report.
type HealthState struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	Notes         string    `json:"notes,omitempty"`
	ReportedAt    time.Time `json:"reportedAt"`
}

// AlertsState carries the admission-control collections. Queue is a bounded
// FIFO of pending alerts with drop-oldest backpressure; Active holds alerts
// in lifecycle active or exiting; RecentlyDismissed is a bounded ring of ids
// kept for dedupe.
type AlertsState struct {
	Queue             []models.Alert `json:"queue"`
	Active            []models.Alert `json:"active"`
	RecentlyDismissed []string       `json:"recentlyDismissed"`
	MaxVisible        int            `json:"maxVisible"`
	MaxQueueSize      int            `json:"maxQueueSize"`
	MaxDismissed      int            `json:"maxDismissed"`
}

// CountActive counts alerts currently holding a visible slot in lifecycle
// active, excluding exiting ones.
func (s *AlertsState) CountActive() int {
	n := 0
	for _, a := range s.Active {
		if a.Lifecycle == models.LifecycleActive {
			n++
		}
	}
	return n
}

// FreeSlots returns how many alerts may still be promoted. Exiting alerts
// keep occupying their slot until dismissed, so they count against the cap.
func (s *AlertsState) FreeSlots() int {
	free := s.MaxVisible - len(s.Active)
	if free < 0 {
		return 0
	}
	return free
}

// LatestState keeps the most recent alert summary per type. No history.
type LatestState struct {
	Entries map[models.AlertType]models.Alert `json:"entries"`
}

// GoalsState is the ordered list of stream goals.
type GoalsState struct {
	Entries []models.Goal `json:"entries"`
}

// ActivityState is the newest-first bounded activity feed.
type ActivityState struct {
	Items    []models.ActivityItem `json:"items"`
	MaxItems int                   `json:"maxItems"`
}

// StreamState reports whether the broadcast is live.
type StreamState struct {
	Live      bool      `json:"live"`
	Title     string    `json:"title,omitempty"`
	Category  string    `json:"category,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// MetaState is dispatch bookkeeping, updated unconditionally on every action.
type MetaState struct {
	Version        string    `json:"version"`
	LastActionType string    `json:"lastActionType"`
	LastActionAt   time.Time `json:"lastActionAt"`
	ActionCount    uint64    `json:"actionCount"`
}

// Tree is the full overlay state. Slices are held by pointer so that
// reference equality between two trees tells whether a slice changed; no
// slice references another. The tree is immutable by convention: reducers
// return fresh slice values and never mutate in place.
type Tree struct {
	Connection  *ConnectionState  `json:"connection"`
	Broadcaster *BroadcasterState `json:"broadcaster"`
	Counters    *CountersState    `json:"counters"`
	Health      *HealthState      `json:"health"`
	Alerts      *AlertsState      `json:"alerts"`
	Latest      *LatestState      `json:"latest"`
	Goals       *GoalsState       `json:"goals"`
	Activity    *ActivityState    `json:"activity"`
	Stream      *StreamState      `json:"stream"`
	Meta        *MetaState        `json:"meta"`
}

// Options bound the alert pipeline and feeds. Zero values fall back to the
// package defaults.
type Options struct {
	MaxVisible   int
	MaxQueueSize int
	MaxDismissed int
	ActivityMax  int
	// CounterIDs is the fixed set of counter slots available this session.
	CounterIDs []string
}

// DefaultCounterIDs is the slot set used when none are configured.
func DefaultCounterIDs() []string {
	return []string{"follows", "subs", "bits", "deaths"}
}

// NewTree builds a fully-populated default tree: every slice present, every
// field at a safe default, never a missing key.
func NewTree(opts Options) Tree {
	maxVisible := opts.MaxVisible
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisible
	}
	maxQueue := opts.MaxQueueSize
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueueSize
	}
	maxDismissed := opts.MaxDismissed
	if maxDismissed <= 0 {
		maxDismissed = DefaultMaxDismissed
	}
	activityMax := opts.ActivityMax
	if activityMax <= 0 {
		activityMax = DefaultActivityMax
	}
	counterIDs := opts.CounterIDs
	if len(counterIDs) == 0 {
		counterIDs = DefaultCounterIDs()
	}
	counters := make(map[string]models.Counter, len(counterIDs))
	for _, id := range counterIDs {
		counters[id] = models.Counter{Label: id, Visible: false}
	}
	return Tree{
		Connection:  &ConnectionState{Status: "disconnected"},
		Broadcaster: &BroadcasterState{},
		Counters:    &CountersState{Entries: counters},
		Health:      &HealthState{Status: "ok"},
		Alerts: &AlertsState{
			Queue:             []models.Alert{},
			Active:            []models.Alert{},
			RecentlyDismissed: []string{},
			MaxVisible:        maxVisible,
			MaxQueueSize:      maxQueue,
			MaxDismissed:      maxDismissed,
		},
		Latest:   &LatestState{Entries: make(map[models.AlertType]models.Alert)},
		Goals:    &GoalsState{Entries: []models.Goal{}},
		Activity: &ActivityState{Items: []models.ActivityItem{}, MaxItems: activityMax},
		Stream:   &StreamState{},
		Meta:     &MetaState{Version: Version},
	}
}
