// Package action defines the closed vocabulary of facts the overlay store
// accepts. An Action is an immutable tagged record; the creators below stamp
// the occurrence time at dispatch time so reducers stay deterministic.
package action

import (
	"time"

	"streamglass/internal/models"
)

// Type tags an action. The set is closed: the reducers ignore anything else.
type Type string

const (
	TypeConnectionOpened Type = "connection.opened"
	TypeConnectionClosed Type = "connection.closed"
	TypeConnectionStatus Type = "connection.status"

	TypeBroadcasterSet Type = "broadcaster.set"

	TypeCounterSet     Type = "counter.set"
	TypeCounterLabel   Type = "counter.label"
	TypeCounterVisible Type = "counter.visible"

	TypeHealthReport Type = "health.report"
	TypeStreamLive   Type = "stream.live"

	TypeAlertEnqueued  Type = "alert.enqueued"
	TypeAlertActivated Type = "alert.activated"
	TypeAlertExiting   Type = "alert.exiting"
	TypeAlertDismissed Type = "alert.dismissed"
	TypeAlertCleared   Type = "alert.cleared"

	TypeLatestRestored Type = "latest.restored"

	TypeGoalUpsert   Type = "goal.upsert"
	TypeGoalProgress Type = "goal.progress"

	TypeActivityAdded Type = "activity.added"
)

// ConnectionChange carries socket lifecycle details for the bot link.
type ConnectionChange struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BroadcasterInfo identifies the channel the overlay belongs to.
type BroadcasterInfo struct {
	Name      string          `json:"name"`
	Platform  models.Platform `json:"platform"`
	AvatarURL string          `json:"avatarUrl,omitempty"`
}

// CounterChange targets one named counter slot. Only the field matching the
// action type is consulted by the reducer.
type CounterChange struct {
	ID      string `json:"id"`
	Value   int64  `json:"value,omitempty"`
	Label   string `json:"label,omitempty"`
	Visible bool   `json:"visible,omitempty"`
}

// HealthReport is a wholesale replacement of the health slice.
type HealthReport struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Notes         string `json:"notes,omitempty"`
}

// StreamChange updates the live flag and stream metadata.
type StreamChange struct {
	Live     bool   `json:"live"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
}

// GoalChange either upserts a goal definition or advances its progress.
type GoalChange struct {
	Goal  *models.Goal `json:"goal,omitempty"`
	ID    string       `json:"id,omitempty"`
	Delta int64        `json:"delta,omitempty"`
}

// LatestEntry restores the last-seen alert summary for one type from the
// external mirror.
type LatestEntry struct {
	Type  models.AlertType `json:"type"`
	Alert models.Alert     `json:"alert"`
}

// Action is one immutable fact offered to every slice reducer. Exactly one
// payload pointer is set for payload-carrying types.
type Action struct {
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`

	Alert       *models.Alert        `json:"alert,omitempty"`
	AlertID     string               `json:"alertId,omitempty"`
	Connection  *ConnectionChange    `json:"connection,omitempty"`
	Broadcaster *BroadcasterInfo     `json:"broadcaster,omitempty"`
	Counter     *CounterChange       `json:"counter,omitempty"`
	Health      *HealthReport        `json:"health,omitempty"`
	Stream      *StreamChange        `json:"stream,omitempty"`
	Goal        *GoalChange          `json:"goal,omitempty"`
	Latest      *LatestEntry         `json:"latest,omitempty"`
	Activity    *models.ActivityItem `json:"activity,omitempty"`
}

func now() time.Time {
	return time.Now().UTC()
}

// NewConnectionOpened records that the bot socket is established.
func NewConnectionOpened() Action {
	return Action{Type: TypeConnectionOpened, OccurredAt: now(), Connection: &ConnectionChange{Status: "connected"}}
}

// NewConnectionClosed records that the bot socket dropped.
func NewConnectionClosed(reason string) Action {
	return Action{Type: TypeConnectionClosed, OccurredAt: now(), Connection: &ConnectionChange{Status: "disconnected", Error: reason}}
}

// NewConnectionStatus reports an in-between state such as a reconnect attempt.
func NewConnectionStatus(status string, attempts int) Action {
	return Action{Type: TypeConnectionStatus, OccurredAt: now(), Connection: &ConnectionChange{Status: status, Attempts: attempts}}
}

// NewBroadcasterSet replaces the broadcaster identity slice.
func NewBroadcasterSet(info BroadcasterInfo) Action {
	return Action{Type: TypeBroadcasterSet, OccurredAt: now(), Broadcaster: &info}
}

// NewCounterSet sets the value of a known counter slot.
func NewCounterSet(id string, value int64) Action {
	return Action{Type: TypeCounterSet, OccurredAt: now(), Counter: &CounterChange{ID: id, Value: value}}
}

// NewCounterLabel relabels a known counter slot.
func NewCounterLabel(id, label string) Action {
	return Action{Type: TypeCounterLabel, OccurredAt: now(), Counter: &CounterChange{ID: id, Label: label}}
}

// NewCounterVisible toggles a known counter slot on the capture surface.
func NewCounterVisible(id string, visible bool) Action {
	return Action{Type: TypeCounterVisible, OccurredAt: now(), Counter: &CounterChange{ID: id, Visible: visible}}
}

// NewHealthReport replaces the health telemetry slice.
func NewHealthReport(report HealthReport) Action {
	return Action{Type: TypeHealthReport, OccurredAt: now(), Health: &report}
}

// NewStreamLive updates the live flag and stream metadata.
func NewStreamLive(change StreamChange) Action {
	return Action{Type: TypeStreamLive, OccurredAt: now(), Stream: &change}
}

// NewAlertEnqueued appends an alert to the pending queue. The reducer owns
// dedupe and backpressure; callers only provide the normalized alert.
func NewAlertEnqueued(alert models.Alert) Action {
	return Action{Type: TypeAlertEnqueued, OccurredAt: now(), Alert: &alert}
}

// NewAlertActivated promotes the queue head identified by id to the visible
// set. Dispatched exclusively by the admission middleware.
func NewAlertActivated(id string) Action {
	return Action{Type: TypeAlertActivated, OccurredAt: now(), AlertID: id}
}

// NewAlertExiting flips an active alert into its exit transition. The alert
// keeps occupying a visible slot until dismissed.
func NewAlertExiting(id string) Action {
	return Action{Type: TypeAlertExiting, OccurredAt: now(), AlertID: id}
}

// NewAlertDismissed removes an alert from the visible set once its exit
// animation completed.
func NewAlertDismissed(id string) Action {
	return Action{Type: TypeAlertDismissed, OccurredAt: now(), AlertID: id}
}

// NewAlertCleared force-removes every queued and active alert.
func NewAlertCleared() Action {
	return Action{Type: TypeAlertCleared, OccurredAt: now()}
}

// NewLatestRestored seeds the latest-event slice from the external mirror.
func NewLatestRestored(entry LatestEntry) Action {
	return Action{Type: TypeLatestRestored, OccurredAt: now(), Latest: &entry}
}

// NewGoalUpsert creates or replaces a goal definition.
func NewGoalUpsert(goal models.Goal) Action {
	return Action{Type: TypeGoalUpsert, OccurredAt: now(), Goal: &GoalChange{Goal: &goal}}
}

// NewGoalProgress advances a goal by delta.
func NewGoalProgress(id string, delta int64) Action {
	return Action{Type: TypeGoalProgress, OccurredAt: now(), Goal: &GoalChange{ID: id, Delta: delta}}
}

// NewActivityAdded appends one row to the activity feed.
func NewActivityAdded(item models.ActivityItem) Action {
	return Action{Type: TypeActivityAdded, OccurredAt: now(), Activity: &item}
}
