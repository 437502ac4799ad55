// Package selector provides pure projections over the state tree. Selectors
// marked reference-stable return slice pointers or scalars and are safe to
// use with store.Observe; the remaining helpers build fresh values on every
// call and are read-path conveniences only.
package selector

import (
	"streamglass/internal/models"
	"streamglass/internal/state"
)

// Alerts returns the alerts slice pointer. Reference-stable.
func Alerts(t state.Tree) *state.AlertsState { return t.Alerts }

// Connection returns the connection slice pointer. Reference-stable.
func Connection(t state.Tree) *state.ConnectionState { return t.Connection }

// BotConnected reports whether the automation bot socket is up. Scalar.
func BotConnected(t state.Tree) bool { return t.Connection.Status == "connected" }

// StreamLive reports the live flag. Scalar.
func StreamLive(t state.Tree) bool { return t.Stream.Live }

// FreeAlertSlots reports how many alerts may still be promoted. Scalar.
func FreeAlertSlots(t state.Tree) int { return t.Alerts.FreeSlots() }

// HasPendingAlerts reports whether the queue is non-empty. Scalar.
func HasPendingAlerts(t state.Tree) bool { return len(t.Alerts.Queue) > 0 }

// NextPendingAlert returns the queue head, or false when the queue is empty.
// Builds a copy; not for Observe.
func NextPendingAlert(t state.Tree) (models.Alert, bool) {
	if len(t.Alerts.Queue) == 0 {
		return models.Alert{}, false
	}
	return t.Alerts.Queue[0], true
}

// VisibleAlerts returns the alerts currently holding a slot, including ones
// playing their exit transition. Always-new slice; not for Observe.
func VisibleAlerts(t state.Tree) []models.Alert {
	return append([]models.Alert{}, t.Alerts.Active...)
}

// Counter looks up one counter slot by id. Not reference-stable.
func Counter(t state.Tree, id string) (models.Counter, bool) {
	entry, ok := t.Counters.Entries[id]
	return entry, ok
}

// ActiveGoals filters goals to the active ones. Always-new slice; not for
// Observe.
func ActiveGoals(t state.Tree) []models.Goal {
	out := make([]models.Goal, 0, len(t.Goals.Entries))
	for _, goal := range t.Goals.Entries {
		if goal.IsActive {
			out = append(out, goal)
		}
	}
	return out
}

// LatestByType returns the most recent alert summary for one type.
func LatestByType(t state.Tree, alertType models.AlertType) (models.Alert, bool) {
	entry, ok := t.Latest.Entries[alertType]
	return entry, ok
}

// ActionCount reports the dispatch bookkeeping counter. Scalar.
func ActionCount(t state.Tree) uint64 { return t.Meta.ActionCount }
