package state

import (
	"streamglass/internal/action"
	"streamglass/internal/models"
)

// reduceLatest keeps the most recent alert summary per type. Both fresh
// enqueues and mirror restores overwrite; there is no history.
func reduceLatest(prev *LatestState, a action.Action) *LatestState {
	var alertType models.AlertType
	var alert models.Alert
	switch a.Type {
	case action.TypeAlertEnqueued:
		if a.Alert == nil {
			return prev
		}
		alertType = a.Alert.Type
		alert = *a.Alert
	case action.TypeLatestRestored:
		if a.Latest == nil {
			return prev
		}
		alertType = a.Latest.Type
		alert = a.Latest.Alert
	default:
		return prev
	}
	if !models.KnownAlertType(alertType) {
		return prev
	}
	entries := make(map[models.AlertType]models.Alert, len(prev.Entries)+1)
	for t, existing := range prev.Entries {
		entries[t] = existing
	}
	entries[alertType] = alert
	return &LatestState{Entries: entries}
}

// reduceActivity appends to the newest-first feed and silently drops the
// oldest rows past MaxItems. A pure ring buffer, no per-item lifecycle.
func reduceActivity(prev *ActivityState, a action.Action) *ActivityState {
	if a.Type != action.TypeActivityAdded || a.Activity == nil {
		return prev
	}
	items := append([]models.ActivityItem{*a.Activity}, prev.Items...)
	if prev.MaxItems > 0 && len(items) > prev.MaxItems {
		items = items[:prev.MaxItems]
	}
	return &ActivityState{Items: items, MaxItems: prev.MaxItems}
}
