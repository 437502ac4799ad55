package state

import (
	"streamglass/internal/action"
	"streamglass/internal/models"
)

// reduceAlerts owns the alert lifecycle collections. All bounds (queue
// capacity, visible cap, dismissed ring) are enforced here so no dispatch
// sequence can violate them, regardless of what middleware schedules.
func reduceAlerts(prev *AlertsState, a action.Action) *AlertsState {
	switch a.Type {
	case action.TypeAlertEnqueued:
		if a.Alert == nil || a.Alert.ID == "" {
			return prev
		}
		// Redelivered ids are rejected outright: anything already queued,
		// on screen, or recently dismissed is a duplicate.
		id := a.Alert.ID
		if alertIndex(prev.Queue, id) >= 0 || alertIndex(prev.Active, id) >= 0 || containsID(prev.RecentlyDismissed, id) {
			return prev
		}
		alert := *a.Alert
		alert.Lifecycle = models.LifecyclePending
		alert.LifecycleChangedAt = a.OccurredAt
		if alert.Timestamp.IsZero() {
			alert.Timestamp = a.OccurredAt
		}
		next := *prev
		queue := prev.Queue
		// Drop-oldest backpressure: the freshest events matter most to
		// viewers, so the head is evicted, never the new arrival.
		for len(queue) >= next.MaxQueueSize && len(queue) > 0 {
			queue = queue[1:]
		}
		next.Queue = append(append([]models.Alert{}, queue...), alert)
		return &next

	case action.TypeAlertActivated:
		// Promotion is strictly FIFO and capped: only the queue head may be
		// promoted, and only while a slot is free. Stale activations (the
		// head changed or the cap is reached) reduce to no-ops; the
		// admission middleware re-evaluates after every commit.
		if len(prev.Queue) == 0 || prev.Queue[0].ID != a.AlertID {
			return prev
		}
		if len(prev.Active) >= prev.MaxVisible {
			return prev
		}
		alert := prev.Queue[0]
		alert.Lifecycle = models.LifecycleActive
		alert.LifecycleChangedAt = a.OccurredAt
		next := *prev
		next.Queue = append([]models.Alert{}, prev.Queue[1:]...)
		next.Active = append(append([]models.Alert{}, prev.Active...), alert)
		return &next

	case action.TypeAlertExiting:
		idx := alertIndex(prev.Active, a.AlertID)
		if idx < 0 || prev.Active[idx].Lifecycle != models.LifecycleActive {
			return prev
		}
		next := *prev
		next.Active = append([]models.Alert{}, prev.Active...)
		next.Active[idx].Lifecycle = models.LifecycleExiting
		next.Active[idx].LifecycleChangedAt = a.OccurredAt
		return &next

	case action.TypeAlertDismissed:
		idx := alertIndex(prev.Active, a.AlertID)
		if idx < 0 {
			// Duplicate dismissal from the presentation layer; ignore.
			return prev
		}
		next := *prev
		next.Active = append(append([]models.Alert{}, prev.Active[:idx]...), prev.Active[idx+1:]...)
		next.RecentlyDismissed = pushRing(prev.RecentlyDismissed, a.AlertID, prev.MaxDismissed)
		return &next

	case action.TypeAlertCleared:
		if len(prev.Queue) == 0 && len(prev.Active) == 0 {
			return prev
		}
		next := *prev
		ring := prev.RecentlyDismissed
		for _, alert := range prev.Active {
			ring = pushRing(ring, alert.ID, prev.MaxDismissed)
		}
		next.Queue = []models.Alert{}
		next.Active = []models.Alert{}
		next.RecentlyDismissed = ring
		return &next
	}
	return prev
}

func alertIndex(alerts []models.Alert, id string) int {
	for i, a := range alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// pushRing appends id to a copy of the ring, evicting the oldest entries to
// honour the bound.
func pushRing(ring []string, id string, max int) []string {
	out := append(append([]string{}, ring...), id)
	for max > 0 && len(out) > max {
		out = out[1:]
	}
	return out
}
