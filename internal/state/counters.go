package state

import (
	"streamglass/internal/action"
	"streamglass/internal/models"
)

// reduceCounters mutates the fixed counter slots. Actions targeting unknown
// ids leave the slice untouched by reference: slots exist for the whole
// session or not at all.
func reduceCounters(prev *CountersState, a action.Action) *CountersState {
	switch a.Type {
	case action.TypeCounterSet, action.TypeCounterLabel, action.TypeCounterVisible:
	default:
		return prev
	}
	if a.Counter == nil {
		return prev
	}
	entry, ok := prev.Entries[a.Counter.ID]
	if !ok {
		return prev
	}
	switch a.Type {
	case action.TypeCounterSet:
		entry.Value = a.Counter.Value
	case action.TypeCounterLabel:
		entry.Label = a.Counter.Label
	case action.TypeCounterVisible:
		entry.Visible = a.Counter.Visible
	}
	entry.LastUpdatedAt = a.OccurredAt
	entries := make(map[string]models.Counter, len(prev.Entries))
	for id, existing := range prev.Entries {
		entries[id] = existing
	}
	entries[a.Counter.ID] = entry
	return &CountersState{Entries: entries}
}
