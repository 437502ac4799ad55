package state

import (
	"streamglass/internal/action"
)

// Reduce is the root reducer: every action is offered to every slice reducer
// unconditionally, and Meta is stamped on every dispatch. Slices untouched by
// an action keep their previous pointer, which is what makes reference
// equality a valid change signal for subscribers.
func Reduce(prev Tree, a action.Action) Tree {
	next := prev
	next.Connection = reduceConnection(prev.Connection, a)
	next.Broadcaster = reduceBroadcaster(prev.Broadcaster, a)
	next.Counters = reduceCounters(prev.Counters, a)
	next.Health = reduceHealth(prev.Health, a)
	next.Alerts = reduceAlerts(prev.Alerts, a)
	next.Latest = reduceLatest(prev.Latest, a)
	next.Goals = reduceGoals(prev.Goals, a)
	next.Activity = reduceActivity(prev.Activity, a)
	next.Stream = reduceStream(prev.Stream, a)
	next.Meta = &MetaState{
		Version:        prev.Meta.Version,
		LastActionType: string(a.Type),
		LastActionAt:   a.OccurredAt,
		ActionCount:    prev.Meta.ActionCount + 1,
	}
	return next
}
