package state

import (
	"streamglass/internal/action"
)

// reduceConnection replaces the bot link status wholesale on each connection
// action.
func reduceConnection(prev *ConnectionState, a action.Action) *ConnectionState {
	switch a.Type {
	case action.TypeConnectionOpened, action.TypeConnectionClosed, action.TypeConnectionStatus:
	default:
		return prev
	}
	if a.Connection == nil {
		return prev
	}
	return &ConnectionState{
		Status:    a.Connection.Status,
		Since:     a.OccurredAt,
		Attempts:  a.Connection.Attempts,
		LastError: a.Connection.Error,
	}
}

func reduceBroadcaster(prev *BroadcasterState, a action.Action) *BroadcasterState {
	if a.Type != action.TypeBroadcasterSet || a.Broadcaster == nil {
		return prev
	}
	return &BroadcasterState{
		Name:      a.Broadcaster.Name,
		Platform:  a.Broadcaster.Platform,
		AvatarURL: a.Broadcaster.AvatarURL,
		UpdatedAt: a.OccurredAt,
	}
}

func reduceHealth(prev *HealthState, a action.Action) *HealthState {
	if a.Type != action.TypeHealthReport || a.Health == nil {
		return prev
	}
	return &HealthState{
		Status:        a.Health.Status,
		UptimeSeconds: a.Health.UptimeSeconds,
		Notes:         a.Health.Notes,
		ReportedAt:    a.OccurredAt,
	}
}

// reduceStream keeps StartedAt stable across repeated live reports so uptime
// widgets do not reset mid-stream.
func reduceStream(prev *StreamState, a action.Action) *StreamState {
	if a.Type != action.TypeStreamLive || a.Stream == nil {
		return prev
	}
	next := &StreamState{
		Live:     a.Stream.Live,
		Title:    a.Stream.Title,
		Category: a.Stream.Category,
	}
	switch {
	case a.Stream.Live && prev.Live:
		next.StartedAt = prev.StartedAt
	case a.Stream.Live:
		next.StartedAt = a.OccurredAt
	}
	return next
}
