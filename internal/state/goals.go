package state

import (
	"streamglass/internal/action"
	"streamglass/internal/models"
)

// reduceGoals handles goal definitions and incremental progress. Completion
// latches: once Current reaches Target the goal stays complete even if the
// value later drops.
func reduceGoals(prev *GoalsState, a action.Action) *GoalsState {
	switch a.Type {
	case action.TypeGoalUpsert:
		if a.Goal == nil || a.Goal.Goal == nil || a.Goal.Goal.ID == "" {
			return prev
		}
		goal := *a.Goal.Goal
		if goal.StartedAt.IsZero() {
			goal.StartedAt = a.OccurredAt
		}
		goal = settleGoal(goal, a)
		entries := append([]models.Goal{}, prev.Entries...)
		replaced := false
		for i, existing := range prev.Entries {
			if existing.ID == goal.ID {
				if existing.IsComplete {
					goal.IsComplete = true
					goal.CompletedAt = existing.CompletedAt
				}
				entries[i] = goal
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, goal)
		}
		return &GoalsState{Entries: entries}

	case action.TypeGoalProgress:
		if a.Goal == nil || a.Goal.ID == "" {
			return prev
		}
		for i, existing := range prev.Entries {
			if existing.ID != a.Goal.ID {
				continue
			}
			goal := existing
			goal.Current += a.Goal.Delta
			if goal.Current < 0 {
				goal.Current = 0
			}
			goal = settleGoal(goal, a)
			entries := append([]models.Goal{}, prev.Entries...)
			entries[i] = goal
			return &GoalsState{Entries: entries}
		}
		return prev
	}
	return prev
}

func settleGoal(goal models.Goal, a action.Action) models.Goal {
	if !goal.IsComplete && goal.Target > 0 && goal.Current >= goal.Target {
		goal.IsComplete = true
		goal.CompletedAt = a.OccurredAt
	}
	return goal
}
