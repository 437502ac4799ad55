package selector

import (
	"testing"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/state"
)

func treeWith(t *testing.T, actions ...action.Action) state.Tree {
	t.Helper()
	tree := state.NewTree(state.Options{MaxVisible: 1})
	for _, a := range actions {
		tree = state.Reduce(tree, a)
	}
	return tree
}

func TestReferenceStableSelectorsTrackSliceIdentity(t *testing.T) {
	before := treeWith(t)
	after := state.Reduce(before, action.NewAlertEnqueued(models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}))

	if Alerts(before) == Alerts(after) {
		t.Fatalf("expected the alerts pointer to change on enqueue")
	}
	if Connection(before) != Connection(after) {
		t.Fatalf("expected the connection pointer stable across an alert action")
	}
}

func TestScalarSelectors(t *testing.T) {
	tree := treeWith(t,
		action.NewConnectionOpened(),
		action.NewStreamLive(action.StreamChange{Live: true}),
		action.NewAlertEnqueued(models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}),
		action.NewAlertEnqueued(models.Alert{ID: "a2", Type: models.AlertFollow, User: "bob"}),
		action.NewAlertActivated("a1"),
	)

	if !BotConnected(tree) || !StreamLive(tree) {
		t.Fatalf("expected bot connected and stream live")
	}
	if FreeAlertSlots(tree) != 0 {
		t.Fatalf("expected no free slots, got %d", FreeAlertSlots(tree))
	}
	if !HasPendingAlerts(tree) {
		t.Fatalf("expected a pending alert")
	}
	if ActionCount(tree) != 5 {
		t.Fatalf("expected five dispatches counted, got %d", ActionCount(tree))
	}
}

func TestNextPendingAlert(t *testing.T) {
	empty := treeWith(t)
	if _, ok := NextPendingAlert(empty); ok {
		t.Fatalf("expected no pending alert in an empty tree")
	}

	tree := treeWith(t,
		action.NewAlertEnqueued(models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}),
		action.NewAlertEnqueued(models.Alert{ID: "a2", Type: models.AlertFollow, User: "bob"}),
	)
	head, ok := NextPendingAlert(tree)
	if !ok || head.ID != "a1" {
		t.Fatalf("expected a1 at the queue head, got %+v ok=%v", head, ok)
	}
}

func TestVisibleAlertsIncludesExiting(t *testing.T) {
	tree := treeWith(t,
		action.NewAlertEnqueued(models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}),
		action.NewAlertActivated("a1"),
		action.NewAlertExiting("a1"),
	)
	visible := VisibleAlerts(tree)
	if len(visible) != 1 || visible[0].Lifecycle != models.LifecycleExiting {
		t.Fatalf("expected the exiting alert visible, got %+v", visible)
	}

	// The returned slice is a copy; mutating it never touches the tree.
	visible[0].ID = "mutated"
	if tree.Alerts.Active[0].ID != "a1" {
		t.Fatalf("tree mutated through the selector result")
	}
}

func TestActiveGoalsFiltersInactive(t *testing.T) {
	tree := treeWith(t,
		action.NewGoalUpsert(models.Goal{ID: "subs", Target: 10, IsActive: true}),
		action.NewGoalUpsert(models.Goal{ID: "retired", Target: 5}),
	)
	goals := ActiveGoals(tree)
	if len(goals) != 1 || goals[0].ID != "subs" {
		t.Fatalf("expected only the active goal, got %+v", goals)
	}
}

func TestCounterAndLatestLookups(t *testing.T) {
	tree := treeWith(t,
		action.NewCounterSet("follows", 12),
		action.NewAlertEnqueued(models.Alert{ID: "a1", Type: models.AlertRaid, User: "alice", Viewers: 7}),
	)

	counter, ok := Counter(tree, "follows")
	if !ok || counter.Value != 12 {
		t.Fatalf("unexpected counter %+v ok=%v", counter, ok)
	}
	if _, ok := Counter(tree, "nope"); ok {
		t.Fatalf("expected unknown counter absent")
	}

	latest, ok := LatestByType(tree, models.AlertRaid)
	if !ok || latest.Viewers != 7 {
		t.Fatalf("unexpected latest entry %+v ok=%v", latest, ok)
	}
}
