package mirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"streamglass/internal/action"
	"streamglass/internal/models"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/state"
	"streamglass/internal/store"
	"streamglass/internal/testsupport/redisstub"
)

func startStub(t *testing.T, opts redisstub.Options) *redisstub.Server {
	t.Helper()
	stub, err := redisstub.Start(opts)
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = stub.Close() })
	return stub
}

func openStore(t *testing.T, stub *redisstub.Server, password string) *RedisStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rs, err := NewRedisStore(ctx, RedisConfig{Addr: stub.Addr(), Password: password})
	if err != nil {
		t.Fatalf("NewRedisStore error: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	stub := startStub(t, redisstub.Options{})
	rs := openStore(t, stub, "")

	ctx := context.Background()
	if err := rs.Set(ctx, "streamglass.latest.follow", `{"id":"a1"}`); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	value, ok, err := rs.Get(ctx, "streamglass.latest.follow")
	if err != nil || !ok {
		t.Fatalf("Get error: %v ok=%v", err, ok)
	}
	if value != `{"id":"a1"}` {
		t.Fatalf("unexpected value %q", value)
	}

	// Absence is reported, not an error.
	_, ok, err = rs.Get(ctx, "streamglass.latest.raid")
	if err != nil {
		t.Fatalf("Get error for missing key: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}
}

func TestRedisStoreAuthenticates(t *testing.T) {
	stub := startStub(t, redisstub.Options{Password: "hunter2"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisStore(ctx, RedisConfig{Addr: stub.Addr(), Password: "wrong"}); err == nil {
		t.Fatalf("expected an auth failure")
	}

	rs := openStore(t, stub, "hunter2")
	if err := rs.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set error after auth: %v", err)
	}
}

func TestMiddlewareMirrorsLatestEntryAfterCommit(t *testing.T) {
	stub := startStub(t, redisstub.Options{})
	rs := openStore(t, stub, "")

	s := store.New(store.Config{Initial: state.NewTree(state.Options{}), Metrics: metrics.New()})
	s.Use(Middleware([]VariableStore{rs}, "", nil, metrics.New()))

	alert := models.Alert{ID: "a1", Type: models.AlertCheer, Platform: models.PlatformTwitch, User: "alice", Amount: models.MustParseMoney("500")}
	if err := s.Dispatch(action.NewAlertEnqueued(alert)); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	// The write is fire-and-forget on its own goroutine.
	waitUntil(t, 2*time.Second, func() bool {
		_, ok := stub.Get("streamglass.latest.cheer")
		return ok
	})

	raw, _ := stub.Get("streamglass.latest.cheer")
	var stored models.Alert
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("decode mirrored entry: %v", err)
	}
	if stored.ID != "a1" || stored.User != "alice" || stored.Amount.DecimalString() != "500" {
		t.Fatalf("unexpected mirrored entry %+v", stored)
	}
}

func TestMiddlewareSkipsDuplicateWithoutWrite(t *testing.T) {
	stub := startStub(t, redisstub.Options{})
	rs := openStore(t, stub, "")

	s := store.New(store.Config{Initial: state.NewTree(state.Options{}), Metrics: metrics.New()})
	s.Use(Middleware([]VariableStore{rs}, "", nil, metrics.New()))

	alert := models.Alert{ID: "a1", Type: models.AlertFollow, User: "alice"}
	_ = s.Dispatch(action.NewAlertEnqueued(alert))
	waitUntil(t, 2*time.Second, func() bool {
		_, ok := stub.Get("streamglass.latest.follow")
		return ok
	})

	// A redelivered duplicate still refreshes the latest-event slice and is
	// therefore mirrored again; an unknown type never is.
	unknown := models.Alert{ID: "x1", Type: "confetti", User: "bob"}
	_ = s.Dispatch(action.NewAlertEnqueued(unknown))
	time.Sleep(50 * time.Millisecond)
	if _, ok := stub.Get("streamglass.latest.confetti"); ok {
		t.Fatalf("expected unknown alert type never mirrored")
	}
}

func TestRestoreFeedsLatestRestoredActions(t *testing.T) {
	stub := startStub(t, redisstub.Options{})
	rs := openStore(t, stub, "")

	seed := models.Alert{ID: "old-1", Type: models.AlertDonation, User: "carol", AmountDisplay: "$5.00"}
	raw, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	stub.Put("streamglass.latest.donation", string(raw))
	stub.Put("streamglass.latest.raid", "{not json")

	var restored []action.Action
	send := func(a action.Action) error {
		restored = append(restored, a)
		return nil
	}
	if err := Restore(context.Background(), rs, "", send, nil); err != nil {
		t.Fatalf("Restore error: %v", err)
	}

	// The malformed raid entry is skipped, the donation survives.
	if len(restored) != 1 {
		t.Fatalf("expected one restored action, got %d", len(restored))
	}
	got := restored[0]
	if got.Type != action.TypeLatestRestored || got.Latest == nil {
		t.Fatalf("unexpected action %+v", got)
	}
	if got.Latest.Type != models.AlertDonation || got.Latest.Alert.ID != "old-1" {
		t.Fatalf("unexpected restored entry %+v", got.Latest)
	}
}

func TestRestoredEntriesLandInLatestSlice(t *testing.T) {
	stub := startStub(t, redisstub.Options{})
	rs := openStore(t, stub, "")

	seed := models.Alert{ID: "old-2", Type: models.AlertSub, User: "dave", Months: 9}
	raw, _ := json.Marshal(seed)
	stub.Put("streamglass.latest.sub", string(raw))

	s := store.New(store.Config{Initial: state.NewTree(state.Options{}), Metrics: metrics.New()})
	if err := Restore(context.Background(), rs, "", s.Dispatch, nil); err != nil {
		t.Fatalf("Restore error: %v", err)
	}

	entry, ok := s.State().Latest.Entries[models.AlertSub]
	if !ok || entry.ID != "old-2" || entry.Months != 9 {
		t.Fatalf("expected restored sub entry, got %+v ok=%v", entry, ok)
	}
	// Restores never touch the admission queue.
	if got := s.State().Alerts; len(got.Queue) != 0 || len(got.Active) != 0 {
		t.Fatalf("expected alert pipeline untouched, got %+v", got)
	}
}
