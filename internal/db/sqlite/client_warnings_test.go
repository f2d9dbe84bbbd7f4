package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/iamwavecut/guardbot/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAddWarningReturnsDurableCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	for i := 1; i <= 3; i++ {
		count, err := client.AddWarning(ctx, &db.Warning{
			ChatID:    -100123,
			UserID:    777,
			Reason:    "spam_phrase",
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("add warning %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("add warning %d: got count %d", i, count)
		}
	}

	count, err := client.CountWarnings(ctx, -100123, 777)
	if err != nil {
		t.Fatalf("count warnings: %v", err)
	}
	if count != 3 {
		t.Fatalf("got count %d, want 3", count)
	}
}

func TestWarningsAreScopedToChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.AddWarning(ctx, &db.Warning{ChatID: -1, UserID: 777, Reason: "lexical", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("add warning: %v", err)
	}

	count, err := client.CountWarnings(ctx, -2, 777)
	if err != nil {
		t.Fatalf("count warnings: %v", err)
	}
	if count != 0 {
		t.Fatalf("warning leaked across chats: count %d", count)
	}
}

func TestRemoveLastWarningDropsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	base := time.Now().Truncate(time.Second)

	for i, reason := range []string{"first", "second", "third"} {
		if _, err := client.AddWarning(ctx, &db.Warning{
			ChatID:    -1,
			UserID:    1,
			Reason:    reason,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("add warning %q: %v", reason, err)
		}
	}

	removed, err := client.RemoveLastWarning(ctx, -1, 1)
	if err != nil || !removed {
		t.Fatalf("remove last: removed %v, err %v", removed, err)
	}

	warnings, err := client.ListWarnings(ctx, -1, 1)
	if err != nil {
		t.Fatalf("list warnings: %v", err)
	}
	if len(warnings) != 2 || warnings[0].Reason != "first" || warnings[1].Reason != "second" {
		t.Fatalf("unexpected remaining warnings: %+v", warnings)
	}
}

func TestRemoveLastWarningOnEmptyHistory(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	removed, err := client.RemoveLastWarning(context.Background(), -1, 1)
	if err != nil {
		t.Fatalf("remove last: %v", err)
	}
	if removed {
		t.Fatal("removal reported on empty history")
	}
}

func TestClearWarnings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	for i := 0; i < 2; i++ {
		if _, err := client.AddWarning(ctx, &db.Warning{ChatID: -1, UserID: 1, Reason: "x", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("add warning: %v", err)
		}
	}
	if err := client.ClearWarnings(ctx, -1, 1); err != nil {
		t.Fatalf("clear warnings: %v", err)
	}
	count, err := client.CountWarnings(ctx, -1, 1)
	if err != nil {
		t.Fatalf("count warnings: %v", err)
	}
	if count != 0 {
		t.Fatalf("got count %d after clear", count)
	}
}
