package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStoreHistory(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for i, text := range []string{"oi", "tudo bem?", "quero saber do plano"} {
		role := RoleUser
		if i == 1 {
			role = RoleAssistant
		}
		if err := store.Append(ctx, "c1", Message{Role: role, Content: text}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := store.GetRecent(ctx, "c1", 10, MessageFilter{})
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(all) != 3 || all[0].Content != "oi" || all[2].Content != "quero saber do plano" {
		t.Fatalf("history = %+v", all)
	}

	users, err := store.GetRecent(ctx, "c1", 10, MessageFilter{Role: RoleUser})
	if err != nil {
		t.Fatalf("GetRecent filtered: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("user messages = %d, want 2", len(users))
	}

	tail, err := store.GetRecent(ctx, "c1", 2, MessageFilter{})
	if err != nil {
		t.Fatalf("GetRecent limited: %v", err)
	}
	if len(tail) != 2 || tail[0].Content != "tudo bem?" {
		t.Fatalf("tail = %+v", tail)
	}
}

func TestInMemoryStoreEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "c1", CategoryStage); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing entry err = %v, want ErrNotFound", err)
	}

	store.SetValue(ctx, "c1", "current", "greeting", CategoryStage)
	now = now.Add(time.Minute)
	store.SetValue(ctx, "c1", "current", "qualification", CategoryStage)

	entry, err := store.GetLatest(ctx, "c1", CategoryStage)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if entry.Value != "qualification" {
		t.Fatalf("latest = %q, want qualification", entry.Value)
	}

	store.SetValue(ctx, "c1", "pro_plan", "{}", CategoryUpsellRejected)
	entries, err := store.GetAll(ctx, "c1", EntryFilter{Category: CategoryUpsellRejected})
	if err != nil || len(entries) != 1 || entries[0].Key != "pro_plan" {
		t.Fatalf("GetAll = %+v (err=%v)", entries, err)
	}

	if err := store.Delete(ctx, "c1", "pro_plan", CategoryUpsellRejected); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, _ = store.GetAll(ctx, "c1", EntryFilter{Category: CategoryUpsellRejected})
	if len(entries) != 0 {
		t.Fatalf("entry survived delete: %+v", entries)
	}
}

func TestInMemoryStoreConversationIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Append(ctx, "c1", Message{Role: RoleUser, Content: "oi"})
	store.SetValue(ctx, "c1", "current", "closing", CategoryStage)

	if msgs, _ := store.GetRecent(ctx, "c2", 10, MessageFilter{}); len(msgs) != 0 {
		t.Fatalf("c2 sees c1 history: %+v", msgs)
	}
	if _, err := store.GetLatest(ctx, "c2", CategoryStage); !errors.Is(err, ErrNotFound) {
		t.Fatalf("c2 sees c1 entries: %v", err)
	}
}
