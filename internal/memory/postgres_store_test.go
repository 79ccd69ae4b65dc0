package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreAppend(t *testing.T) {
	store, mock := newMockStore(t)
	msgID := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs(msgID, "c1", RoleUser, "oi", "5511999990000", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), "c1", Message{
		ID:        msgID.String(),
		Role:      RoleUser,
		Content:   "oi",
		Timestamp: ts,
		Metadata:  map[string]string{"sender": "5511999990000"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreAppendRequiresConversation(t *testing.T) {
	store, _ := newMockStore(t)
	if err := store.Append(context.Background(), "  ", Message{Role: RoleUser, Content: "oi"}); err == nil {
		t.Fatal("expected error for blank conversation id")
	}
}

func TestPostgresStoreGetRecentReversesToChronological(t *testing.T) {
	store, mock := newMockStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The query returns newest-first.
	rows := sqlmock.NewRows([]string{"id", "role", "content", "sender", "created_at"}).
		AddRow(uuid.New(), RoleAssistant, "resposta", "", base.Add(2*time.Minute)).
		AddRow(uuid.New(), RoleUser, "pergunta", "551199", base.Add(time.Minute)).
		AddRow(uuid.New(), RoleUser, "oi", "551199", base)

	mock.ExpectQuery("SELECT id, role, content").
		WithArgs("c1").
		WillReturnRows(rows)

	got, err := store.GetRecent(context.Background(), "c1", 3, MessageFilter{})
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 3 || got[0].Content != "oi" || got[2].Content != "resposta" {
		t.Fatalf("order wrong: %+v", got)
	}
	if got[0].Metadata["sender"] != "551199" {
		t.Fatalf("sender metadata lost: %+v", got[0])
	}
}

func TestPostgresStoreGetRecentRoleFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, role, content").
		WithArgs("c1", RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "content", "sender", "created_at"}))

	if _, err := store.GetRecent(context.Background(), "c1", 10, MessageFilter{Role: RoleUser}); err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreSetValueUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO memory_entries").
		WithArgs("c1", "current", CategoryStage, "closing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetValue(context.Background(), "c1", "current", "closing", CategoryStage); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreGetLatestNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT key, category, value").
		WithArgs("c1", CategoryStage).
		WillReturnRows(sqlmock.NewRows([]string{"key", "category", "value", "updated_at"}))

	_, err := store.GetLatest(context.Background(), "c1", CategoryStage)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM memory_entries").
		WithArgs("c1", "current", CategoryActiveUpsell).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), "c1", "current", CategoryActiveUpsell); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
