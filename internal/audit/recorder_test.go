package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRecordFillsIdentityAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recorder := NewRecorder(WithClock(func() time.Time { return fixed }))
	store := NewMemoryStore()

	rec := recorder.Record(context.Background(), store, &Record{
		CallerID:  "u1",
		Action:    "profile.update",
		RequestID: "req-1",
		Endpoint:  "/v1/profile",
		Method:    "PUT",
	})
	if rec.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !rec.OccurredAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", rec.OccurredAt)
	}
	records := store.Records()
	if len(records) != 1 || records[0].Action != "profile.update" {
		t.Fatalf("expected one stored record, got %+v", records)
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, *Record) error {
	return errors.New("disk full")
}

func TestRecordSwallowsPersistenceFailure(t *testing.T) {
	recorder := NewRecorder()
	// Record must not panic or surface the error: the audit trail is
	// best-effort relative to the primary operation.
	rec := recorder.Record(context.Background(), failingStore{}, &Record{
		Action:    "user.delete",
		RequestID: "req-2",
	})
	if rec == nil || rec.ID == "" {
		t.Fatalf("record should still be returned on persistence failure")
	}
}

func TestRecordAllowsAnonymousCaller(t *testing.T) {
	recorder := NewRecorder()
	store := NewMemoryStore()
	recorder.Record(context.Background(), store, &Record{
		Action:    "auth.signin.failed",
		RequestID: "req-3",
		IPAddress: "10.0.0.9",
	})
	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("expected one record")
	}
	if records[0].CallerID != "" {
		t.Fatalf("pre-auth events carry no caller id")
	}
}

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`insert into audit_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Append(context.Background(), &Record{
		ID:         "01J",
		OccurredAt: time.Now().UTC(),
		CallerID:   "u1",
		Action:     "user.update",
		EntityType: "user",
		EntityID:   "u2",
		RequestID:  "req-4",
		Endpoint:   "/v1/users/u2",
		Method:     "PUT",
		StatusCode: 200,
		StateBefore: map[string]any{
			"role": "user",
		},
		StateAfter: map[string]any{
			"role": "manager",
		},
		IPAddress: "10.0.0.1",
		UserAgent: "test",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
