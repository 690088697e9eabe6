package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"modernc.org/sqlite"
)

func TestRetryOnConflictRetriesBusyErrors(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "save", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	sentinel := errors.New("constraint failed")
	calls := 0
	err := RetryOnConflict(context.Background(), "save", 3, time.Millisecond, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "save", 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 2 {
		t.Fatalf("expected failure after 2 calls, got err=%v calls=%d", err, calls)
	}
	if !IsConflict(err) {
		t.Fatalf("wrapped error should still be a conflict: %v", err)
	}
}

func TestIsConflictMessageFallback(t *testing.T) {
	if IsConflict(nil) {
		t.Fatal("nil is not a conflict")
	}
	if !IsConflict(errors.New("SQLITE_BUSY")) || !IsConflict(errors.New("database is locked")) {
		t.Fatal("expected busy/locked detection from text")
	}
	if IsConflict(errors.New("UNIQUE constraint failed")) {
		t.Fatal("constraint failures are not conflicts")
	}
}

func TestIsConflictClassifiesDriverBusy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "busy.db")

	holder, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if _, err := holder.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	conn, err := holder.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatal(err)
	}
	defer conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck

	other, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)")
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	_, err = other.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)")
	if err == nil {
		t.Fatal("expected the exclusive lock to block the write")
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected a driver error, got %T: %v", err, err)
	}
	if !IsConflict(fmt.Errorf("insert: %w", err)) {
		t.Fatalf("expected a conflict, got code %d: %v", se.Code(), err)
	}
}
