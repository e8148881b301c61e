package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Silence-XiXi/queue-system/internal/store"
)

func TestIsSerializationFailure(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"40001", true},
		{"40P01", true},
		{"55P03", false},
		{"23505", false},
	}

	for _, tc := range cases {
		err := &pgconn.PgError{Code: tc.code}
		if got := isSerializationFailure(err); got != tc.want {
			t.Fatalf("isSerializationFailure(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}

	if isSerializationFailure(errors.New("plain error")) {
		t.Fatal("plain errors must not count as serialization failures")
	}
	if isSerializationFailure(nil) {
		t.Fatal("nil must not count as a serialization failure")
	}
}

func TestClassifyLockError(t *testing.T) {
	for _, code := range []string{"55P03", "40001", "40P01"} {
		err := classifyLockError(&pgconn.PgError{Code: code})
		if !errors.Is(err, store.ErrDispatchConflict) {
			t.Fatalf("code %s: expected ErrDispatchConflict, got %v", code, err)
		}
	}

	plain := errors.New("broken pipe")
	if got := classifyLockError(plain); got != plain {
		t.Fatalf("expected unrelated errors passed through, got %v", got)
	}

	unique := &pgconn.PgError{Code: "23505"}
	if got := classifyLockError(unique); !errors.Is(got, unique) || errors.Is(got, store.ErrDispatchConflict) {
		t.Fatalf("expected constraint errors passed through, got %v", got)
	}
}

func TestTicketNumberFormat(t *testing.T) {
	cases := []struct {
		prefix string
		seq    int
		want   string
	}{
		{"A", 1, "A001"},
		{"A", 42, "A042"},
		{"B", 999, "B999"},
		{"C", 1000, "C1000"},
	}

	for _, tc := range cases {
		got := fmt.Sprintf("%s%0*d", tc.prefix, ticketNumberPad, tc.seq)
		if got != tc.want {
			t.Fatalf("prefix %s seq %d = %s, want %s", tc.prefix, tc.seq, got, tc.want)
		}
	}
}

func TestNullHelpers(t *testing.T) {
	if nullTimePtr(sql.NullTime{}) != nil {
		t.Fatal("invalid NullTime must map to nil")
	}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if got := nullTimePtr(sql.NullTime{Time: now, Valid: true}); got == nil || !got.Equal(now) {
		t.Fatalf("expected %s, got %v", now, got)
	}

	if nullInt64Ptr(sql.NullInt64{}) != nil {
		t.Fatal("invalid NullInt64 must map to nil")
	}
	if got := nullInt64Ptr(sql.NullInt64{Int64: 7, Valid: true}); got == nil || *got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}

	if nullStringPtr(sql.NullString{}) != nil {
		t.Fatal("invalid NullString must map to nil")
	}
	if got := nullStringPtr(sql.NullString{String: "A001", Valid: true}); got == nil || *got != "A001" {
		t.Fatalf("expected A001, got %v", got)
	}
}
