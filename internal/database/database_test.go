package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"no rows", pgx.ErrNoRows, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("creating user: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnconfiguredDB(t *testing.T) {
	db := New(nil)
	ctx := context.Background()

	if err := db.Ping(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Ping: expected ErrNotConfigured, got %v", err)
	}

	called := false
	err := db.InTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotConfigured) || called {
		t.Errorf("InTx: expected ErrNotConfigured without running fn, got %v (called %v)", err, called)
	}

	var n int
	err = db.Conn(ctx).QueryRow(ctx, "SELECT 1").Scan(&n)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("QueryRow: expected ErrNotConfigured, got %v", err)
	}
	if _, err := db.Conn(ctx).Exec(ctx, "SELECT 1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Exec: expected ErrNotConfigured, got %v", err)
	}
	if !IsUnavailable(fmt.Errorf("getting user: %w", err)) {
		t.Error("wrapped ErrNotConfigured should count as unavailable")
	}

	if total, idle, acquired := db.Stat(); total+idle+acquired != 0 {
		t.Errorf("expected zero pool stats, got %d/%d/%d", total, idle, acquired)
	}
}

func TestIsUnavailable(t *testing.T) {
	if IsUnavailable(errors.New("boom")) {
		t.Error("plain errors are not unavailability")
	}
	if IsUnavailable(pgx.ErrNoRows) {
		t.Error("no rows is not unavailability")
	}
	if !IsUnavailable(&pgconn.ConnectError{}) {
		t.Error("connect errors mean the database is unavailable")
	}
}
