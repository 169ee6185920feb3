package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM submissions WHERE candidate_id = $1 AND test_id = $2 AND note <> '$x'`

	if got := DriverPostgres.Rebind(q); got != q {
		t.Fatalf("postgres query should be unchanged, got %s", got)
	}
	want := `SELECT id FROM submissions WHERE candidate_id = ?1 AND test_id = ?2 AND note <> '$x'`
	if got := DriverSQLite.Rebind(q); got != want {
		t.Fatalf("sqlite rebind mismatch\n got=%s\nwant=%s", got, want)
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		raw     string
		want    Driver
		wantErr bool
	}{
		{raw: "", want: DriverPostgres},
		{raw: "postgres", want: DriverPostgres},
		{raw: "PGX", want: DriverPostgres},
		{raw: " sqlite ", want: DriverSQLite},
		{raw: "sqlite3", want: DriverSQLite},
		{raw: "mysql", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseDriver(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	err := fmt.Errorf("insert submission: %w", &pgconn.PgError{Code: "23505", ConstraintName: "submissions_candidate_test_key"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if got := ConstraintName(err); got != "submissions_candidate_test_key" {
		t.Fatalf("unexpected constraint name %q", got)
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation must not be reported as unique")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatalf("plain errors are not unique violations")
	}
}

func TestMigrateSQLiteIdempotentAndUniquePair(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := Open(ctx, DriverSQLite, "file:db_pkg_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := Migrate(ctx, conn, DriverSQLite); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, conn, DriverSQLite); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}

	if _, err := conn.ExecContext(ctx, `INSERT INTO tests (id, title, is_active) VALUES (1, 'T', 1)`); err != nil {
		t.Fatalf("insert test: %v", err)
	}
	insert := DriverSQLite.Rebind(`
		INSERT INTO submissions (id, candidate_id, test_id, submitted_at, time_taken_seconds, answers_json, answers_digest, is_complete)
		VALUES ($1, $2, $3, $4, $5, '{}', 'd', $6)
	`)
	if _, err := conn.ExecContext(ctx, insert, "s-1", 7, 1, time.Now().UnixMilli(), 30, true); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err = conn.ExecContext(ctx, insert, "s-2", 7, 1, time.Now().UnixMilli(), 30, true)
	if err == nil {
		t.Fatalf("expected unique violation on duplicate (candidate, test)")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if got := ConstraintName(err); got != "submissions.candidate_id, submissions.test_id" {
		t.Fatalf("unexpected sqlite constraint %q", got)
	}

	_, err = conn.ExecContext(ctx, insert, "s-1", 8, 1, time.Now().UnixMilli(), 30, true)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected primary key violation, got %v", err)
	}
	if got := ConstraintName(err); got != "submissions.id" {
		t.Fatalf("unexpected sqlite constraint for primary key %q", got)
	}
}

func TestMigrateUnknownDriver(t *testing.T) {
	if err := Migrate(context.Background(), nil, Driver("oracle")); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
