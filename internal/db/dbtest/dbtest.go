// Package dbtest opens throwaway in-memory SQLite databases with the full
// schema applied, and seeds catalog fixtures for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	internaldb "assesscore/internal/db"
)

var seq atomic.Int64

type OptionSeed struct {
	Key     string
	Correct bool
	Points  *int
}

type QuestionSeed struct {
	ID         int64
	Kind       string
	Difficulty string
	Options    []OptionSeed
}

// OpenSQLite returns a migrated in-memory database closed at test cleanup.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:assesscore_test_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", seq.Add(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := internaldb.Open(ctx, internaldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := internaldb.Migrate(ctx, conn, internaldb.DriverSQLite); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedTest inserts a test and its questions. Question positions follow the
// order given; option positions follow each Options slice.
func SeedTest(t *testing.T, conn *sql.DB, testID int64, active bool, questions ...QuestionSeed) {
	t.Helper()
	ctx := context.Background()

	if _, err := conn.ExecContext(ctx, `INSERT INTO tests (id, title, is_active) VALUES (?1, ?2, ?3)`,
		testID, fmt.Sprintf("Test %d", testID), active); err != nil {
		t.Fatalf("seed test %d: %v", testID, err)
	}

	for i, q := range questions {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO questions (id, test_id, kind, position, difficulty)
			VALUES (?1, ?2, ?3, ?4, ?5)
		`, q.ID, testID, q.Kind, i+1, q.Difficulty); err != nil {
			t.Fatalf("seed question %d: %v", q.ID, err)
		}
		for j, o := range q.Options {
			var points interface{}
			if o.Points != nil {
				points = *o.Points
			}
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO question_options (question_id, option_key, position, is_correct, points)
				VALUES (?1, ?2, ?3, ?4, ?5)
			`, q.ID, o.Key, j+1, o.Correct, points); err != nil {
				t.Fatalf("seed option %s of question %d: %v", o.Key, q.ID, err)
			}
		}
	}
}

// Standard builds a four-option multiple-choice question with the given key correct.
func Standard(id int64, difficulty, correct string) QuestionSeed {
	opts := make([]OptionSeed, 0, 4)
	for _, k := range []string{"A", "B", "C", "D"} {
		opts = append(opts, OptionSeed{Key: k, Correct: k == correct})
	}
	return QuestionSeed{ID: id, Kind: "standard", Difficulty: difficulty, Options: opts}
}

// Judgment builds a judgment question from key/points pairs in option order.
func Judgment(id int64, difficulty string, pairs ...interface{}) QuestionSeed {
	opts := make([]OptionSeed, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		pts, _ := pairs[i+1].(int)
		p := pts
		opts = append(opts, OptionSeed{Key: key, Points: &p})
	}
	return QuestionSeed{ID: id, Kind: "judgment", Difficulty: difficulty, Options: opts}
}

func CountRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
