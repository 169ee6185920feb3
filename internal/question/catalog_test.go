package question

import (
	"context"
	"errors"
	"testing"

	internaldb "assesscore/internal/db"
	"assesscore/internal/db/dbtest"
)

func TestStoreGetTest(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	dbtest.SeedTest(t, conn, 1, true)
	dbtest.SeedTest(t, conn, 2, false)
	store := NewStore(conn, internaldb.DriverSQLite)

	got, err := store.GetTest(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsActive || got.Title != "Test 1" {
		t.Fatalf("unexpected test: %+v", got)
	}

	inactive, err := store.GetTest(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inactive.IsActive {
		t.Fatalf("expected test 2 inactive")
	}

	if _, err := store.GetTest(context.Background(), 99); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}

func TestStoreQuestionsForTestBuildsVariants(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	judgment := dbtest.Judgment(11, "medium", "A", -1, "B", 1, "C", 2, "D", 0)
	// Legacy correct flag on a judgment option must not leak into scoring.
	judgment.Options[0].Correct = true
	dbtest.SeedTest(t, conn, 1, true,
		dbtest.Standard(10, "easy", "B"),
		judgment,
		dbtest.QuestionSeed{ID: 12, Kind: "standard", Difficulty: "Hard"},
	)
	dbtest.SeedTest(t, conn, 2, true, dbtest.Standard(20, "easy", "A"))

	store := NewStore(conn, internaldb.DriverSQLite)
	qs, err := store.QuestionsForTest(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}

	std, ok := qs[0].Scoring.(Standard)
	if !ok || std.CorrectOption != "B" {
		t.Fatalf("expected standard with correct B, got %#v", qs[0].Scoring)
	}
	if len(qs[0].Options) != 4 || qs[0].Options[0].Key != "A" {
		t.Fatalf("unexpected options order: %+v", qs[0].Options)
	}

	j, ok := qs[1].Scoring.(Judgment)
	if !ok {
		t.Fatalf("expected judgment variant, got %#v", qs[1].Scoring)
	}
	if qs[1].Kind() != KindJudgment || qs[1].Difficulty != DifficultyMedium {
		t.Fatalf("unexpected judgment metadata: %+v", qs[1])
	}
	if v, _ := j.Lookup("c"); v != 2 {
		t.Fatalf("expected C=2, got %d", v)
	}
	if v, _ := j.Lookup("A"); v != -1 {
		t.Fatalf("expected A=-1, got %d", v)
	}

	if qs[2].Difficulty != DifficultyHard {
		t.Fatalf("expected difficulty normalized to hard, got %q", qs[2].Difficulty)
	}
	if len(qs[2].Options) != 0 {
		t.Fatalf("expected no options, got %+v", qs[2].Options)
	}
	if std, _ := qs[2].Scoring.(Standard); std.CorrectOption != "" {
		t.Fatalf("expected empty correct option, got %q", std.CorrectOption)
	}

	empty, err := store.QuestionsForTest(context.Background(), 77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestStorePerOptionTable(t *testing.T) {
	conn := dbtest.OpenSQLite(t)
	dbtest.SeedTest(t, conn, 1, true,
		dbtest.Standard(10, "easy", "A"),
		dbtest.Judgment(11, "hard", "A", -1, "B", 1, "C", 2, "D", 0),
	)
	store := NewStore(conn, internaldb.DriverSQLite)

	table, err := store.PerOptionTable(context.Background(), 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int{"A": -1, "B": 1, "C": 2, "D": 0}
	if len(table) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), table)
	}
	for k, v := range want {
		if table[k] != v {
			t.Fatalf("expected %s=%d, got %d", k, v, table[k])
		}
	}

	std, err := store.PerOptionTable(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if std != nil {
		t.Fatalf("expected nil table for standard question, got %v", std)
	}

	if _, err := store.PerOptionTable(context.Background(), 404); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}
