package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the catalog and ledger tables when missing. Statements run
// one at a time; the pgx stdlib driver does not accept multi-statement strings
// with the extended protocol.
func Migrate(ctx context.Context, conn *sql.DB, driver Driver) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported db driver %q", driver)
	}

	for i, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tests (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		title TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		test_id BIGINT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('standard', 'judgment')),
		position INTEGER NOT NULL,
		difficulty TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS questions_test_position_idx ON questions (test_id, position)`,
	`CREATE TABLE IF NOT EXISTS question_options (
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		option_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE,
		points INTEGER,
		PRIMARY KEY (question_id, option_key)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		candidate_id BIGINT NOT NULL,
		test_id BIGINT NOT NULL REFERENCES tests(id),
		submitted_at BIGINT NOT NULL,
		time_taken_seconds BIGINT NOT NULL,
		answers_json TEXT NOT NULL,
		answers_digest TEXT NOT NULL,
		metadata_json TEXT,
		is_complete BOOLEAN NOT NULL,
		CONSTRAINT submissions_candidate_test_key UNIQUE (candidate_id, test_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submission_answers (
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		selected_option TEXT,
		is_correct BOOLEAN,
		judgment_points INTEGER,
		points_awarded DOUBLE PRECISION NOT NULL,
		max_points DOUBLE PRECISION NOT NULL,
		time_taken_seconds BIGINT,
		reason TEXT NOT NULL,
		PRIMARY KEY (submission_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submission_scores (
		submission_id TEXT PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
		raw_score DOUBLE PRECISION NOT NULL,
		max_possible_score DOUBLE PRECISION NOT NULL,
		percentage_score DOUBLE PRECISION NOT NULL,
		correct_answers INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		breakdown_json TEXT NOT NULL,
		grade_letter TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		calculated_at BIGINT NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tests (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY,
		test_id INTEGER NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('standard', 'judgment')),
		position INTEGER NOT NULL,
		difficulty TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS questions_test_position_idx ON questions (test_id, position)`,
	`CREATE TABLE IF NOT EXISTS question_options (
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		option_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT 0,
		points INTEGER,
		PRIMARY KEY (question_id, option_key)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		candidate_id INTEGER NOT NULL,
		test_id INTEGER NOT NULL REFERENCES tests(id),
		submitted_at INTEGER NOT NULL,
		time_taken_seconds INTEGER NOT NULL,
		answers_json TEXT NOT NULL,
		answers_digest TEXT NOT NULL,
		metadata_json TEXT,
		is_complete BOOLEAN NOT NULL,
		CONSTRAINT submissions_candidate_test_key UNIQUE (candidate_id, test_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submission_answers (
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		question_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		selected_option TEXT,
		is_correct BOOLEAN,
		judgment_points INTEGER,
		points_awarded REAL NOT NULL,
		max_points REAL NOT NULL,
		time_taken_seconds INTEGER,
		reason TEXT NOT NULL,
		PRIMARY KEY (submission_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submission_scores (
		submission_id TEXT PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
		raw_score REAL NOT NULL,
		max_possible_score REAL NOT NULL,
		percentage_score REAL NOT NULL,
		correct_answers INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		breakdown_json TEXT NOT NULL,
		grade_letter TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		calculated_at INTEGER NOT NULL
	)`,
}
