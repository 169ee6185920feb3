package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	internaldb "assesscore/internal/db"
	"assesscore/internal/question"
	"assesscore/internal/scoring"
)

const (
	reserveSavepoint = "submission_reserve"

	pairConstraint    = "submissions_candidate_test_key"
	sqlitePairColumns = "submissions.candidate_id, submissions.test_id"
)

// Ledger is the storage side of exactly-once grading. Every method runs on
// the handle it is given, so a caller's transaction covers reserve and record.
type Ledger struct {
	dialect internaldb.Driver
}

func NewLedger(dialect internaldb.Driver) *Ledger {
	return &Ledger{dialect: dialect}
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// TryReserve claims (candidate, test) for sub inside tx. An existing accepted
// submission, whether found up front or surfaced by the unique constraint on
// insert, comes back as a Conflict and tx stays usable.
func (l *Ledger) TryReserve(ctx context.Context, tx *sql.Tx, sub Submission) (Reservation, error) {
	existing, err := l.FindByPair(ctx, tx, sub.CandidateID, sub.TestID)
	switch {
	case err == nil:
		return Reservation{Conflict: conflictFrom(existing, sub.AnswersDigest)}, nil
	case !errors.Is(err, ErrSubmissionNotFound):
		return Reservation{}, err
	}
	return l.insertReservation(ctx, tx, sub)
}

// insertReservation inserts sub under a savepoint. Losing a race on the
// (candidate, test) constraint rolls back to the savepoint and reports the
// committed winner.
func (l *Ledger) insertReservation(ctx context.Context, tx *sql.Tx, sub Submission) (Reservation, error) {
	answersJSON, err := json.Marshal(sub.Answers)
	if err != nil {
		return Reservation{}, fmt.Errorf("encode answers: %w", err)
	}
	var metadata interface{}
	if len(sub.Metadata) > 0 {
		metadata = string(sub.Metadata)
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT `+reserveSavepoint); err != nil {
		return Reservation{}, fmt.Errorf("create reserve savepoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, l.dialect.Rebind(`
		INSERT INTO submissions (
			id,
			candidate_id,
			test_id,
			submitted_at,
			time_taken_seconds,
			answers_json,
			answers_digest,
			metadata_json,
			is_complete
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`), sub.ID, sub.CandidateID, sub.TestID, sub.SubmittedAt.UnixMilli(), sub.TimeTakenSeconds,
		string(answersJSON), sub.AnswersDigest, metadata, sub.IsComplete)
	if err != nil {
		if !isPairViolation(err) {
			return Reservation{}, fmt.Errorf("insert submission: %w", err)
		}
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT `+reserveSavepoint); rbErr != nil {
			return Reservation{}, fmt.Errorf("rollback reserve savepoint: %w", rbErr)
		}
		winner, findErr := l.FindByPair(ctx, tx, sub.CandidateID, sub.TestID)
		if findErr != nil {
			return Reservation{}, fmt.Errorf("load conflicting submission: %w", findErr)
		}
		return Reservation{Conflict: conflictFrom(winner, sub.AnswersDigest)}, nil
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT `+reserveSavepoint); err != nil {
		return Reservation{}, fmt.Errorf("release reserve savepoint: %w", err)
	}

	reserved := sub
	return Reservation{Reserved: &reserved}, nil
}

// isPairViolation is true only for the (candidate, test) constraint, so an
// id collision stays a storage error.
func isPairViolation(err error) bool {
	if !internaldb.IsUniqueViolation(err) {
		return false
	}
	switch internaldb.ConstraintName(err) {
	case pairConstraint, sqlitePairColumns:
		return true
	}
	return false
}

// Record writes the graded rows and the score for a reserved submission.
func (l *Ledger) Record(ctx context.Context, tx *sql.Tx, submissionID string, answers []Answer, score Score) error {
	insertAnswer := l.dialect.Rebind(`
		INSERT INTO submission_answers (
			submission_id,
			question_id,
			kind,
			difficulty,
			selected_option,
			is_correct,
			judgment_points,
			points_awarded,
			max_points,
			time_taken_seconds,
			reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`)
	for _, a := range answers {
		if _, err := tx.ExecContext(ctx, insertAnswer,
			submissionID,
			a.QuestionID,
			string(a.Kind),
			string(a.Difficulty),
			nullableString(a.SelectedOption),
			nullableBool(a.IsCorrect),
			nullableInt(a.JudgmentPoints),
			a.PointsAwarded,
			a.MaxPoints,
			nullableInt64(a.TimeTakenSeconds),
			a.Reason,
		); err != nil {
			return fmt.Errorf("insert submission_answer %d: %w", a.QuestionID, err)
		}
	}

	breakdown, err := json.Marshal(score.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	if _, err := tx.ExecContext(ctx, l.dialect.Rebind(`
		INSERT INTO submission_scores (
			submission_id,
			raw_score,
			max_possible_score,
			percentage_score,
			correct_answers,
			total_questions,
			breakdown_json,
			grade_letter,
			passed,
			calculated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`), submissionID, score.RawScore, score.MaxPossibleScore, score.PercentageScore,
		score.CorrectAnswers, score.TotalQuestions, string(breakdown), score.GradeLetter,
		score.Passed, score.CalculatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert submission_score: %w", err)
	}
	return nil
}

const submissionColumns = `
	s.id,
	s.candidate_id,
	s.test_id,
	s.submitted_at,
	s.time_taken_seconds,
	s.answers_json,
	s.answers_digest,
	s.metadata_json,
	s.is_complete,
	sc.raw_score,
	sc.max_possible_score,
	sc.percentage_score,
	sc.correct_answers,
	sc.total_questions,
	sc.breakdown_json,
	sc.grade_letter,
	sc.passed,
	sc.calculated_at
`

func (l *Ledger) Find(ctx context.Context, q queryable, submissionID string) (*Submission, error) {
	row := q.QueryRowContext(ctx, l.dialect.Rebind(`
		SELECT `+submissionColumns+`
		FROM submissions s
		LEFT JOIN submission_scores sc ON sc.submission_id = s.id
		WHERE s.id = $1
	`), submissionID)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, err
	}

	items, err := l.loadAnswers(ctx, q, sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Items = items
	return sub, nil
}

func (l *Ledger) FindByPair(ctx context.Context, q queryable, candidateID, testID int64) (*Submission, error) {
	row := q.QueryRowContext(ctx, l.dialect.Rebind(`
		SELECT `+submissionColumns+`
		FROM submissions s
		LEFT JOIN submission_scores sc ON sc.submission_id = s.id
		WHERE s.candidate_id = $1 AND s.test_id = $2
	`), candidateID, testID)
	return scanSubmission(row)
}

func (l *Ledger) loadAnswers(ctx context.Context, q queryable, submissionID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, l.dialect.Rebind(`
		SELECT
			question_id,
			kind,
			difficulty,
			selected_option,
			is_correct,
			judgment_points,
			points_awarded,
			max_points,
			time_taken_seconds,
			reason
		FROM submission_answers
		WHERE submission_id = $1
		ORDER BY question_id
	`), submissionID)
	if err != nil {
		return nil, fmt.Errorf("query submission_answers: %w", err)
	}
	defer rows.Close()

	out := make([]Answer, 0)
	for rows.Next() {
		var (
			a          Answer
			kind       string
			difficulty string
			selected   sql.NullString
			isCorrect  sql.NullBool
			points     sql.NullInt64
			itemTime   sql.NullInt64
		)
		if err := rows.Scan(&a.QuestionID, &kind, &difficulty, &selected, &isCorrect, &points,
			&a.PointsAwarded, &a.MaxPoints, &itemTime, &a.Reason); err != nil {
			return nil, fmt.Errorf("scan submission_answer: %w", err)
		}
		a.Kind = question.Kind(kind)
		a.Difficulty = question.Difficulty(difficulty)
		if selected.Valid {
			v := selected.String
			a.SelectedOption = &v
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			a.IsCorrect = &v
		}
		if points.Valid {
			v := int(points.Int64)
			a.JudgmentPoints = &v
		}
		if itemTime.Valid {
			v := itemTime.Int64
			a.TimeTakenSeconds = &v
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission_answers: %w", err)
	}
	return out, nil
}

type submissionRow struct {
	ID               string
	CandidateID      int64
	TestID           int64
	SubmittedAt      int64
	TimeTakenSeconds int64
	AnswersJSON      string
	AnswersDigest    string
	MetadataJSON     sql.NullString
	IsComplete       bool
	RawScore         sql.NullFloat64
	MaxPossibleScore sql.NullFloat64
	PercentageScore  sql.NullFloat64
	CorrectAnswers   sql.NullInt64
	TotalQuestions   sql.NullInt64
	BreakdownJSON    sql.NullString
	GradeLetter      sql.NullString
	Passed           sql.NullBool
	CalculatedAt     sql.NullInt64
}

func scanSubmission(row *sql.Row) (*Submission, error) {
	var r submissionRow
	if err := row.Scan(
		&r.ID,
		&r.CandidateID,
		&r.TestID,
		&r.SubmittedAt,
		&r.TimeTakenSeconds,
		&r.AnswersJSON,
		&r.AnswersDigest,
		&r.MetadataJSON,
		&r.IsComplete,
		&r.RawScore,
		&r.MaxPossibleScore,
		&r.PercentageScore,
		&r.CorrectAnswers,
		&r.TotalQuestions,
		&r.BreakdownJSON,
		&r.GradeLetter,
		&r.Passed,
		&r.CalculatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}

	sub := &Submission{
		ID:               r.ID,
		CandidateID:      r.CandidateID,
		TestID:           r.TestID,
		SubmittedAt:      time.UnixMilli(r.SubmittedAt).UTC(),
		TimeTakenSeconds: r.TimeTakenSeconds,
		AnswersDigest:    r.AnswersDigest,
		IsComplete:       r.IsComplete,
	}
	if err := json.Unmarshal([]byte(r.AnswersJSON), &sub.Answers); err != nil {
		return nil, fmt.Errorf("decode answers_json: %w", err)
	}
	if r.MetadataJSON.Valid {
		sub.Metadata = json.RawMessage(r.MetadataJSON.String)
	}

	if r.CalculatedAt.Valid {
		score := &Score{
			SubmissionID:     r.ID,
			RawScore:         r.RawScore.Float64,
			MaxPossibleScore: r.MaxPossibleScore.Float64,
			PercentageScore:  r.PercentageScore.Float64,
			CorrectAnswers:   int(r.CorrectAnswers.Int64),
			TotalQuestions:   int(r.TotalQuestions.Int64),
			GradeLetter:      r.GradeLetter.String,
			Passed:           r.Passed.Bool,
			CalculatedAt:     time.UnixMilli(r.CalculatedAt.Int64).UTC(),
			Breakdown:        map[question.Difficulty]scoring.TierBreakdown{},
		}
		if r.BreakdownJSON.Valid && r.BreakdownJSON.String != "" {
			if err := json.Unmarshal([]byte(r.BreakdownJSON.String), &score.Breakdown); err != nil {
				return nil, fmt.Errorf("decode breakdown_json: %w", err)
			}
		}
		sub.Score = score
	}
	return sub, nil
}

func conflictFrom(existing *Submission, digest string) *Conflict {
	c := &Conflict{
		ExistingSubmissionID: existing.ID,
		SubmittedAt:          existing.SubmittedAt,
		SameAnswers:          digest != "" && digest == existing.AnswersDigest,
		Score:                Score{SubmissionID: existing.ID},
	}
	if existing.Score != nil {
		c.Score = *existing.Score
	}
	return c
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
