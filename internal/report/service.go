// Package report exposes stored scores to downstream consumers such as the
// job-recommendation subsystem. It only reads frozen values.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	internaldb "assesscore/internal/db"
)

var ErrScoreNotFound = errors.New("score not found")

type Service struct {
	db      *sql.DB
	dialect internaldb.Driver
}

type CandidateScore struct {
	SubmissionID    string    `json:"submission_id"`
	CandidateID     int64     `json:"candidate_id"`
	TestID          int64     `json:"test_id"`
	PercentageScore float64   `json:"percentage_score"`
	GradeLetter     string    `json:"grade_letter"`
	Passed          bool      `json:"passed"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

func NewService(db *sql.DB, dialect internaldb.Driver) *Service {
	return &Service{db: db, dialect: dialect}
}

const scoreSelect = `
	SELECT
		s.id,
		s.candidate_id,
		s.test_id,
		sc.percentage_score,
		sc.grade_letter,
		sc.passed,
		s.submitted_at
	FROM submissions s
	JOIN submission_scores sc ON sc.submission_id = s.id
`

func (s *Service) CandidateScores(ctx context.Context, candidateID int64) ([]CandidateScore, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(scoreSelect+`
		WHERE s.candidate_id = $1
		ORDER BY s.submitted_at DESC, s.test_id
	`), candidateID)
	if err != nil {
		return nil, fmt.Errorf("query candidate scores: %w", err)
	}
	defer rows.Close()

	out := make([]CandidateScore, 0)
	for rows.Next() {
		var (
			cs          CandidateScore
			submittedAt int64
		)
		if err := rows.Scan(&cs.SubmissionID, &cs.CandidateID, &cs.TestID, &cs.PercentageScore,
			&cs.GradeLetter, &cs.Passed, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan candidate score: %w", err)
		}
		cs.SubmittedAt = time.UnixMilli(submittedAt).UTC()
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate scores: %w", err)
	}
	return out, nil
}

func (s *Service) ScoreFor(ctx context.Context, candidateID, testID int64) (*CandidateScore, error) {
	var (
		cs          CandidateScore
		submittedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(scoreSelect+`
		WHERE s.candidate_id = $1 AND s.test_id = $2
	`), candidateID, testID).Scan(&cs.SubmissionID, &cs.CandidateID, &cs.TestID, &cs.PercentageScore,
		&cs.GradeLetter, &cs.Passed, &submittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("load candidate score: %w", err)
	}
	cs.SubmittedAt = time.UnixMilli(submittedAt).UTC()
	return &cs, nil
}
