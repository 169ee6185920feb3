package submission

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	internaldb "assesscore/internal/db"
	"assesscore/internal/question"
	"assesscore/internal/scoring"
)

const defaultTxTimeout = 10 * time.Second

type ServiceConfig struct {
	Policy    scoring.Policy
	Logger    zerolog.Logger
	TxTimeout time.Duration
}

// Service is the single entry point for grading a submission.
type Service struct {
	db        *sql.DB
	catalog   question.Catalog
	ledger    *Ledger
	policy    scoring.Policy
	log       zerolog.Logger
	txTimeout time.Duration
	now       func() time.Time
	newID     func() string
}

func NewService(db *sql.DB, dialect internaldb.Driver, catalog question.Catalog, cfg ServiceConfig) *Service {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	return &Service{
		db:        db,
		catalog:   catalog,
		ledger:    NewLedger(dialect),
		policy:    cfg.Policy,
		log:       cfg.Logger.With().Str("component", "submission").Logger(),
		txTimeout: cfg.TxTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type validated struct {
	questions []question.Question
	answers   map[int64]string
	itemTimes map[int64]int64
	timeTaken int64
	metadata  json.RawMessage
}

// Submit validates, reserves, grades and persists one submission. A pair that
// already holds an accepted submission yields Outcome.Conflict and nothing is
// graded. Storage faults wrap ErrPersistence and leave no rows behind.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Outcome, error) {
	v, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}

	sub := Submission{
		ID:               s.newID(),
		CandidateID:      in.CandidateID,
		TestID:           in.TestID,
		SubmittedAt:      s.now().UTC().Truncate(time.Millisecond),
		TimeTakenSeconds: v.timeTaken,
		Answers:          v.answers,
		AnswersDigest:    Digest(v.answers),
		Metadata:         v.metadata,
		IsComplete:       isComplete(v.questions, v.answers),
	}

	// The write must finish or roll back on its own terms once started.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return nil, persistenceError("begin submit tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := s.ledger.TryReserve(txCtx, tx, sub)
	if err != nil {
		return nil, persistenceError("reserve submission", err)
	}
	if res.Conflict != nil {
		s.log.Info().
			Int64("candidate_id", in.CandidateID).
			Int64("test_id", in.TestID).
			Str("existing_submission_id", res.Conflict.ExistingSubmissionID).
			Bool("same_answers", res.Conflict.SameAnswers).
			Msg("duplicate submission")
		return &Outcome{Conflict: res.Conflict}, nil
	}

	result := s.policy.Aggregate(v.questions, v.answers)
	for _, w := range result.Warnings {
		s.log.Warn().
			Int64("test_id", in.TestID).
			Int64("question_id", w.QuestionID).
			Str("reason", w.Reason).
			Msg(w.Detail)
	}

	score := Score{
		SubmissionID:     sub.ID,
		RawScore:         result.RawScore,
		MaxPossibleScore: result.MaxPossibleScore,
		PercentageScore:  result.PercentageScore,
		CorrectAnswers:   result.CorrectAnswers,
		TotalQuestions:   result.TotalQuestions,
		Breakdown:        result.Breakdown,
		GradeLetter:      result.GradeLetter,
		Passed:           result.Passed,
		CalculatedAt:     s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.ledger.Record(txCtx, tx, sub.ID, answerRows(result.Outcomes, v.itemTimes), score); err != nil {
		return nil, persistenceError("record submission", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceError("commit submission", err)
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Int64("candidate_id", in.CandidateID).
		Int64("test_id", in.TestID).
		Float64("percentage", score.PercentageScore).
		Int("warnings", len(result.Warnings)).
		Msg("submission accepted")

	warnings := result.Warnings
	if warnings == nil {
		warnings = []scoring.Warning{}
	}
	return &Outcome{Accepted: &Accepted{
		SubmissionID: sub.ID,
		SubmittedAt:  sub.SubmittedAt,
		IsComplete:   sub.IsComplete,
		Score:        score,
		Warnings:     warnings,
	}}, nil
}

// GetSubmission returns the stored submission with its frozen score.
func (s *Service) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	if _, err := uuid.Parse(submissionID); err != nil {
		return nil, ErrSubmissionNotFound
	}
	sub, err := s.ledger.Find(ctx, s.db, submissionID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return nil, err
		}
		return nil, persistenceError("find submission", err)
	}
	return sub, nil
}

func (s *Service) GetScore(ctx context.Context, submissionID string) (*Score, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Score == nil {
		return nil, ErrSubmissionNotFound
	}
	return sub.Score, nil
}

func (s *Service) validate(ctx context.Context, in SubmitInput) (*validated, error) {
	verr := &ValidationError{}
	v := &validated{
		answers:   map[int64]string{},
		itemTimes: map[int64]int64{},
	}

	if in.CandidateID <= 0 {
		verr.add("candidate_id", "must be a positive integer")
	}

	if in.TestID <= 0 {
		verr.add("test_id", "must be a positive integer")
	} else {
		test, err := s.catalog.GetTest(ctx, in.TestID)
		switch {
		case errors.Is(err, question.ErrTestNotFound):
			verr.add("test_id", "test %d does not exist", in.TestID)
		case err != nil:
			return nil, persistenceError("load test", err)
		case !test.IsActive:
			verr.add("test_id", "test %d is not active", in.TestID)
		default:
			qs, err := s.catalog.QuestionsForTest(ctx, in.TestID)
			if err != nil {
				return nil, persistenceError("load questions", err)
			}
			v.questions = qs
		}
	}

	if in.Answers == nil {
		verr.add("answers", "is required")
	}
	for _, key := range sortedKeys(in.Answers) {
		id, ok := parseQuestionID(key)
		if !ok {
			verr.add("answers."+key, "question id must be a positive integer")
			continue
		}
		v.answers[id] = in.Answers[key]
	}
	verr.Problems = append(verr.Problems, in.Rejected...)

	for _, key := range sortedKeys(in.ItemTimes) {
		id, ok := parseQuestionID(key)
		if !ok {
			verr.add("item_times."+key, "question id must be a positive integer")
			continue
		}
		secs := in.ItemTimes[key]
		if secs < 0 {
			verr.add("item_times."+key, "must be non-negative")
			continue
		}
		v.itemTimes[id] = secs
	}

	switch {
	case math.IsNaN(in.TimeTakenSeconds) || math.IsInf(in.TimeTakenSeconds, 0):
		verr.add("time_taken_seconds", "must be a number")
	case in.TimeTakenSeconds < 0:
		verr.add("time_taken_seconds", "must be non-negative")
	case in.TimeTakenSeconds != math.Trunc(in.TimeTakenSeconds):
		verr.add("time_taken_seconds", "must be a whole number of seconds")
	case in.TimeTakenSeconds > math.MaxInt32:
		verr.add("time_taken_seconds", "is out of range")
	default:
		v.timeTaken = int64(in.TimeTakenSeconds)
	}

	if meta := bytes.TrimSpace(in.Metadata); len(meta) > 0 && !bytes.Equal(meta, []byte("null")) {
		if meta[0] != '{' || !json.Valid(meta) {
			verr.add("metadata", "must be a JSON object")
		} else {
			v.metadata = append(json.RawMessage(nil), meta...)
		}
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}

	known := make(map[int64]struct{}, len(v.questions))
	for _, q := range v.questions {
		known[q.ID] = struct{}{}
	}
	for id := range v.answers {
		if _, ok := known[id]; !ok {
			s.log.Debug().Int64("test_id", in.TestID).Int64("question_id", id).Msg("ignoring answer for question outside test")
		}
	}
	return v, nil
}

func answerRows(outcomes []scoring.Outcome, itemTimes map[int64]int64) []Answer {
	rows := make([]Answer, 0, len(outcomes))
	for _, o := range outcomes {
		a := Answer{
			QuestionID:     o.QuestionID,
			Kind:           o.Kind,
			Difficulty:     o.Difficulty,
			IsCorrect:      o.IsCorrect,
			JudgmentPoints: o.JudgmentPoints,
			PointsAwarded:  o.Points,
			MaxPoints:      o.MaxPoints,
			Reason:         o.Reason,
		}
		if o.Answered {
			sel := o.Selected
			a.SelectedOption = &sel
		}
		if secs, ok := itemTimes[o.QuestionID]; ok {
			t := secs
			a.TimeTakenSeconds = &t
		}
		rows = append(rows, a)
	}
	return rows
}

func isComplete(questions []question.Question, answers map[int64]string) bool {
	for _, q := range questions {
		if strings.TrimSpace(answers[q.ID]) == "" {
			return false
		}
	}
	return true
}

func parseQuestionID(key string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
