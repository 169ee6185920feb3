package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"assesscore/internal/question"
	"assesscore/internal/scoring"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrPersistence        = errors.New("submission persistence failed")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every structural problem found in one submission.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Problems = append(e.Problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

type SubmitInput struct {
	CandidateID      int64
	TestID           int64
	Answers          map[string]string
	ItemTimes        map[string]int64
	TimeTakenSeconds float64
	Metadata         json.RawMessage
	// Rejected carries answers the transport could not decode. They are
	// reported with the rest of the validation problems.
	Rejected         []FieldError
}

type Score struct {
	SubmissionID     string                                        `json:"submission_id"`
	RawScore         float64                                       `json:"raw_score"`
	MaxPossibleScore float64                                       `json:"max_possible_score"`
	PercentageScore  float64                                       `json:"percentage_score"`
	CorrectAnswers   int                                           `json:"correct_answers"`
	TotalQuestions   int                                           `json:"total_questions"`
	Breakdown        map[question.Difficulty]scoring.TierBreakdown `json:"breakdown"`
	GradeLetter      string                                        `json:"grade_letter"`
	Passed           bool                                          `json:"passed"`
	CalculatedAt     time.Time                                     `json:"calculated_at"`
}

// Answer is one graded row. Points are always derived from the catalog.
type Answer struct {
	QuestionID       int64               `json:"question_id"`
	Kind             question.Kind       `json:"kind"`
	Difficulty       question.Difficulty `json:"difficulty"`
	SelectedOption   *string             `json:"selected_option,omitempty"`
	IsCorrect        *bool               `json:"is_correct,omitempty"`
	JudgmentPoints   *int                `json:"judgment_points,omitempty"`
	PointsAwarded    float64             `json:"points_awarded"`
	MaxPoints        float64             `json:"max_points"`
	TimeTakenSeconds *int64              `json:"time_taken_seconds,omitempty"`
	Reason           string              `json:"reason"`
}

type Submission struct {
	ID               string           `json:"id"`
	CandidateID      int64            `json:"candidate_id"`
	TestID           int64            `json:"test_id"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	TimeTakenSeconds int64            `json:"time_taken_seconds"`
	Answers          map[int64]string `json:"answers"`
	AnswersDigest    string           `json:"-"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	IsComplete       bool             `json:"is_complete"`
	Score            *Score           `json:"score,omitempty"`
	Items            []Answer         `json:"items,omitempty"`
}

type Accepted struct {
	SubmissionID string            `json:"submission_id"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	IsComplete   bool              `json:"is_complete"`
	Score        Score             `json:"score"`
	Warnings     []scoring.Warning `json:"warnings"`
}

// Conflict reports the accepted submission that already holds the pair.
// Score is the stored snapshot, never recomputed.
type Conflict struct {
	ExistingSubmissionID string    `json:"existing_submission_id"`
	SubmittedAt          time.Time `json:"submitted_at"`
	Score                Score     `json:"score"`
	SameAnswers          bool      `json:"same_answers"`
}

// Reservation holds exactly one of Reserved or Conflict.
type Reservation struct {
	Reserved *Submission
	Conflict *Conflict
}

// Outcome holds exactly one of Accepted or Conflict.
type Outcome struct {
	Accepted *Accepted
	Conflict *Conflict
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
