package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/copier"

	"assesscore/internal/app/apiresp"
	"assesscore/internal/question"
	"assesscore/internal/scoring"
)

const (
	StateAccepted         = "accepted"
	StateAlreadySubmitted = "already_submitted"

	duplicateMessage = "duplicate submission"
)

type submissionService interface {
	Submit(ctx context.Context, in SubmitInput) (*Outcome, error)
	GetSubmission(ctx context.Context, submissionID string) (*Submission, error)
}

// OutcomeRecorder counts how submit requests end.
type OutcomeRecorder interface {
	RecordOutcome(outcome string)
}

type Handler struct {
	svc      submissionService
	recorder OutcomeRecorder
}

type submitRequest struct {
	CandidateID      int64                      `json:"candidate_id"`
	Answers          map[string]json.RawMessage `json:"answers"`
	ItemTimes        map[string]int64           `json:"item_times"`
	TimeTakenSeconds float64                    `json:"time_taken_seconds"`
	Metadata         json.RawMessage            `json:"metadata"`
}

type scoreResponse struct {
	SubmissionID     string                                        `json:"submission_id"`
	RawScore         float64                                       `json:"raw_score"`
	MaxPossibleScore float64                                       `json:"max_possible_score"`
	PercentageScore  float64                                       `json:"percentage_score"`
	CorrectAnswers   int                                           `json:"correct_answers"`
	TotalQuestions   int                                           `json:"total_questions"`
	GradeLetter      string                                        `json:"grade_letter"`
	Passed           bool                                          `json:"passed"`
	Breakdown        map[question.Difficulty]scoring.TierBreakdown `json:"per_difficulty_breakdown"`
	CalculatedAt     time.Time                                     `json:"calculated_at"`
}

type acceptedResponse struct {
	State        string            `json:"state"`
	SubmissionID string            `json:"submission_id"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	IsComplete   bool              `json:"is_complete"`
	Score        scoreResponse     `json:"score"`
	Warnings     []scoring.Warning `json:"warnings"`
}

type conflictResponse struct {
	State                   string        `json:"state"`
	ExistingSubmissionID    string        `json:"existing_submission_id"`
	ExistingScorePercentage float64       `json:"existing_score_percentage"`
	SubmittedAt             time.Time     `json:"submitted_at"`
	Message                 string        `json:"message"`
	SameAnswers             bool          `json:"same_answers"`
	Score                   scoreResponse `json:"score"`
}

type submissionResponse struct {
	ID               string           `json:"id"`
	CandidateID      int64            `json:"candidate_id"`
	TestID           int64            `json:"test_id"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	TimeTakenSeconds int64            `json:"time_taken_seconds"`
	Answers          map[int64]string `json:"answers"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	IsComplete       bool             `json:"is_complete"`
	Score            *scoreResponse   `json:"score,omitempty" copier:"-"`
	Items            []Answer         `json:"items"`
}

func NewHandler(svc submissionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) WithRecorder(rec OutcomeRecorder) *Handler {
	h.recorder = rec
	return h
}

// Submit handles POST /api/v1/tests/{testID}/submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		h.record("invalid")
		apiresp.WriteValidation(w, r, http.StatusBadRequest, "invalid request body", []apiresp.Detail{
			{Field: "body", Message: err.Error()},
		})
		return
	}

	// Undecodable answer values travel with the input so the service reports
	// them alongside every other problem.
	answers, rejected := decodeAnswers(req.Answers)

	// A malformed path id is reported by the service together with any
	// other problem.
	testID, _ := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)

	out, err := h.svc.Submit(r.Context(), SubmitInput{
		CandidateID:      req.CandidateID,
		TestID:           testID,
		Answers:          answers,
		ItemTimes:        req.ItemTimes,
		TimeTakenSeconds: req.TimeTakenSeconds,
		Metadata:         req.Metadata,
		Rejected:         rejected,
	})
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			h.record("invalid")
			apiresp.WriteValidation(w, r, http.StatusUnprocessableEntity, "submission is invalid", toDetails(verr.Problems))
		case errors.Is(err, ErrPersistence):
			h.record("error")
			apiresp.WriteRetryable(w, r, http.StatusServiceUnavailable, "submission could not be stored, retry later")
		default:
			h.record("error")
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if out.Conflict != nil {
		c := out.Conflict
		score, err := toScoreResponse(c.Score)
		if err != nil {
			h.record("error")
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		h.record("conflict")
		apiresp.WriteOK(w, r, http.StatusOK, conflictResponse{
			State:                   StateAlreadySubmitted,
			ExistingSubmissionID:    c.ExistingSubmissionID,
			ExistingScorePercentage: c.Score.PercentageScore,
			SubmittedAt:             c.SubmittedAt,
			Message:                 duplicateMessage,
			SameAnswers:             c.SameAnswers,
			Score:                   score,
		})
		return
	}

	a := out.Accepted
	score, err := toScoreResponse(a.Score)
	if err != nil {
		h.record("error")
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	h.record("accepted")
	w.Header().Set("Location", "/api/v1/submissions/"+a.SubmissionID)
	apiresp.WriteOK(w, r, http.StatusCreated, acceptedResponse{
		State:        StateAccepted,
		SubmissionID: a.SubmissionID,
		SubmittedAt:  a.SubmittedAt,
		IsComplete:   a.IsComplete,
		Score:        score,
		Warnings:     a.Warnings,
	})
}

// Get handles GET /api/v1/submissions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid submission id")
		return
	}

	sub, err := h.svc.GetSubmission(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrPersistence):
			apiresp.WriteRetryable(w, r, http.StatusServiceUnavailable, "storage unavailable")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	var resp submissionResponse
	if err := copier.Copy(&resp, sub); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if sub.Score != nil {
		s, err := toScoreResponse(*sub.Score)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		resp.Score = &s
	}
	if resp.Items == nil {
		resp.Items = []Answer{}
	}
	apiresp.WriteOK(w, r, http.StatusOK, resp)
}

func (h *Handler) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordOutcome(outcome)
	}
}

func toScoreResponse(s Score) (scoreResponse, error) {
	var out scoreResponse
	if err := copier.Copy(&out, &s); err != nil {
		return scoreResponse{}, fmt.Errorf("map score: %w", err)
	}
	if out.Breakdown == nil {
		out.Breakdown = map[question.Difficulty]scoring.TierBreakdown{}
	}
	return out, nil
}

// decodeAnswers accepts string and number values. JSON null counts as
// unanswered.
func decodeAnswers(raw map[string]json.RawMessage) (map[string]string, []FieldError) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	var problems []FieldError
	for _, key := range sortedKeys(raw) {
		v := bytes.TrimSpace(raw[key])
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			out[key] = ""
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				problems = append(problems, FieldError{Field: "answers." + key, Message: "must be a string or number"})
				continue
			}
			out[key] = s
		case v[0] == '-' || (v[0] >= '0' && v[0] <= '9'):
			var n json.Number
			if err := json.Unmarshal(v, &n); err != nil {
				problems = append(problems, FieldError{Field: "answers." + key, Message: "must be a string or number"})
				continue
			}
			out[key] = n.String()
		default:
			problems = append(problems, FieldError{Field: "answers." + key, Message: "must be a string or number"})
		}
	}
	return out, problems
}

func toDetails(problems []FieldError) []apiresp.Detail {
	out := make([]apiresp.Detail, 0, len(problems))
	for _, p := range problems {
		out = append(out, apiresp.Detail{Field: p.Field, Message: p.Message})
	}
	return out
}
