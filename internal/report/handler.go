package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"assesscore/internal/app/apiresp"
)

type reportService interface {
	CandidateScores(ctx context.Context, candidateID int64) ([]CandidateScore, error)
	ScoreFor(ctx context.Context, candidateID, testID int64) (*CandidateScore, error)
}

type Handler struct {
	svc reportService
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

// CandidateScores handles GET /api/v1/candidates/{candidateID}/scores. An
// optional test_id query narrows the result to one score.
func (h *Handler) CandidateScores(w http.ResponseWriter, r *http.Request) {
	candidateID, err := strconv.ParseInt(chi.URLParam(r, "candidateID"), 10, 64)
	if err != nil || candidateID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid candidate id")
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("test_id")); raw != "" {
		testID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || testID <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test_id")
			return
		}
		score, err := h.svc.ScoreFor(r.Context(), candidateID, testID)
		if err != nil {
			if errors.Is(err, ErrScoreNotFound) {
				apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
				return
			}
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		apiresp.WriteOK(w, r, http.StatusOK, score)
		return
	}

	scores, err := h.svc.CandidateScores(r.Context(), candidateID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, scores)
}
