package question

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"assesscore/internal/app/apiresp"
)

type catalogReader interface {
	GetTest(ctx context.Context, testID int64) (*Test, error)
	QuestionsForTest(ctx context.Context, testID int64) ([]Question, error)
}

// Handler serves the candidate-facing view of a test. Answer keys and point
// tables never leave the catalog.
type Handler struct {
	catalog catalogReader
}

type questionView struct {
	ID         int64      `json:"id"`
	Position   int        `json:"position"`
	Kind       Kind       `json:"kind"`
	Difficulty Difficulty `json:"difficulty"`
	Options    []string   `json:"options"`
}

type testView struct {
	Test
	Questions []questionView `json:"questions"`
}

func NewHandler(catalog catalogReader) *Handler {
	return &Handler{catalog: catalog}
}

// GetTest handles GET /api/v1/tests/{testID}.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return
	}

	t, err := h.catalog.GetTest(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	questions, err := h.catalog.QuestionsForTest(r.Context(), testID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	out := testView{Test: *t, Questions: make([]questionView, 0, len(questions))}
	for _, q := range questions {
		keys := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			keys = append(keys, o.Key)
		}
		out.Questions = append(out.Questions, questionView{
			ID:         q.ID,
			Position:   q.Position,
			Kind:       q.Kind(),
			Difficulty: q.Difficulty,
			Options:    keys,
		})
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}
