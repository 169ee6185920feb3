package scoring

import (
	"fmt"
	"strings"

	"assesscore/internal/question"
)

// Outcome is the graded result of one question. IsCorrect is set for
// answered standard questions only; JudgmentPoints for answered judgment
// questions only. Correct is the reporting flag counted into the score.
type Outcome struct {
	QuestionID     int64               `json:"question_id"`
	Kind           question.Kind       `json:"kind"`
	Difficulty     question.Difficulty `json:"difficulty"`
	Answered       bool                `json:"answered"`
	Selected       string              `json:"selected,omitempty"`
	IsCorrect      *bool               `json:"is_correct,omitempty"`
	JudgmentPoints *int                `json:"judgment_points,omitempty"`
	Correct        bool                `json:"correct"`
	Points         float64             `json:"points"`
	MaxPoints      float64             `json:"max_points"`
	Reason         string              `json:"reason"`
	Warnings       []Warning           `json:"warnings,omitempty"`
}

// Grade dispatches on the question's scoring variant.
func (p Policy) Grade(q question.Question, submitted string) Outcome {
	switch sc := q.Scoring.(type) {
	case question.Judgment:
		return p.GradeJudgment(q, sc, submitted)
	case question.Standard:
		return p.GradeStandard(q, sc, submitted)
	}
	return p.GradeStandard(q, question.Standard{}, submitted)
}

// GradeStandard awards the full weight for an exact match after trimming and
// case folding, zero otherwise.
func (p Policy) GradeStandard(q question.Question, sc question.Standard, submitted string) Outcome {
	return p.finish(q, question.KindStandard, p.gradeStandard(q, sc, submitted))
}

func (p Policy) finish(q question.Question, kind question.Kind, out Outcome) Outcome {
	tier, _, warn := p.Tier(q)
	out.QuestionID = q.ID
	out.Kind = kind
	out.Difficulty = tier
	if warn != nil {
		out.Warnings = append([]Warning{*warn}, out.Warnings...)
	}
	return out
}

func (p Policy) gradeStandard(q question.Question, sc question.Standard, submitted string) Outcome {
	weight := p.Weight(q)
	out := Outcome{MaxPoints: weight}

	selected, answered := resolveSelection(q, submitted)
	out.Answered = answered
	out.Selected = selected

	correct := strings.TrimSpace(sc.CorrectOption)
	if correct == "" || !q.HasOption(correct) {
		detail := "no correct option defined"
		if correct != "" {
			detail = fmt.Sprintf("correct option %q is not among the options", correct)
		}
		out.Reason = ReasonMalformedKey
		out.Warnings = []Warning{{QuestionID: q.ID, Reason: ReasonMalformedKey, Detail: detail}}
		if answered {
			f := false
			out.IsCorrect = &f
		}
		return out
	}

	if !answered {
		out.Reason = ReasonUnanswered
		return out
	}

	ok := question.NormalizeKey(selected) == question.NormalizeKey(correct)
	out.IsCorrect = &ok
	out.Correct = ok
	if ok {
		out.Points = weight
		out.Reason = ReasonCorrect
		return out
	}
	out.Reason = ReasonWrong
	return out
}
