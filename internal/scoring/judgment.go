package scoring

import (
	"fmt"

	"assesscore/internal/question"
)

// GradeJudgment scores a situational-judgment answer from the question's
// per-option table. The awarded points are the raw table value, negatives
// included. Correct is set only when the best achievable value was chosen.
func (p Policy) GradeJudgment(q question.Question, sc question.Judgment, submitted string) Outcome {
	return p.finish(q, question.KindJudgment, p.gradeJudgment(q, sc, submitted))
}

func (p Policy) gradeJudgment(q question.Question, sc question.Judgment, submitted string) Outcome {
	best, _ := p.judgmentBest(sc)
	out := Outcome{MaxPoints: float64(p.judgmentMax(sc))}

	selected, answered := resolveSelection(q, submitted)
	out.Answered = answered
	out.Selected = selected

	if len(sc.Points) == 0 {
		if answered {
			zero := 0
			out.JudgmentPoints = &zero
		}
		out.Reason = ReasonMalformedKey
		out.Warnings = []Warning{{QuestionID: q.ID, Reason: ReasonMalformedKey, Detail: "empty point table"}}
		return out
	}
	if !answered {
		out.Reason = ReasonUnanswered
		return out
	}

	pts, ok := sc.Lookup(selected)
	if !ok {
		zero := 0
		out.JudgmentPoints = &zero
		out.Reason = ReasonUnknownOption
		out.Warnings = []Warning{{
			QuestionID: q.ID,
			Reason:     ReasonUnknownOption,
			Detail:     fmt.Sprintf("option %q has no point value", selected),
		}}
		return out
	}
	if !p.inScale(pts) {
		zero := 0
		out.JudgmentPoints = &zero
		out.Reason = ReasonMalformedKey
		out.Warnings = []Warning{{
			QuestionID: q.ID,
			Reason:     ReasonMalformedKey,
			Detail:     fmt.Sprintf("option %q value %d is outside the judgment scale", selected, pts),
		}}
		return out
	}

	out.JudgmentPoints = &pts
	out.Points = float64(pts)
	switch {
	case pts == best:
		out.Correct = true
		out.Reason = ReasonBest
	case pts > 0:
		out.Reason = ReasonPartial
	default:
		out.Reason = ReasonWrong
	}
	return out
}

// judgmentBest is the highest in-scale value in the table. ok is false when
// no value is usable.
func (p Policy) judgmentBest(sc question.Judgment) (int, bool) {
	best, ok := 0, false
	for _, v := range sc.Points {
		if p.inScale(v) && (!ok || v > best) {
			best, ok = v, true
		}
	}
	return best, ok
}

// judgmentMax is the best value floored at zero, so a table of penalties
// cannot lower the maximum possible score.
func (p Policy) judgmentMax(sc question.Judgment) int {
	if best, ok := p.judgmentBest(sc); ok && best > 0 {
		return best
	}
	return 0
}

func (p Policy) inScale(v int) bool {
	if len(p.JudgmentScale) == 0 {
		return true
	}
	for _, s := range p.JudgmentScale {
		if s == v {
			return true
		}
	}
	return false
}
