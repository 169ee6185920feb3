package scoring

import (
	"assesscore/internal/question"
)

type TierBreakdown struct {
	Questions int     `json:"questions"`
	Correct   int     `json:"correct"`
	RawScore  float64 `json:"raw_score"`
	MaxScore  float64 `json:"max_score"`
}

// Result is the aggregate over every question of a test, answered or not.
type Result struct {
	Outcomes         []Outcome                             `json:"outcomes"`
	RawScore         float64                               `json:"raw_score"`
	MaxPossibleScore float64                               `json:"max_possible_score"`
	PercentageScore  float64                               `json:"percentage_score"`
	CorrectAnswers   int                                   `json:"correct_answers"`
	TotalQuestions   int                                   `json:"total_questions"`
	Breakdown        map[question.Difficulty]TierBreakdown `json:"breakdown"`
	GradeLetter      string                                `json:"grade_letter"`
	Passed           bool                                  `json:"passed"`
	Warnings         []Warning                             `json:"warnings,omitempty"`
}

// Aggregate grades all questions against answers keyed by question id.
// Questions missing from answers are graded as unanswered; answer keys for
// questions outside the list are not looked at.
func (p Policy) Aggregate(questions []question.Question, answers map[int64]string) Result {
	res := Result{
		Outcomes:  make([]Outcome, 0, len(questions)),
		Breakdown: map[question.Difficulty]TierBreakdown{},
	}

	for _, q := range questions {
		o := p.Grade(q, answers[q.ID])
		res.Outcomes = append(res.Outcomes, o)

		res.RawScore += o.Points
		res.MaxPossibleScore += o.MaxPoints
		res.TotalQuestions++
		if o.Correct {
			res.CorrectAnswers++
		}
		res.Warnings = append(res.Warnings, o.Warnings...)

		tb := res.Breakdown[o.Difficulty]
		tb.Questions++
		tb.RawScore += o.Points
		tb.MaxScore += o.MaxPoints
		if o.Correct {
			tb.Correct++
		}
		res.Breakdown[o.Difficulty] = tb
	}

	res.RawScore = round2(res.RawScore)
	res.MaxPossibleScore = round2(res.MaxPossibleScore)
	res.PercentageScore = Percentage(res.RawScore, res.MaxPossibleScore)
	res.GradeLetter = p.Letter(res.PercentageScore)
	res.Passed = p.Passed(res.PercentageScore)
	return res
}
