// Package scoring holds the pure grading rules: per-question points from a
// difficulty weight table and per-option judgment tables, and the aggregate
// arithmetic that turns graded answers into a score. Nothing here performs
// I/O; every rule reads from an explicit Policy value.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"assesscore/internal/question"
)

const (
	ReasonCorrect           = "correct"
	ReasonWrong             = "wrong"
	ReasonUnanswered        = "unanswered"
	ReasonBest              = "best"
	ReasonPartial           = "partial"
	ReasonUnknownOption     = "unknown_option"
	ReasonMalformedKey      = "malformed_answer_key"
	ReasonUnknownDifficulty = "unknown_difficulty"
)

type Weights struct {
	Easy   float64 `json:"easy"`
	Medium float64 `json:"medium"`
	Hard   float64 `json:"hard"`
}

type GradeBand struct {
	Letter string  `json:"letter"`
	Min    float64 `json:"min"`
}

// Policy is passed to every grading call. GradeBands are checked from the
// highest Min down; a percentage below every band gets FailLetter.
type Policy struct {
	Weights       Weights
	JudgmentScale []int
	GradeBands    []GradeBand
	FailLetter    string
	PassThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{
		Weights:       Weights{Easy: 1.0, Medium: 1.5, Hard: 2.0},
		JudgmentScale: []int{-1, 0, 1, 2},
		GradeBands: []GradeBand{
			{Letter: "A", Min: 90},
			{Letter: "B", Min: 80},
			{Letter: "C", Min: 70},
			{Letter: "D", Min: 60},
		},
		FailLetter:    "F",
		PassThreshold: 60,
	}
}

// Warning reports a catalog inconsistency. The affected item scores zero and
// grading carries on.
type Warning struct {
	QuestionID int64  `json:"question_id"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

func (w Warning) Error() string {
	return fmt.Sprintf("question %d: %s: %s", w.QuestionID, w.Reason, w.Detail)
}

// Tier resolves the effective difficulty tier and its coefficient. Unknown
// tiers weigh as easy and are reported.
func (p Policy) Tier(q question.Question) (question.Difficulty, float64, *Warning) {
	if !q.Difficulty.Known() {
		return question.DifficultyEasy, p.Weights.Easy, &Warning{
			QuestionID: q.ID,
			Reason:     ReasonUnknownDifficulty,
			Detail:     fmt.Sprintf("difficulty %q weighted as easy", q.Difficulty),
		}
	}
	switch q.Difficulty {
	case question.DifficultyMedium:
		return q.Difficulty, p.Weights.Medium, nil
	case question.DifficultyHard:
		return q.Difficulty, p.Weights.Hard, nil
	}
	return q.Difficulty, p.Weights.Easy, nil
}

func (p Policy) Weight(q question.Question) float64 {
	_, w, _ := p.Tier(q)
	return w
}

// MaxWeight is the best achievable points for q.
func (p Policy) MaxWeight(q question.Question) float64 {
	switch sc := q.Scoring.(type) {
	case question.Judgment:
		return float64(p.judgmentMax(sc))
	default:
		return p.Weight(q)
	}
}

func (p Policy) Letter(pct float64) string {
	bands := append([]GradeBand(nil), p.GradeBands...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].Min > bands[j].Min })
	for _, b := range bands {
		if pct >= b.Min {
			return b.Letter
		}
	}
	return p.FailLetter
}

func (p Policy) Passed(pct float64) bool {
	return pct >= p.PassThreshold
}

// Percentage is raw/max*100 rounded to two decimals; zero when max is zero.
// Negative results are kept.
func Percentage(raw, max float64) float64 {
	if max == 0 {
		return 0
	}
	return round2(raw / max * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// resolveSelection maps a submitted value onto an option key. A value that
// is not an option key but parses as a whole number n picks the n-th option
// by position. Unresolvable values come back trimmed and unchanged.
func resolveSelection(q question.Question, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	if key, ok := q.OptionKey(v); ok {
		return key, true
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= len(q.Options) {
		opts := append([]question.Option(nil), q.Options...)
		sort.SliceStable(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
		return opts[n-1].Key, true
	}
	return v, true
}
