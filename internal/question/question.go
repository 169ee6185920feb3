package question

import (
	"errors"
	"strings"
)

var (
	ErrTestNotFound     = errors.New("test not found")
	ErrQuestionNotFound = errors.New("question not found")
)

type Kind string

const (
	KindStandard Kind = "standard"
	KindJudgment Kind = "judgment"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(raw string) Difficulty {
	return Difficulty(strings.ToLower(strings.TrimSpace(raw)))
}

func (d Difficulty) Known() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Test struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	IsActive bool   `json:"is_active"`
}

type Option struct {
	Key      string `json:"key"`
	Position int    `json:"position"`
}

// Question is read-only for the scoring core. Exactly one scoring definition
// applies, carried by Scoring.
type Question struct {
	ID         int64      `json:"id"`
	TestID     int64      `json:"test_id"`
	Position   int        `json:"position"`
	Difficulty Difficulty `json:"difficulty"`
	Options    []Option   `json:"options"`
	Scoring    Scoring    `json:"-"`
}

func (q Question) Kind() Kind {
	if q.Scoring == nil {
		return KindStandard
	}
	return q.Scoring.kind()
}

// HasOption matches keys case-insensitively after trimming.
func (q Question) HasOption(key string) bool {
	_, ok := q.OptionKey(key)
	return ok
}

// OptionKey returns the catalog spelling of key.
func (q Question) OptionKey(key string) (string, bool) {
	n := NormalizeKey(key)
	for _, o := range q.Options {
		if NormalizeKey(o.Key) == n {
			return o.Key, true
		}
	}
	return "", false
}

// Scoring is implemented only by Standard and Judgment.
type Scoring interface {
	kind() Kind
}

type Standard struct {
	CorrectOption string
}

func (Standard) kind() Kind { return KindStandard }

// Judgment maps option keys to point values. Any correct flag stored on a
// judgment question's options is never loaded here.
type Judgment struct {
	Points map[string]int
}

func (Judgment) kind() Kind { return KindJudgment }

// Lookup finds the points for key, ignoring case and surrounding space.
func (j Judgment) Lookup(key string) (int, bool) {
	if v, ok := j.Points[key]; ok {
		return v, true
	}
	n := NormalizeKey(key)
	for k, v := range j.Points {
		if NormalizeKey(k) == n {
			return v, true
		}
	}
	return 0, false
}

func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
