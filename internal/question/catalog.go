package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	internaldb "assesscore/internal/db"
)

// Catalog is the read side of question-bank management.
type Catalog interface {
	GetTest(ctx context.Context, testID int64) (*Test, error)
	QuestionsForTest(ctx context.Context, testID int64) ([]Question, error)
	PerOptionTable(ctx context.Context, questionID int64) (map[string]int, error)
}

type Store struct {
	db      *sql.DB
	dialect internaldb.Driver
}

func NewStore(db *sql.DB, dialect internaldb.Driver) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) GetTest(ctx context.Context, testID int64) (*Test, error) {
	var t Test
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, title, is_active
		FROM tests
		WHERE id = $1
	`), testID).Scan(&t.ID, &t.Title, &t.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}
	return &t, nil
}

type optionRow struct {
	QuestionID int64
	Kind       string
	Position   int
	Difficulty string
	OptionKey  sql.NullString
	OptionPos  sql.NullInt64
	IsCorrect  sql.NullBool
	Points     sql.NullInt64
}

func (s *Store) QuestionsForTest(ctx context.Context, testID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT
			q.id,
			q.kind,
			q.position,
			q.difficulty,
			o.option_key,
			o.position,
			o.is_correct,
			o.points
		FROM questions q
		LEFT JOIN question_options o
			ON o.question_id = q.id
		WHERE q.test_id = $1
		ORDER BY q.position, q.id, o.position, o.option_key
	`), testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	index := map[int64]int{}
	corrects := map[int64][]string{}
	for rows.Next() {
		var r optionRow
		if err := rows.Scan(&r.QuestionID, &r.Kind, &r.Position, &r.Difficulty, &r.OptionKey, &r.OptionPos, &r.IsCorrect, &r.Points); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}

		i, ok := index[r.QuestionID]
		if !ok {
			q := Question{
				ID:         r.QuestionID,
				TestID:     testID,
				Position:   r.Position,
				Difficulty: ParseDifficulty(r.Difficulty),
			}
			switch Kind(r.Kind) {
			case KindJudgment:
				q.Scoring = Judgment{Points: map[string]int{}}
			default:
				q.Scoring = Standard{}
			}
			out = append(out, q)
			i = len(out) - 1
			index[r.QuestionID] = i
		}

		if !r.OptionKey.Valid {
			continue
		}
		q := &out[i]
		q.Options = append(q.Options, Option{Key: r.OptionKey.String, Position: int(r.OptionPos.Int64)})

		switch sc := q.Scoring.(type) {
		case Judgment:
			if r.Points.Valid {
				sc.Points[r.OptionKey.String] = int(r.Points.Int64)
			}
		case Standard:
			if r.IsCorrect.Valid && r.IsCorrect.Bool {
				corrects[q.ID] = append(corrects[q.ID], r.OptionKey.String)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	// First flagged option by position wins when the catalog flags several.
	for i := range out {
		if keys := corrects[out[i].ID]; len(keys) > 0 {
			out[i].Scoring = Standard{CorrectOption: keys[0]}
		}
	}

	return out, nil
}

// PerOptionTable returns nil for standard questions.
func (s *Store) PerOptionTable(ctx context.Context, questionID int64) (map[string]int, error) {
	var kind string
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT kind FROM questions WHERE id = $1
	`), questionID).Scan(&kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question kind: %w", err)
	}
	if Kind(kind) != KindJudgment {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT option_key, points
		FROM question_options
		WHERE question_id = $1 AND points IS NOT NULL
		ORDER BY position
	`), questionID)
	if err != nil {
		return nil, fmt.Errorf("query option points: %w", err)
	}
	defer rows.Close()

	table := map[string]int{}
	for rows.Next() {
		var key string
		var pts int64
		if err := rows.Scan(&key, &pts); err != nil {
			return nil, fmt.Errorf("scan option points: %w", err)
		}
		table[key] = int(pts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate option points: %w", err)
	}
	return table, nil
}
