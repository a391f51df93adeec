package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/codequiz/internal/question"
)

func questionTable(t question.Type) (string, error) {
	switch t {
	case question.TypeCoding:
		return "coding_questions", nil
	case question.TypeTheory:
		return "theory_questions", nil
	case question.TypeMCQ:
		return "mcq_questions", nil
	}
	return "", fmt.Errorf("unknown question type %q", t)
}

var questionColumns = map[question.Type][]string{
	question.TypeCoding: {"id", "language", "level", "question_text", "created_at", "sample_input", "expected_output", "explanation"},
	question.TypeTheory: {"id", "language", "level", "question_text", "created_at", "model_answer"},
	question.TypeMCQ:    {"id", "language", "level", "question_text", "created_at", "option_a", "option_b", "option_c", "option_d", "correct_option"},
}

// idsOf returns the ids of refs with type t.
func idsOf(refs []question.Ref, t question.Type) []any {
	var ids []any
	for _, r := range refs {
		if r.Type == t {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type questionRepo struct {
	s *Store
}

func (r *questionRepo) CreateQuestion(ctx context.Context, q question.Question) error {
	meta := q.Base()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now()
	}

	table, err := questionTable(q.Kind())
	if err != nil {
		return err
	}
	b := r.s.builder().Insert(table).
		Set("language", meta.Language).
		Set("level", meta.Level).
		Set("question_text", meta.Text).
		Set("created_at", toMillis(meta.CreatedAt))

	switch v := q.(type) {
	case *question.Coding:
		b.Set("sample_input", v.SampleInput).
			Set("expected_output", v.ExpectedOutput).
			Set("explanation", v.Explanation)
	case *question.Theory:
		b.Set("model_answer", v.ModelAnswer)
	case *question.MCQ:
		b.Set("option_a", v.Options[0]).
			Set("option_b", v.Options[1]).
			Set("option_c", v.Options[2]).
			Set("option_d", v.Options[3]).
			Set("correct_option", string(v.Correct))
	}

	id, err := insert(ctx, r.s.db, b)
	if err != nil {
		return fmt.Errorf("insert %s question: %w", q.Kind(), err)
	}
	meta.ID = id
	return nil
}

func (r *questionRepo) GetQuestion(ctx context.Context, ref question.Ref) (question.Question, error) {
	table, err := questionTable(ref.Type)
	if err != nil {
		return nil, err
	}
	query, args := r.s.builder().Select(questionColumns[ref.Type]...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", ref.ID)).
		Query()

	q, err := scanQuestion(ref.Type, r.s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", ref, err)
	}

	if c, ok := q.(*question.Coding); ok {
		c.TestCases, err = r.testCases(ctx, c.ID)
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (r *questionRepo) CountAvailable(ctx context.Context, language, level string, exclude []question.Ref) (question.Counts, error) {
	var counts question.Counts
	for _, t := range question.Types {
		table, _ := questionTable(t)
		n, err := count(ctx, r.s.db, r.s.builder().Select().Count().
			From(entsql.Table(table)).
			Where(entsql.And(
				entsql.EQ("language", language),
				entsql.EQ("level", level),
				entsql.NotIn("id", idsOf(exclude, t)...),
			)))
		if err != nil {
			return counts, fmt.Errorf("count %s questions: %w", t, err)
		}
		counts = counts.Set(t, n)
	}
	return counts, nil
}

func (r *questionRepo) SampleQuestions(ctx context.Context, t question.Type, language, level string, exclude []question.Ref, n int) ([]question.Question, error) {
	if n <= 0 {
		return nil, nil
	}
	table, err := questionTable(t)
	if err != nil {
		return nil, err
	}
	query, args := r.s.builder().Select("id").
		From(entsql.Table(table)).
		Where(entsql.And(
			entsql.EQ("language", language),
			entsql.EQ("level", level),
			entsql.NotIn("id", idsOf(exclude, t)...),
		)).
		Query()

	ids, err := scanIDs(ctx, r.s.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("sample %s questions: %w", t, err)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > n {
		ids = ids[:n]
	}

	out := make([]question.Question, 0, len(ids))
	for _, id := range ids {
		q, err := r.GetQuestion(ctx, question.Ref{Type: t, ID: id})
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *questionRepo) AddTestCase(ctx context.Context, questionID int64, tc question.TestCase) (question.TestCase, error) {
	id, err := insert(ctx, r.s.db, r.s.builder().Insert("test_cases").
		Set("question_id", questionID).
		Set("input", tc.Input).
		Set("expected_output", tc.ExpectedOutput))
	if err != nil {
		return tc, fmt.Errorf("insert test case: %w", err)
	}
	tc.ID = id
	return tc, nil
}

func (r *questionRepo) BackfillTestCase(ctx context.Context, questionID int64, tc question.TestCase) (bool, error) {
	written := false
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := exec(ctx, tx, r.s.builder().Update("coding_questions").
			Set("backfilled", true).
			Where(entsql.And(
				entsql.EQ("id", questionID),
				entsql.EQ("backfilled", false),
			)))
		if err != nil {
			return fmt.Errorf("mark backfilled: %w", err)
		}
		if n == 0 {
			return nil
		}
		if _, err := insert(ctx, tx, r.s.builder().Insert("test_cases").
			Set("question_id", questionID).
			Set("input", tc.Input).
			Set("expected_output", tc.ExpectedOutput)); err != nil {
			return fmt.Errorf("insert test case: %w", err)
		}
		written = true
		return nil
	})
	return written, err
}

func (r *questionRepo) testCases(ctx context.Context, questionID int64) ([]question.TestCase, error) {
	query, args := r.s.builder().Select("id", "input", "expected_output").
		From(entsql.Table("test_cases")).
		Where(entsql.EQ("question_id", questionID)).
		OrderBy("id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query test cases: %w", err)
	}
	defer rows.Close()

	var out []question.TestCase
	for rows.Next() {
		var tc question.TestCase
		if err := rows.Scan(&tc.ID, &tc.Input, &tc.ExpectedOutput); err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(t question.Type, row scanner) (question.Question, error) {
	var (
		meta    question.Meta
		created int64
	)
	base := []any{&meta.ID, &meta.Language, &meta.Level, &meta.Text, &created}

	var q question.Question
	switch t {
	case question.TypeCoding:
		c := &question.Coding{}
		if err := row.Scan(append(base, &c.SampleInput, &c.ExpectedOutput, &c.Explanation)...); err != nil {
			return nil, err
		}
		q = c
	case question.TypeTheory:
		th := &question.Theory{}
		if err := row.Scan(append(base, &th.ModelAnswer)...); err != nil {
			return nil, err
		}
		q = th
	case question.TypeMCQ:
		m := &question.MCQ{}
		var correct string
		if err := row.Scan(append(base, &m.Options[0], &m.Options[1], &m.Options[2], &m.Options[3], &correct)...); err != nil {
			return nil, err
		}
		m.Correct = question.Option(correct)
		q = m
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}

	meta.CreatedAt = fromMillis(created)
	*q.Base() = meta
	return q, nil
}

func scanIDs(ctx context.Context, q querier, query string, args []any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
