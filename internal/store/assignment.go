package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/codequiz/internal/question"
)

var assignmentColumns = []string{"id", "user_id", "language", "level", "total_questions", "score", "created_at", "completed_at"}

type assignmentRepo struct {
	s *Store
}

func (r *assignmentRepo) CreateAssignment(ctx context.Context, a *Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	if a.TotalQuestions == 0 {
		a.TotalQuestions = len(a.Questions)
	}
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insert(ctx, tx, r.s.builder().Insert("assignments").
			Set("user_id", a.UserID).
			Set("language", a.Language).
			Set("level", a.Level).
			Set("total_questions", a.TotalQuestions).
			Set("score", 0).
			Set("created_at", toMillis(a.CreatedAt)))
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		if len(a.Questions) > 0 {
			b := r.s.builder().Insert("assignment_questions").
				Columns("assignment_id", "position", "question_type", "question_id")
			for i, ref := range a.Questions {
				b.Values(id, i, string(ref.Type), ref.ID)
			}
			if _, err := exec(ctx, tx, b); err != nil {
				return fmt.Errorf("insert assignment questions: %w", err)
			}
		}
		a.ID = id
		return nil
	})
}

func (r *assignmentRepo) GetAssignment(ctx context.Context, id int64) (*Assignment, error) {
	a, err := r.getAssignment(ctx, r.s.db, id)
	if err != nil {
		return nil, err
	}

	query, args := r.s.builder().Select("question_type", "question_id").
		From(entsql.Table("assignment_questions")).
		Where(entsql.EQ("assignment_id", id)).
		OrderBy("position").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignment questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ref question.Ref
			typ string
		)
		if err := rows.Scan(&typ, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan assignment question: %w", err)
		}
		ref.Type = question.Type(typ)
		a.Questions = append(a.Questions, ref)
	}
	return a, rows.Err()
}

func (r *assignmentRepo) getAssignment(ctx context.Context, q querier, id int64) (*Assignment, error) {
	query, args := r.s.builder().Select(assignmentColumns...).
		From(entsql.Table("assignments")).
		Where(entsql.EQ("id", id)).
		Query()
	a, err := scanAssignment(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return a, nil
}

func (r *assignmentRepo) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	query, args := r.s.builder().Select(assignmentColumns...).
		From(entsql.Table("assignments")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *assignmentRepo) AssignmentResponses(ctx context.Context, id int64) ([]AssignmentResponse, error) {
	query, args := r.s.builder().Select("id", "assignment_id", "question_type", "question_id", "answer", "is_correct", "feedback", "created_at").
		From(entsql.Table("assignment_responses")).
		Where(entsql.EQ("assignment_id", id)).
		OrderBy("id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignment responses: %w", err)
	}
	defer rows.Close()

	var out []AssignmentResponse
	for rows.Next() {
		var (
			resp    AssignmentResponse
			typ     string
			created int64
		)
		if err := rows.Scan(&resp.ID, &resp.AssignmentID, &typ, &resp.Ref.ID, &resp.Answer,
			&resp.Correct, &resp.Feedback, &created); err != nil {
			return nil, fmt.Errorf("scan assignment response: %w", err)
		}
		resp.Ref.Type = question.Type(typ)
		resp.CreatedAt = fromMillis(created)
		out = append(out, resp)
	}
	return out, rows.Err()
}

func (r *assignmentRepo) SubmitAssignment(ctx context.Context, id int64, responses []AssignmentResponse) (*Assignment, error) {
	var a *Assignment
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		a, err = r.getAssignment(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Completed() {
			return ErrCompleted
		}

		at := now()
		score := 0
		b := r.s.builder().Insert("assignment_responses").
			Columns("assignment_id", "question_type", "question_id", "answer", "is_correct", "feedback", "created_at")
		for _, resp := range responses {
			b.Values(id, string(resp.Ref.Type), resp.Ref.ID, resp.Answer, resp.Correct, resp.Feedback, toMillis(at))
			if resp.Correct {
				score++
			}
		}
		if len(responses) > 0 {
			if _, err := exec(ctx, tx, b); err != nil {
				if errors.Is(err, ErrDuplicate) {
					return ErrDuplicate
				}
				return fmt.Errorf("insert assignment responses: %w", err)
			}
		}

		n, err := exec(ctx, tx, r.s.builder().Update("assignments").
			Set("score", score).
			Set("completed_at", toMillis(at)).
			Where(entsql.And(
				entsql.EQ("id", id),
				entsql.IsNull("completed_at"),
			)))
		if err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		if n == 0 {
			return ErrCompleted
		}
		a.Score = score
		a.CompletedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAssignment(row scanner) (*Assignment, error) {
	var (
		a         Assignment
		created   int64
		completed sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Language, &a.Level, &a.TotalQuestions,
		&a.Score, &created, &completed); err != nil {
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	a.CompletedAt = fromNullMillis(completed)
	return &a, nil
}
