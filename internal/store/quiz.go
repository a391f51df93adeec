package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/codequiz/internal/question"
)

var (
	quizColumns     = []string{"id", "user_id", "language", "level", "total_questions", "score", "created_at", "completed_at"}
	responseColumns = []string{"id", "quiz_id", "question_type", "question_id", "user_answer", "is_correct", "feedback", "time_taken", "created_at"}
)

type quizRepo struct {
	s *Store
}

func (r *quizRepo) CreateQuiz(ctx context.Context, q *Quiz) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now()
	}
	id, err := insert(ctx, r.s.db, r.s.builder().Insert("quizzes").
		Set("user_id", q.UserID).
		Set("language", q.Language).
		Set("level", q.Level).
		Set("total_questions", q.TotalQuestions).
		Set("score", 0).
		Set("created_at", toMillis(q.CreatedAt)))
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	q.ID = id
	return nil
}

func (r *quizRepo) GetQuiz(ctx context.Context, id int64) (*Quiz, error) {
	return r.getQuiz(ctx, r.s.db, id)
}

func (r *quizRepo) getQuiz(ctx context.Context, q querier, id int64) (*Quiz, error) {
	query, args := r.s.builder().Select(quizColumns...).
		From(entsql.Table("quizzes")).
		Where(entsql.EQ("id", id)).
		Query()
	quiz, err := scanQuiz(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz %d: %w", id, err)
	}
	return quiz, nil
}

func (r *quizRepo) QuizResponses(ctx context.Context, quizID int64) ([]QuizResponse, error) {
	query, args := r.s.builder().Select(responseColumns...).
		From(entsql.Table("quiz_responses")).
		Where(entsql.EQ("quiz_id", quizID)).
		OrderBy("created_at", "id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []QuizResponse
	for rows.Next() {
		var (
			resp    QuizResponse
			typ     string
			created int64
		)
		if err := rows.Scan(&resp.ID, &resp.QuizID, &typ, &resp.Ref.ID, &resp.Answer,
			&resp.Correct, &resp.Feedback, &resp.TimeTaken, &created); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		resp.Ref.Type = question.Type(typ)
		resp.CreatedAt = fromMillis(created)
		out = append(out, resp)
	}
	return out, rows.Err()
}

func (r *quizRepo) SubmitQuizResponse(ctx context.Context, resp *QuizResponse) (*Quiz, error) {
	var quiz *Quiz
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		quiz, err = r.getQuiz(ctx, tx, resp.QuizID)
		if err != nil {
			return err
		}
		if quiz.Completed() {
			return ErrCompleted
		}

		answered, err := count(ctx, tx, r.s.builder().Select().Count().
			From(entsql.Table("quiz_responses")).
			Where(entsql.EQ("quiz_id", quiz.ID)))
		if err != nil {
			return fmt.Errorf("count responses: %w", err)
		}
		if answered >= quiz.TotalQuestions {
			return ErrCompleted
		}

		if resp.CreatedAt.IsZero() {
			resp.CreatedAt = now()
		}
		resp.ID, err = insert(ctx, tx, r.s.builder().Insert("quiz_responses").
			Set("quiz_id", quiz.ID).
			Set("question_type", string(resp.Ref.Type)).
			Set("question_id", resp.Ref.ID).
			Set("user_answer", resp.Answer).
			Set("is_correct", resp.Correct).
			Set("feedback", resp.Feedback).
			Set("time_taken", resp.TimeTaken).
			Set("created_at", toMillis(resp.CreatedAt)))
		if err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert response: %w", err)
		}

		if answered+1 >= quiz.TotalQuestions {
			if err := r.complete(ctx, tx, quiz); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

func (r *quizRepo) CompleteQuiz(ctx context.Context, id int64) (*Quiz, error) {
	var quiz *Quiz
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		quiz, err = r.getQuiz(ctx, tx, id)
		if err != nil {
			return err
		}
		if quiz.Completed() {
			return ErrCompleted
		}
		return r.complete(ctx, tx, quiz)
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// complete recomputes the score from the responses and stamps
// completed_at, updating quiz in place.
func (r *quizRepo) complete(ctx context.Context, tx *sql.Tx, quiz *Quiz) error {
	score, err := count(ctx, tx, r.s.builder().Select().Count().
		From(entsql.Table("quiz_responses")).
		Where(entsql.And(
			entsql.EQ("quiz_id", quiz.ID),
			entsql.EQ("is_correct", true),
		)))
	if err != nil {
		return fmt.Errorf("score quiz: %w", err)
	}

	at := now()
	n, err := exec(ctx, tx, r.s.builder().Update("quizzes").
		Set("score", score).
		Set("completed_at", toMillis(at)).
		Where(entsql.And(
			entsql.EQ("id", quiz.ID),
			entsql.IsNull("completed_at"),
		)))
	if err != nil {
		return fmt.Errorf("complete quiz: %w", err)
	}
	if n == 0 {
		return ErrCompleted
	}
	quiz.Score = score
	quiz.CompletedAt = &at
	return nil
}

func (r *quizRepo) SeenRefs(ctx context.Context, userID, language, level string) ([]question.Ref, error) {
	quizzes := r.s.builder().Select("id").
		From(entsql.Table("quizzes")).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("language", language),
			entsql.EQ("level", level),
		))
	query, args := r.s.builder().Select("question_type", "question_id").
		Distinct().
		From(entsql.Table("quiz_responses")).
		Where(entsql.In("quiz_id", quizzes)).
		Query()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen questions: %w", err)
	}
	defer rows.Close()

	var refs []question.Ref
	for rows.Next() {
		var (
			ref question.Ref
			typ string
		)
		if err := rows.Scan(&typ, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan seen question: %w", err)
		}
		ref.Type = question.Type(typ)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *quizRepo) ListQuizzes(ctx context.Context, userID string) ([]QuizStats, error) {
	query, args := r.s.builder().Select(quizColumns...).
		From(entsql.Table("quizzes")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}

	var (
		out   []QuizStats
		index = map[int64]int{}
		ids   []any
	)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		index[quiz.ID] = len(out)
		ids = append(ids, quiz.ID)
		out = append(out, QuizStats{Quiz: *quiz})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	query, args = r.s.builder().Select(
		"quiz_id",
		entsql.Count("*"),
		"SUM(CASE WHEN is_correct THEN 1 ELSE 0 END)",
		entsql.Min("created_at"),
		entsql.Max("created_at"),
	).
		From(entsql.Table("quiz_responses")).
		Where(entsql.In("quiz_id", ids...)).
		GroupBy("quiz_id").
		Query()
	agg, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate responses: %w", err)
	}
	defer agg.Close()

	for agg.Next() {
		var (
			quizID, first, last int64
			answered, correct   int
		)
		if err := agg.Scan(&quizID, &answered, &correct, &first, &last); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		st := &out[index[quizID]]
		st.Answered = answered
		st.Correct = correct
		f, l := fromMillis(first), fromMillis(last)
		st.FirstAnswerAt, st.LastAnswerAt = &f, &l
	}
	return out, agg.Err()
}

func scanQuiz(row scanner) (*Quiz, error) {
	var (
		q         Quiz
		created   int64
		completed sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.UserID, &q.Language, &q.Level, &q.TotalQuestions,
		&q.Score, &created, &completed); err != nil {
		return nil, err
	}
	q.CreatedAt = fromMillis(created)
	q.CompletedAt = fromNullMillis(completed)
	return &q, nil
}
