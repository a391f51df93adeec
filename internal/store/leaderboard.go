package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type leaderboardRepo struct {
	s *Store
}

func (r *leaderboardRepo) QuizAverages(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	return r.averages(ctx, "quizzes", since, limit)
}

func (r *leaderboardRepo) AssignmentAverages(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	return r.averages(ctx, "assignments", since, limit)
}

func (r *leaderboardRepo) averages(ctx context.Context, table string, since time.Time, limit int) ([]LeaderboardEntry, error) {
	where := entsql.NotNull("completed_at")
	if !since.IsZero() {
		where = entsql.And(where, entsql.GTE("completed_at", toMillis(since)))
	}
	sel := r.s.builder().Select(
		"user_id",
		entsql.As(entsql.Avg("score"), "avg_score"),
		entsql.Count("*"),
	).
		From(entsql.Table(table)).
		Where(where).
		GroupBy("user_id").
		OrderBy(entsql.Desc("avg_score"), "user_id")
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s leaderboard: %w", table, err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.AverageScore, &e.Count); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *leaderboardRepo) TopQuizzes(ctx context.Context, language, level string, limit int) ([]QuizRanking, error) {
	where := entsql.NotNull("completed_at")
	if language != "" {
		where = entsql.And(where, entsql.EQ("language", language))
	}
	if level != "" {
		where = entsql.And(where, entsql.EQ("level", level))
	}
	sel := r.s.builder().Select("id", "user_id", "language", "level", "score", "total_questions", "completed_at").
		From(entsql.Table("quizzes")).
		Where(where).
		OrderBy(entsql.Desc("score"), "completed_at", "id")
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quiz leaderboard: %w", err)
	}
	defer rows.Close()

	var out []QuizRanking
	for rows.Next() {
		var (
			qr        QuizRanking
			completed int64
		)
		if err := rows.Scan(&qr.QuizID, &qr.UserID, &qr.Language, &qr.Level, &qr.Score, &qr.TotalQuestions, &completed); err != nil {
			return nil, fmt.Errorf("scan quiz ranking: %w", err)
		}
		qr.CompletedAt = fromMillis(completed)
		out = append(out, qr)
	}
	return out, rows.Err()
}

func (r *leaderboardRepo) LanguageProficiency(ctx context.Context, userID string) ([]LanguageProficiency, error) {
	q := entsql.Table("quizzes").As("q")
	resp := entsql.Table("quiz_responses").As("r")
	query, args := r.s.builder().Select(
		q.C("language"),
		fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END)", resp.C("is_correct")),
		entsql.Count("*"),
	).
		From(resp).
		Join(q).On(resp.C("quiz_id"), q.C("id")).
		Where(entsql.EQ(q.C("user_id"), userID)).
		GroupBy(q.C("language")).
		OrderBy(q.C("language")).
		Query()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query proficiency: %w", err)
	}
	defer rows.Close()

	var out []LanguageProficiency
	for rows.Next() {
		var lp LanguageProficiency
		if err := rows.Scan(&lp.Language, &lp.Correct, &lp.Total); err != nil {
			return nil, fmt.Errorf("scan proficiency: %w", err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}
