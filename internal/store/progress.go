package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type progressRepo struct {
	s *Store
}

func (r *progressRepo) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	query, args := r.s.builder().Select("user_id", "correct_answers", "total_attempts", "accuracy", "average_time", "updated_at").
		From(entsql.Table("user_progress")).
		Where(entsql.EQ("user_id", userID)).
		Query()

	var (
		p       Progress
		updated int64
	)
	err := r.s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.UserID, &p.CorrectAnswers, &p.TotalAttempts, &p.Accuracy, &p.AverageTime, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (r *progressRepo) ensure(ctx context.Context, userID string) error {
	_, err := exec(ctx, r.s.db, r.s.builder().Insert("user_progress").
		Columns("user_id", "updated_at").
		Values(userID, toMillis(now())).
		OnConflict(entsql.ConflictColumns("user_id"), entsql.DoNothing()))
	if err != nil {
		return fmt.Errorf("create progress: %w", err)
	}
	return nil
}

func (r *progressRepo) RecordAttempts(ctx context.Context, userID string, attempts, correct int) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}

	// The SET expressions read the pre-update row, so accuracy is derived
	// from the new totals in the same statement.
	accuracy := entsql.ExprFunc(func(b *entsql.Builder) {
		b.WriteString("CASE WHEN total_attempts + ").Arg(attempts).
			WriteString(" > 0 THEN (correct_answers + ").Arg(correct).
			WriteString(") * 100.0 / (total_attempts + ").Arg(attempts).
			WriteString(") ELSE 0 END")
	})
	_, err := exec(ctx, r.s.db, r.s.builder().Update("user_progress").
		Add("correct_answers", correct).
		Add("total_attempts", attempts).
		Set("accuracy", accuracy).
		Set("updated_at", toMillis(now())).
		Where(entsql.EQ("user_id", userID)))
	if err != nil {
		return fmt.Errorf("record attempts: %w", err)
	}
	return nil
}

func (r *progressRepo) RecordTime(ctx context.Context, userID string, seconds float64) error {
	p, err := r.GetProgress(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		if err := r.ensure(ctx, userID); err != nil {
			return err
		}
		p = &Progress{}
	} else if err != nil {
		return err
	}

	avg := seconds
	if p.AverageTime != 0 {
		avg = (p.AverageTime + seconds) / 2
	}
	_, err = exec(ctx, r.s.db, r.s.builder().Update("user_progress").
		Set("average_time", avg).
		Set("updated_at", toMillis(now())).
		Where(entsql.EQ("user_id", userID)))
	if err != nil {
		return fmt.Errorf("record time: %w", err)
	}
	return nil
}
