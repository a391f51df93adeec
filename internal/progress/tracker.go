// Package progress maintains per-user counters and answers the
// leaderboard and comparison queries built on them.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/cache"
	"github.com/abhisek/codequiz/internal/store"
)

const (
	// DefaultLimit is the leaderboard size when none is given.
	DefaultLimit = 10

	// QuizBoardSize is the number of quizzes on the quiz leaderboard.
	QuizBoardSize = 25

	// DefaultCacheTTL bounds leaderboard staleness.
	DefaultCacheTTL = 60 * time.Second

	cachePrefix = "leaderboard:"
)

// Period is a leaderboard time window.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodMonth Period = "month"
	PeriodWeek  Period = "week"
)

// ParsePeriod maps "" to PeriodAll and rejects unknown windows.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodMonth, PeriodWeek:
		return p, nil
	}
	return "", apperr.Validation("invalid_period", fmt.Sprintf("unknown period %q, expected all, month or week", s))
}

// Since returns the start of the window ending at now. PeriodAll has no
// start.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodMonth:
		return now.AddDate(0, 0, -30)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	}
	return time.Time{}
}

// Leaderboard ranks users by average score over completed quizzes and
// assignments separately.
type Leaderboard struct {
	Period      Period                   `json:"time_period"`
	Limit       int                      `json:"limit"`
	Quizzes     []store.LeaderboardEntry `json:"quiz_leaderboard"`
	Assignments []store.LeaderboardEntry `json:"assignment_leaderboard"`
}

// Stats is the public slice of a user's progress.
type Stats struct {
	UserID         string  `json:"user_id"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalAttempts  int     `json:"total_attempts"`
	Accuracy       float64 `json:"accuracy"`
	AverageTime    float64 `json:"average_time"`
}

// Comparison puts two users side by side.
type Comparison struct {
	User   Stats `json:"user"`
	Friend Stats `json:"friend"`
}

// CompletedQuiz is a completed quiz with its duration in seconds.
type CompletedQuiz struct {
	store.QuizStats
	Duration float64 `json:"duration"`
}

// Proficiency is per-language accuracy over quiz responses.
type Proficiency struct {
	store.LanguageProficiency
	Percentage float64 `json:"percentage"`
}

// Summary is a user's overall record.
type Summary struct {
	Progress    Stats           `json:"progress"`
	Quizzes     []CompletedQuiz `json:"completed_quizzes"`
	Proficiency []Proficiency   `json:"language_proficiency"`
}

// Tracker records progress and serves rankings.
type Tracker struct {
	progress store.ProgressRepo
	quizzes  store.QuizRepo
	boards   store.LeaderboardRepo
	cache    cache.Cache
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCache caches leaderboards in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(t *Tracker) {
		t.cache = c
		t.ttl = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker. Without WithCache nothing is cached.
func New(progress store.ProgressRepo, quizzes store.QuizRepo, boards store.LeaderboardRepo, opts ...Option) *Tracker {
	t := &Tracker{
		progress: progress,
		quizzes:  quizzes,
		boards:   boards,
		cache:    cache.Noop{},
		ttl:      DefaultCacheTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RecordAnswer counts one answer and folds seconds into the average time.
func (t *Tracker) RecordAnswer(ctx context.Context, userID string, correct bool, seconds float64) error {
	c := 0
	if correct {
		c = 1
	}
	if err := t.progress.RecordAttempts(ctx, userID, 1, c); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if seconds > 0 {
		if err := t.progress.RecordTime(ctx, userID, seconds); err != nil {
			return fmt.Errorf("record time: %w", err)
		}
	}
	return nil
}

// RecordBatch counts attempts answers of which correct were right in a
// single adjustment.
func (t *Tracker) RecordBatch(ctx context.Context, userID string, attempts, correct int) error {
	if err := t.progress.RecordAttempts(ctx, userID, attempts, correct); err != nil {
		return fmt.Errorf("record attempts: %w", err)
	}
	return nil
}

// Stats returns userID's counters, zeroed when the user has none.
func (t *Tracker) Stats(ctx context.Context, userID string) (Stats, error) {
	p, err := t.progress.GetProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Stats{UserID: userID}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	return statsOf(p), nil
}

// Compare returns both users' stats. A friend with no progress is
// reported as not found.
func (t *Tracker) Compare(ctx context.Context, userID, friendID string) (*Comparison, error) {
	user, err := t.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	fp, err := t.progress.GetProgress(ctx, friendID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("friend_not_found", fmt.Sprintf("no progress recorded for user %q", friendID))
	}
	if err != nil {
		return nil, err
	}
	return &Comparison{User: user, Friend: statsOf(fp)}, nil
}

// Summary returns progress, completed quizzes and per-language accuracy.
func (t *Tracker) Summary(ctx context.Context, userID string) (*Summary, error) {
	stats, err := t.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizzes, err := t.quizzes.ListQuizzes(ctx, userID)
	if err != nil {
		return nil, err
	}
	prof, err := t.boards.LanguageProficiency(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := &Summary{Progress: stats, Quizzes: []CompletedQuiz{}, Proficiency: make([]Proficiency, 0, len(prof))}
	for _, q := range quizzes {
		if !q.Completed() {
			continue
		}
		cq := CompletedQuiz{QuizStats: q}
		if q.FirstAnswerAt != nil && q.LastAnswerAt != nil {
			cq.Duration = q.LastAnswerAt.Sub(*q.FirstAnswerAt).Seconds()
		}
		s.Quizzes = append(s.Quizzes, cq)
	}
	for _, p := range prof {
		s.Proficiency = append(s.Proficiency, Proficiency{LanguageProficiency: p, Percentage: percent(p.Correct, p.Total)})
	}
	return s, nil
}

// Leaderboard ranks users over period. limit <= 0 means DefaultLimit.
func (t *Tracker) Leaderboard(ctx context.Context, period Period, limit int) (*Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	key := fmt.Sprintf("%s%s:%d", cachePrefix, period, limit)
	var lb Leaderboard
	if t.cached(ctx, key, &lb) {
		return &lb, nil
	}

	since := period.Since(t.now())
	quizzes, err := t.boards.QuizAverages(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	assignments, err := t.boards.AssignmentAverages(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	lb = Leaderboard{Period: period, Limit: limit, Quizzes: round(quizzes), Assignments: round(assignments)}
	t.store(ctx, key, lb)
	return &lb, nil
}

// QuizLeaderboard returns the top completed quizzes, optionally filtered
// by language and level.
func (t *Tracker) QuizLeaderboard(ctx context.Context, language, level string) ([]store.QuizRanking, error) {
	key := fmt.Sprintf("%squizzes:%s:%s", cachePrefix, language, level)
	var ranks []store.QuizRanking
	if t.cached(ctx, key, &ranks) {
		return ranks, nil
	}
	ranks, err := t.boards.TopQuizzes(ctx, language, level, QuizBoardSize)
	if err != nil {
		return nil, err
	}
	if ranks == nil {
		ranks = []store.QuizRanking{}
	}
	t.store(ctx, key, ranks)
	return ranks, nil
}

// Invalidate drops cached leaderboards. Called when a quiz or assignment
// completes.
func (t *Tracker) Invalidate(ctx context.Context) {
	if err := t.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		t.logger.Warn("failed to invalidate leaderboard cache", "error", err)
	}
}

func (t *Tracker) cached(ctx context.Context, key string, dst any) bool {
	hit, err := t.cache.Get(ctx, key, dst)
	if err != nil {
		t.logger.Warn("leaderboard cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (t *Tracker) store(ctx context.Context, key string, v any) {
	if err := t.cache.Set(ctx, key, v, t.ttl); err != nil {
		t.logger.Warn("leaderboard cache write failed", "key", key, "error", err)
	}
}

func statsOf(p *store.Progress) Stats {
	return Stats{
		UserID:         p.UserID,
		CorrectAnswers: p.CorrectAnswers,
		TotalAttempts:  p.TotalAttempts,
		Accuracy:       round2(p.Accuracy),
		AverageTime:    round2(p.AverageTime),
	}
}

func round(entries []store.LeaderboardEntry) []store.LeaderboardEntry {
	out := make([]store.LeaderboardEntry, len(entries))
	for i, e := range entries {
		e.AverageScore = round2(e.AverageScore)
		out[i] = e
	}
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) * 100 / float64(total))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
