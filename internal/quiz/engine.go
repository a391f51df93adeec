// Package quiz runs quiz sessions: creation with on-demand generation,
// balanced next-question selection, answer submission and completion.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abhisek/codequiz/internal/allocator"
	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/evaluator"
	"github.com/abhisek/codequiz/internal/events"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/store"
)

// Defaults for Config.
const (
	DefaultQuestions = 10
	MaxQuestions     = 50
)

// Evaluator grades one answer.
type Evaluator interface {
	Evaluate(ctx context.Context, q question.Question, answer string) (*evaluator.Evaluation, error)
}

// Generator fills bank shortfalls.
type Generator interface {
	Generate(ctx context.Context, req questiongen.Request) (*questiongen.Result, error)
}

// ProgressRecorder is the slice of progress.Tracker the engine updates.
type ProgressRecorder interface {
	RecordAnswer(ctx context.Context, userID string, correct bool, seconds float64) error
	Invalidate(ctx context.Context)
}

// Config bounds quiz sizes.
type Config struct {
	DefaultQuestions int
	MaxQuestions     int
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{DefaultQuestions: DefaultQuestions, MaxQuestions: MaxQuestions}
}

// Deps are the collaborators of an Engine. Generator, Progress and
// Publisher may be nil.
type Deps struct {
	Catalog   store.CatalogRepo
	Questions store.QuestionRepo
	Quizzes   store.QuizRepo
	Evaluator Evaluator
	Generator Generator
	Progress  ProgressRecorder
	Publisher events.Publisher
	Picker    *allocator.Picker
	Logger    *slog.Logger
}

// Engine implements the quiz state machine. Open quizzes accept answers;
// completed quizzes are read-only.
type Engine struct {
	Deps
	cfg Config
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	if deps.Picker == nil {
		deps.Picker = allocator.NewPicker(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{Deps: deps, cfg: cfg}
}

// Created is the result of Create. Note is set when the quiz is shorter
// than requested.
type Created struct {
	Quiz      *store.Quiz `json:"quiz"`
	Note      string      `json:"note,omitempty"`
	Generated int         `json:"generated"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Create opens a quiz of total questions for (language, level). A zero
// total means the configured default. When the unseen bank is short, the
// gap is generated first; if it is still short the quiz shrinks.
func (e *Engine) Create(ctx context.Context, userID, language, level string, total int) (*Created, error) {
	language, level = store.NormalizeName(language), store.NormalizeName(level)
	if total == 0 {
		total = e.cfg.DefaultQuestions
	}
	if total < 1 || total > e.cfg.MaxQuestions {
		return nil, apperr.Validation("invalid_num_questions",
			fmt.Sprintf("num_questions must be between 1 and %d", e.cfg.MaxQuestions))
	}
	if err := store.CheckCatalog(ctx, e.Catalog, language, level); err != nil {
		return nil, err
	}

	seen, err := e.Quizzes.SeenRefs(ctx, userID, language, level)
	if err != nil {
		return nil, err
	}
	avail, err := e.Questions.CountAvailable(ctx, language, level, seen)
	if err != nil {
		return nil, err
	}

	created := &Created{}
	if avail.Total() < total && e.Generator != nil {
		gap := allocator.Gap(total, avail)
		created.Generated, created.Warnings = e.fill(ctx, language, level, gap, seen)
		if avail, err = e.Questions.CountAvailable(ctx, language, level, seen); err != nil {
			return nil, err
		}
	}

	n := min(total, avail.Total())
	if n == 0 {
		return nil, apperr.New(apperr.KindNotFound, "no_questions_available",
			fmt.Sprintf("no questions available for %s (%s)", language, level))
	}
	if n < total {
		created.Note = fmt.Sprintf("Only %d questions available. Quiz created with %d questions instead of %d.", n, n, total)
	}

	q := &store.Quiz{UserID: userID, Language: language, Level: level, TotalQuestions: n}
	if err := e.Quizzes.CreateQuiz(ctx, q); err != nil {
		return nil, err
	}
	created.Quiz = q
	e.Logger.Info("quiz created", "quiz", q.ID, "user", userID, "questions", n, "generated", created.Generated)
	return created, nil
}

// fill generates up to gap questions per type. Generation stops for a
// type at its first failure; every failure is auxiliary.
func (e *Engine) fill(ctx context.Context, language, level string, gap question.Counts, seen []question.Ref) (int, []string) {
	var (
		generated int
		warnings  []string
	)
	exclude := append([]question.Ref(nil), seen...)
	for _, t := range question.Types {
		for i := 0; i < gap.Get(t); i++ {
			res, err := e.Generator.Generate(ctx, questiongen.Request{Type: t, Language: language, Level: level, Exclude: exclude})
			if err != nil {
				e.Logger.Warn("failed to generate quiz question", "type", t, "error", err)
				warnings = append(warnings, fmt.Sprintf("generate %s question: %v", t, err))
				break
			}
			for _, w := range res.Warnings {
				warnings = append(warnings, w.Error())
			}
			if res.Source != questiongen.SourceGenerated {
				// Only duplicates or a random pick are left for this type.
				break
			}
			generated++
			exclude = append(exclude, question.RefOf(res.Question))
		}
	}
	return generated, warnings
}

// Next is the result of NextQuestion. When Question is nil the quiz has
// been completed and Message says why.
type Next struct {
	Question question.Question `json:"question,omitempty"`
	Quiz     *store.Quiz       `json:"quiz"`
	Answered int               `json:"answered"`
	Message  string            `json:"message,omitempty"`
}

// NextQuestion picks an unseen question of the most under-served type.
// When nothing is eligible the quiz is completed.
func (e *Engine) NextQuestion(ctx context.Context, userID string, quizID int64) (*Next, error) {
	q, err := e.load(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if q.Completed() {
		return nil, apperr.InvalidState("quiz_completed", "quiz is already completed")
	}

	responses, err := e.Quizzes.QuizResponses(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	seen, err := e.Quizzes.SeenRefs(ctx, userID, q.Language, q.Level)
	if err != nil {
		return nil, err
	}
	var answered question.Counts
	for _, r := range responses {
		answered = answered.Add(r.Ref.Type, 1)
		seen = append(seen, r.Ref)
	}

	remaining, err := e.Questions.CountAvailable(ctx, q.Language, q.Level, seen)
	if err != nil {
		return nil, err
	}
	if t, ok := e.Picker.Next(q.TotalQuestions, answered, remaining); ok {
		picked, err := e.Questions.SampleQuestions(ctx, t, q.Language, q.Level, seen, 1)
		if err != nil {
			return nil, err
		}
		if len(picked) > 0 {
			return &Next{Question: picked[0], Quiz: q, Answered: len(responses)}, nil
		}
	}

	done, err := e.Quizzes.CompleteQuiz(ctx, q.ID)
	if errors.Is(err, store.ErrCompleted) {
		return nil, apperr.InvalidState("quiz_completed", "quiz is already completed")
	}
	if err != nil {
		return nil, err
	}
	e.completed(ctx, done)
	return &Next{Quiz: done, Answered: len(responses), Message: "no more questions"}, nil
}

// Answer is one submitted answer.
type Answer struct {
	Ref       question.Ref
	Answer    string
	TimeTaken float64
}

// Submitted is the result of SubmitAnswer.
type Submitted struct {
	Evaluation *evaluator.Evaluation `json:"evaluation"`
	Quiz       *store.Quiz           `json:"quiz"`
	Completed  bool                  `json:"completed"`
}

// SubmitAnswer grades and records an answer. Each question is accepted
// once per quiz; the last expected answer completes the quiz.
func (e *Engine) SubmitAnswer(ctx context.Context, userID string, quizID int64, a Answer) (*Submitted, error) {
	q, err := e.load(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if q.Completed() {
		return nil, apperr.InvalidState("quiz_completed", "quiz is already completed")
	}
	if a.TimeTaken < 0 {
		return nil, apperr.Validation("invalid_time_taken", "time_taken must not be negative")
	}

	responses, err := e.Quizzes.QuizResponses(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range responses {
		if r.Ref == a.Ref {
			return nil, alreadyAnswered(a.Ref)
		}
	}

	qn, err := e.Questions.GetQuestion(ctx, a.Ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("question_not_found", fmt.Sprintf("question %s not found", a.Ref))
	}
	if err != nil {
		return nil, err
	}
	if meta := qn.Base(); store.NormalizeName(meta.Language) != q.Language || store.NormalizeName(meta.Level) != q.Level {
		return nil, apperr.Validation("question_not_in_quiz",
			fmt.Sprintf("question %s is not a %s (%s) question", a.Ref, q.Language, q.Level))
	}

	ev, err := e.Evaluator.Evaluate(ctx, qn, a.Answer)
	if err != nil {
		return nil, err
	}

	updated, err := e.Quizzes.SubmitQuizResponse(ctx, &store.QuizResponse{
		QuizID:    q.ID,
		Ref:       a.Ref,
		Answer:    a.Answer,
		Correct:   ev.Correct,
		Feedback:  ev.Feedback,
		TimeTaken: a.TimeTaken,
	})
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return nil, alreadyAnswered(a.Ref)
	case errors.Is(err, store.ErrCompleted):
		return nil, apperr.InvalidState("quiz_completed", "quiz is already completed")
	case err != nil:
		return nil, err
	}

	if e.Progress != nil {
		if err := e.Progress.RecordAnswer(ctx, userID, ev.Correct, a.TimeTaken); err != nil {
			e.Logger.Warn("failed to update progress", "user", userID, "quiz", q.ID, "error", err)
		}
	}
	if updated.Completed() {
		e.completed(ctx, updated)
	}
	return &Submitted{Evaluation: ev, Quiz: updated, Completed: updated.Completed()}, nil
}

// Complete ends an open quiz early and scores it.
func (e *Engine) Complete(ctx context.Context, userID string, quizID int64) (*store.Quiz, error) {
	if _, err := e.load(ctx, userID, quizID); err != nil {
		return nil, err
	}
	q, err := e.Quizzes.CompleteQuiz(ctx, quizID)
	if errors.Is(err, store.ErrCompleted) {
		return nil, apperr.InvalidState("quiz_completed", "quiz is already completed")
	}
	if err != nil {
		return nil, err
	}
	e.completed(ctx, q)
	return q, nil
}

func (e *Engine) completed(ctx context.Context, q *store.Quiz) {
	metrics.QuizCompletions.Inc()
	if e.Progress != nil {
		e.Progress.Invalidate(ctx)
	}
	err := e.Publisher.Publish(ctx, events.QuizCompleted, events.QuizCompletedEvent{
		QuizID:         q.ID,
		UserID:         q.UserID,
		Language:       q.Language,
		Level:          q.Level,
		Score:          q.Score,
		TotalQuestions: q.TotalQuestions,
	})
	if err != nil {
		e.Logger.Warn("failed to publish quiz completion", "quiz", q.ID, "error", err)
	}
	e.Logger.Info("quiz completed", "quiz", q.ID, "user", q.UserID, "score", q.Score, "total", q.TotalQuestions)
}

// load returns the user's quiz. Other users' quizzes are reported as
// missing.
func (e *Engine) load(ctx context.Context, userID string, quizID int64) (*store.Quiz, error) {
	q, err := e.Quizzes.GetQuiz(ctx, quizID)
	if errors.Is(err, store.ErrNotFound) || err == nil && q.UserID != userID {
		return nil, apperr.NotFound("quiz_not_found", fmt.Sprintf("quiz %d not found", quizID))
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func alreadyAnswered(ref question.Ref) error {
	return apperr.New(apperr.KindAlreadyAnswered, "already_answered",
		fmt.Sprintf("question %s has already been answered in this quiz", ref))
}

