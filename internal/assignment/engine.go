// Package assignment builds fixed-shape assignments from unseen questions
// and scores them in a single submission.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/evaluator"
	"github.com/abhisek/codequiz/internal/events"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/retry"
	"github.com/abhisek/codequiz/internal/store"
)

// Evaluator grades one answer.
type Evaluator interface {
	Evaluate(ctx context.Context, q question.Question, answer string) (*evaluator.Evaluation, error)
}

// Generator produces a question for a missing slot.
type Generator interface {
	Generate(ctx context.Context, req questiongen.Request) (*questiongen.Result, error)
}

// ProgressRecorder is the slice of progress.Tracker the engine updates.
type ProgressRecorder interface {
	RecordBatch(ctx context.Context, userID string, attempts, correct int) error
	Invalidate(ctx context.Context)
}

// Config is the assignment shape and the per-slot generation budget.
type Config struct {
	Coding                int
	Theory                int
	MaxGenerationAttempts int

	// Concurrency bounds parallel evaluations during Submit.
	Concurrency int
}

// DefaultConfig returns 8 coding and 2 theory questions with five
// generation attempts per missing slot.
func DefaultConfig() Config {
	return Config{Coding: 8, Theory: 2, MaxGenerationAttempts: 5, Concurrency: 4}
}

func (c Config) shape() question.Counts {
	return question.Counts{Coding: c.Coding, Theory: c.Theory}
}

// Deps are the collaborators of an Engine. Generator, Progress and
// Publisher may be nil.
type Deps struct {
	Catalog     store.CatalogRepo
	Questions   store.QuestionRepo
	Quizzes     store.QuizRepo
	Assignments store.AssignmentRepo
	Evaluator   Evaluator
	Generator   Generator
	Progress    ProgressRecorder
	Publisher   events.Publisher
	Logger      *slog.Logger
}

// Engine creates and scores assignments.
type Engine struct {
	Deps
	cfg Config
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Engine{Deps: deps, cfg: cfg}
}

// Generated is a new assignment with its questions in slot order.
type Generated struct {
	Assignment *store.Assignment   `json:"assignment"`
	Questions  []question.Question `json:"questions"`
	Generated  int                 `json:"generated"`
	Warnings   []string            `json:"warnings,omitempty"`
}

var errSeen = errors.New("generated question was already seen")

// Generate fills every slot with a question the user has not answered in
// a quiz for (language, level), generating missing ones. Nothing is
// persisted unless every slot is filled.
func (e *Engine) Generate(ctx context.Context, userID, language, level string) (*Generated, error) {
	language, level = store.NormalizeName(language), store.NormalizeName(level)
	if err := store.CheckCatalog(ctx, e.Catalog, language, level); err != nil {
		return nil, err
	}
	seen, err := e.Quizzes.SeenRefs(ctx, userID, language, level)
	if err != nil {
		return nil, err
	}

	g := &Generated{}
	taken := slices.Clone(seen)
	for _, t := range question.Types {
		want := e.cfg.shape().Get(t)
		if want == 0 {
			continue
		}
		picked, err := e.Questions.SampleQuestions(ctx, t, language, level, taken, want)
		if err != nil {
			return nil, err
		}
		for _, q := range picked {
			g.Questions = append(g.Questions, q)
			taken = append(taken, question.RefOf(q))
		}

		for missing := want - len(picked); missing > 0; missing-- {
			q, warnings, err := e.generateSlot(ctx, t, language, level, taken)
			g.Warnings = append(g.Warnings, warnings...)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				e.Logger.Warn("assignment slot could not be filled", "user", userID, "type", t, "error", err)
				return nil, apperr.Wrap(apperr.KindService, "assignment_generation_failed",
					fmt.Sprintf("could not find or generate enough %s questions", t), err)
			}
			g.Questions = append(g.Questions, q)
			g.Generated++
			taken = append(taken, question.RefOf(q))
		}
	}

	a := &store.Assignment{
		UserID:         userID,
		Language:       language,
		Level:          level,
		TotalQuestions: len(g.Questions),
	}
	for _, q := range g.Questions {
		a.Questions = append(a.Questions, question.RefOf(q))
	}
	if err := e.Assignments.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	g.Assignment = a
	e.Logger.Info("assignment created", "assignment", a.ID, "user", userID, "generated", g.Generated)
	return g, nil
}

// generateSlot asks the generator for one question outside taken.
func (e *Engine) generateSlot(ctx context.Context, t question.Type, language, level string, taken []question.Ref) (question.Question, []string, error) {
	if e.Generator == nil {
		return nil, nil, errors.New("no generator configured")
	}
	var warnings []string
	q, err := retry.Do(ctx, retry.Attempts(e.cfg.MaxGenerationAttempts), func(ctx context.Context, attempt int) (question.Question, error) {
		res, err := e.Generator.Generate(ctx, questiongen.Request{Type: t, Language: language, Level: level, Exclude: taken})
		if err != nil {
			return nil, err
		}
		for _, w := range res.Warnings {
			warnings = append(warnings, w.Error())
		}
		if ref := question.RefOf(res.Question); slices.Contains(taken, ref) {
			e.Logger.Info("rejecting already seen question for assignment", "ref", ref, "attempt", attempt+1)
			return nil, errSeen
		}
		return res.Question, nil
	})
	return q, warnings, err
}

// Result is the grade of one assignment answer.
type Result struct {
	Ref      question.Ref `json:"question"`
	Correct  bool         `json:"is_correct"`
	Feedback string       `json:"feedback"`
	Notes    []string     `json:"notes,omitempty"`
}

// Scored is the result of Submit.
type Scored struct {
	Assignment *store.Assignment `json:"assignment"`
	Results    []Result          `json:"results"`
}

// Submit grades one answer per question, in slot order, and completes
// the assignment. A failed evaluation counts as incorrect.
func (e *Engine) Submit(ctx context.Context, userID string, id int64, answers []string) (*Scored, error) {
	a, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if a.Completed() {
		return nil, apperr.InvalidState("assignment_completed", "assignment is already completed")
	}
	if len(answers) != a.TotalQuestions {
		return nil, apperr.Validation("answer_count_mismatch",
			fmt.Sprintf("expected %d answers, got %d", a.TotalQuestions, len(answers)))
	}

	questions := make([]question.Question, len(a.Questions))
	for i, ref := range a.Questions {
		if questions[i], err = e.Questions.GetQuestion(ctx, ref); err != nil {
			return nil, fmt.Errorf("load assignment question %s: %w", ref, err)
		}
	}

	results := make([]Result, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, q := range questions {
		g.Go(func() error {
			results[i] = e.grade(gctx, q, answers[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	responses := make([]store.AssignmentResponse, len(results))
	for i, r := range results {
		responses[i] = store.AssignmentResponse{Ref: r.Ref, Answer: answers[i], Correct: r.Correct, Feedback: r.Feedback}
	}
	scored, err := e.Assignments.SubmitAssignment(ctx, a.ID, responses)
	if errors.Is(err, store.ErrCompleted) {
		return nil, apperr.InvalidState("assignment_completed", "assignment is already completed")
	}
	if err != nil {
		return nil, err
	}
	scored.Questions = a.Questions

	metrics.AssignmentSubmissions.Inc()
	if e.Progress != nil {
		if err := e.Progress.RecordBatch(ctx, userID, scored.TotalQuestions, scored.Score); err != nil {
			e.Logger.Warn("failed to update progress", "user", userID, "assignment", a.ID, "error", err)
		}
		e.Progress.Invalidate(ctx)
	}
	err = e.Publisher.Publish(ctx, events.AssignmentScored, events.AssignmentScoredEvent{
		AssignmentID:   scored.ID,
		UserID:         scored.UserID,
		Language:       scored.Language,
		Level:          scored.Level,
		Score:          scored.Score,
		TotalQuestions: scored.TotalQuestions,
	})
	if err != nil {
		e.Logger.Warn("failed to publish assignment score", "assignment", a.ID, "error", err)
	}
	return &Scored{Assignment: scored, Results: results}, nil
}

func (e *Engine) grade(ctx context.Context, q question.Question, answer string) Result {
	r := Result{Ref: question.RefOf(q)}
	ev, err := e.Evaluator.Evaluate(ctx, q, answer)
	if err != nil {
		e.Logger.Warn("assignment answer could not be evaluated", "ref", r.Ref, "error", err)
		r.Feedback = "Answer could not be evaluated"
		r.Notes = []string{"evaluation failed: " + err.Error()}
		return r
	}
	r.Correct = ev.Correct
	r.Feedback = ev.Feedback
	r.Notes = ev.Notes
	return r
}

// Details is an assignment with its questions and, once scored, its
// responses.
type Details struct {
	Assignment *store.Assignment          `json:"assignment"`
	Questions  []question.Question        `json:"questions"`
	Responses  []store.AssignmentResponse `json:"responses"`
}

// Get returns one of the user's assignments.
func (e *Engine) Get(ctx context.Context, userID string, id int64) (*Details, error) {
	a, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	d := &Details{Assignment: a, Questions: make([]question.Question, 0, len(a.Questions))}
	for _, ref := range a.Questions {
		q, err := e.Questions.GetQuestion(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load assignment question %s: %w", ref, err)
		}
		d.Questions = append(d.Questions, q)
	}
	if d.Responses, err = e.Assignments.AssignmentResponses(ctx, a.ID); err != nil {
		return nil, err
	}
	if d.Responses == nil {
		d.Responses = []store.AssignmentResponse{}
	}
	return d, nil
}

// List returns the user's assignments, newest first.
func (e *Engine) List(ctx context.Context, userID string) ([]store.Assignment, error) {
	list, err := e.Assignments.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []store.Assignment{}
	}
	return list, nil
}

func (e *Engine) load(ctx context.Context, userID string, id int64) (*store.Assignment, error) {
	a, err := e.Assignments.GetAssignment(ctx, id)
	if errors.Is(err, store.ErrNotFound) || err == nil && a.UserID != userID {
		return nil, apperr.NotFound("assignment_not_found", fmt.Sprintf("assignment %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

