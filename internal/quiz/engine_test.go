package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codequiz/internal/allocator"
	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/evaluator"
	"github.com/abhisek/codequiz/internal/events"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/store"
)

// keywordEvaluator marks "right" correct and everything else wrong.
type keywordEvaluator struct {
	err   error
	calls int
}

func (k *keywordEvaluator) Evaluate(_ context.Context, _ question.Question, answer string) (*evaluator.Evaluation, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	return &evaluator.Evaluation{Correct: answer == "right", Feedback: "graded"}, nil
}

// bankGenerator writes a fresh question into the store for every request.
type bankGenerator struct {
	s     *store.Store
	err   error
	calls question.Counts
}

func (g *bankGenerator) Generate(ctx context.Context, req questiongen.Request) (*questiongen.Result, error) {
	g.calls = g.calls.Add(req.Type, 1)
	if g.err != nil {
		return nil, g.err
	}
	q := newQuestion(req.Type, req.Language, req.Level, fmt.Sprintf("generated %s %d", req.Type, g.calls.Get(req.Type)))
	if err := g.s.QuestionRepo().CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return &questiongen.Result{Question: q, Source: questiongen.SourceGenerated}, nil
}

type recordingProgress struct {
	answers     int
	invalidated int
	err         error
}

func (r *recordingProgress) RecordAnswer(context.Context, string, bool, float64) error {
	r.answers++
	return r.err
}

func (r *recordingProgress) Invalidate(context.Context) { r.invalidated++ }

func newQuestion(t question.Type, language, level, text string) question.Question {
	meta := question.Meta{Language: language, Level: level, Text: text}
	switch t {
	case question.TypeCoding:
		return &question.Coding{Meta: meta}
	case question.TypeTheory:
		return &question.Theory{Meta: meta, ModelAnswer: "model"}
	default:
		return &question.MCQ{Meta: meta, Options: [4]string{"a", "b", "c", "d"}, Correct: question.OptionA}
	}
}

type fixture struct {
	store     *store.Store
	engine    *Engine
	eval      *keywordEvaluator
	progress  *recordingProgress
	publisher *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:     s,
		eval:      &keywordEvaluator{},
		progress:  &recordingProgress{},
		publisher: &events.Recorder{},
	}
	f.engine = New(Deps{
		Catalog:   s.CatalogRepo(),
		Questions: s.QuestionRepo(),
		Quizzes:   s.QuizRepo(),
		Evaluator: f.eval,
		Progress:  f.progress,
		Publisher: f.publisher,
		Picker:    allocator.NewPicker(rand.New(rand.NewPCG(1, 2))),
	}, DefaultConfig())
	return f
}

func (f *fixture) seed(t *testing.T, typ question.Type, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		q := newQuestion(typ, "python", "beginner", fmt.Sprintf("%s question %d", typ, i))
		require.NoError(t, f.store.QuestionRepo().CreateQuestion(context.Background(), q))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		language string
		level    string
		total    int
		kind     apperr.Kind
		reason   string
	}{
		{"unknown language", "cobol", "beginner", 5, apperr.KindNotFound, "language_not_found"},
		{"unknown level", "python", "wizard", 5, apperr.KindNotFound, "level_not_found"},
		{"negative size", "python", "beginner", -1, apperr.KindValidation, "invalid_num_questions"},
		{"oversized", "python", "beginner", MaxQuestions + 1, apperr.KindValidation, "invalid_num_questions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, "u", tt.language, tt.level, tt.total)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
}

func TestCreateDefaultsAndNormalizes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 12)

	c, err := f.engine.Create(context.Background(), "u", " Python ", "BEGINNER", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultQuestions, c.Quiz.TotalQuestions)
	assert.Equal(t, "python", c.Quiz.Language)
	assert.Empty(t, c.Note)
}

func TestCreateShrinksWithNote(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeTheory, 3)

	c, err := f.engine.Create(context.Background(), "u", "python", "beginner", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Quiz.TotalQuestions)
	assert.Equal(t, "Only 3 questions available. Quiz created with 3 questions instead of 10.", c.Note)
}

func TestCreateGeneratesShortfall(t *testing.T) {
	f := newFixture(t)
	gen := &bankGenerator{s: f.store}
	f.engine.Generator = gen

	c, err := f.engine.Create(context.Background(), "u", "python", "beginner", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Quiz.TotalQuestions)
	assert.Equal(t, 10, c.Generated)
	assert.Empty(t, c.Note)
	assert.Equal(t, question.Counts{Coding: 4, Theory: 3, MCQ: 3}, gen.calls)
}

func TestCreateWithNothingAvailable(t *testing.T) {
	f := newFixture(t)
	f.engine.Generator = &bankGenerator{s: f.store, err: apperr.New(apperr.KindService, "generation_failed", "oracle down")}
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 5)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, "no_questions_available", apperr.ReasonOf(err))

	quizzes, err := f.store.QuizRepo().ListQuizzes(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, quizzes, "nothing is persisted")
}

func TestQuizRunsBalancedWithoutRepeats(t *testing.T) {
	f := newFixture(t)
	for _, typ := range question.Types {
		f.seed(t, typ, 4)
	}
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 6)
	require.NoError(t, err)

	served := map[question.Ref]bool{}
	var types question.Counts
	for i := 0; i < 6; i++ {
		next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
		require.NoError(t, err)
		require.NotNil(t, next.Question, "question %d", i)
		ref := question.RefOf(next.Question)
		require.False(t, served[ref], "question %s served twice", ref)
		served[ref] = true
		types = types.Add(ref.Type, 1)

		answer := "wrong"
		if i%2 == 0 {
			answer = "right"
		}
		sub, err := f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: ref, Answer: answer, TimeTaken: 3})
		require.NoError(t, err)
		assert.Equal(t, i == 5, sub.Completed)
	}
	assert.Equal(t, question.Counts{Coding: 2, Theory: 2, MCQ: 2}, types)

	q, err := f.store.QuizRepo().GetQuiz(ctx, c.Quiz.ID)
	require.NoError(t, err)
	assert.True(t, q.Completed())
	assert.Equal(t, 3, q.Score)
	assert.Equal(t, 6, f.progress.answers)
	assert.Equal(t, 1, f.progress.invalidated)
	require.Len(t, f.publisher.Events(), 1)
	assert.Equal(t, events.QuizCompleted, f.publisher.Events()[0].Type)

	_, err = f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	// A new quiz for the same user never repeats served questions.
	c2, err := f.engine.Create(ctx, "u", "python", "beginner", 6)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		next, err := f.engine.NextQuestion(ctx, "u", c2.Quiz.ID)
		require.NoError(t, err)
		require.NotNil(t, next.Question)
		ref := question.RefOf(next.Question)
		assert.False(t, served[ref], "question %s repeated across quizzes", ref)
		_, err = f.engine.SubmitAnswer(ctx, "u", c2.Quiz.ID, Answer{Ref: ref, Answer: "right"})
		require.NoError(t, err)
	}
}

func TestNextQuestionExhaustionCompletes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 2)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, "u", "python", "beginner", 2)
	require.NoError(t, err)
	second, err := f.engine.Create(ctx, "u", "python", "beginner", 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		next, err := f.engine.NextQuestion(ctx, "u", first.Quiz.ID)
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, "u", first.Quiz.ID, Answer{Ref: question.RefOf(next.Question), Answer: "right"})
		require.NoError(t, err)
	}

	next, err := f.engine.NextQuestion(ctx, "u", second.Quiz.ID)
	require.NoError(t, err)
	assert.Nil(t, next.Question)
	assert.Equal(t, "no more questions", next.Message)
	assert.True(t, next.Quiz.Completed())
	assert.Equal(t, 0, next.Quiz.Score)
}

func TestSubmitAnswerErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 3)
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 3)
	require.NoError(t, err)
	next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)
	ref := question.RefOf(next.Question)

	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: ref, Answer: "right"})
	require.NoError(t, err)

	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: ref, Answer: "right"})
	assert.Equal(t, apperr.KindAlreadyAnswered, apperr.KindOf(err))
	assert.Equal(t, 1, f.eval.calls, "duplicates are rejected before grading")

	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.Ref{Type: question.TypeMCQ, ID: 999}, Answer: "A"})
	assert.Equal(t, "question_not_found", apperr.ReasonOf(err))

	other := newQuestion(question.TypeMCQ, "go", "beginner", "go question")
	require.NoError(t, f.store.QuestionRepo().CreateQuestion(ctx, other))
	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.RefOf(other), Answer: "A"})
	assert.Equal(t, "question_not_in_quiz", apperr.ReasonOf(err))
	assert.Equal(t, 1, f.eval.calls, "foreign questions are rejected before grading")

	_, err = f.engine.SubmitAnswer(ctx, "intruder", c.Quiz.ID, Answer{Ref: ref, Answer: "A"})
	assert.Equal(t, "quiz_not_found", apperr.ReasonOf(err))

	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: ref, Answer: "A", TimeTaken: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSubmitAnswerEvaluationErrorHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeCoding, 2)
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 2)
	require.NoError(t, err)
	next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)

	f.eval.err = apperr.New(apperr.KindUnsupportedLanguage, "unsupported_language", "cannot run cobol")
	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.RefOf(next.Question), Answer: "x"})
	assert.Equal(t, apperr.KindUnsupportedLanguage, apperr.KindOf(err))

	responses, err := f.store.QuizRepo().QuizResponses(ctx, c.Quiz.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
	assert.Zero(t, f.progress.answers)
}

func TestSubmitAnswerSurvivesAuxiliaryFailures(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 1)
	f.progress.err = errors.New("progress table locked")
	f.publisher.Err = errors.New("broker unreachable")
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 1)
	require.NoError(t, err)
	next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)

	sub, err := f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.RefOf(next.Question), Answer: "right"})
	require.NoError(t, err)
	assert.True(t, sub.Completed)
	assert.Equal(t, 1, sub.Quiz.Score)
}

func TestCompleteIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 3)
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 3)
	require.NoError(t, err)
	next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)
	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.RefOf(next.Question), Answer: "right"})
	require.NoError(t, err)

	q, err := f.engine.Complete(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)
	assert.True(t, q.Completed())
	assert.Equal(t, 1, q.Score)

	_, err = f.engine.Complete(ctx, "u", c.Quiz.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.Ref{Type: question.TypeMCQ, ID: 3}, Answer: "right"})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	again, err := f.store.QuizRepo().GetQuiz(ctx, c.Quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, q.CompletedAt.UnixMilli(), again.CompletedAt.UnixMilli())
	assert.Equal(t, 1, again.Score)

	_, err = f.engine.Complete(ctx, "u", 12345)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestHistoryAndDetails(t *testing.T) {
	f := newFixture(t)
	f.seed(t, question.TypeMCQ, 4)
	ctx := context.Background()

	c, err := f.engine.Create(ctx, "u", "python", "beginner", 4)
	require.NoError(t, err)
	for _, answer := range []string{"right", "wrong"} {
		next, err := f.engine.NextQuestion(ctx, "u", c.Quiz.ID)
		require.NoError(t, err)
		_, err = f.engine.SubmitAnswer(ctx, "u", c.Quiz.ID, Answer{Ref: question.RefOf(next.Question), Answer: answer})
		require.NoError(t, err)
	}

	hist, err := f.engine.History(ctx, "u")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].Answered)
	assert.Equal(t, 50.0, hist[0].ScorePercentage)
	assert.Equal(t, 50.0, hist[0].Progress)
	assert.Equal(t, 2, hist[0].Remaining)

	d, err := f.engine.Details(ctx, "u", c.Quiz.ID)
	require.NoError(t, err)
	require.Len(t, d.Responses, 2)
	assert.Equal(t, "right", d.Responses[0].Answer)
	assert.Equal(t, "wrong", d.Responses[1].Answer)
	assert.GreaterOrEqual(t, d.Duration, 0.0)
	assert.Equal(t, 1, d.Correct)

	_, err = f.engine.Details(ctx, "someone-else", c.Quiz.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
