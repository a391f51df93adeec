package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/sandbox"
)

// fakeRunner passes inputs listed in pass and fails the rest.
type fakeRunner struct {
	pass  map[string]bool
	err   error
	calls int
}

func (f *fakeRunner) RunCode(_ context.Context, _, input, _, _ string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.pass[input], nil
}

type recordingBackfill struct {
	got []question.TestCase
}

func (r *recordingBackfill) BackfillTestCase(_ context.Context, _ int64, tc question.TestCase) (bool, error) {
	r.got = append(r.got, tc)
	return true, nil
}

func codingQuestion(cases ...question.TestCase) *question.Coding {
	return &question.Coding{
		Meta:      question.Meta{ID: 1, Language: "python", Level: "beginner", Text: "Print the sum of two integers."},
		TestCases: cases,
	}
}

func verdictJSON(correct bool, feedback string) llm.MockResponse {
	b, _ := json.Marshal(map[string]any{"correct": correct, "feedback": feedback, "failed_test_cases": []string{}})
	return llm.MockResponse{Content: b}
}

func TestMCQ(t *testing.T) {
	q := &question.MCQ{Meta: question.Meta{ID: 1}, Options: [4]string{"a", "b", "c", "d"}, Correct: question.OptionB}
	e := New(nil, nil, nil, DefaultConfig(), nil)

	ev, err := e.Evaluate(context.Background(), q, "B")
	require.NoError(t, err)
	assert.True(t, ev.Correct)
	assert.Equal(t, "Correct Answer", ev.Feedback)
	assert.Equal(t, SourceMCQ, ev.Source)

	ev, err = e.Evaluate(context.Background(), q, "A")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	assert.Equal(t, "Incorrect Answer. The correct answer is B", ev.Feedback)

	ev, _ = e.Evaluate(context.Background(), q, "b)")
	assert.True(t, ev.Correct, "labels are case and punctuation tolerant")

	ev, _ = e.Evaluate(context.Background(), q, "banana")
	assert.False(t, ev.Correct)
}

func TestCodingJudgeIsAuthoritative(t *testing.T) {
	runner := &fakeRunner{pass: map[string]bool{"1 2": true}}
	judge := llm.NewMockProvider(verdictJSON(false, "Fails on negative numbers."))
	e := New(judge, runner, nil, DefaultConfig(), nil)

	q := codingQuestion(
		question.TestCase{Input: "1 2", ExpectedOutput: "3"},
		question.TestCase{Input: "-1 -2", ExpectedOutput: "-3"},
	)
	ev, err := e.Evaluate(context.Background(), q, "print(3)")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	assert.Equal(t, SourceJudge, ev.Source)
	assert.Equal(t, "Fails on negative numbers.", ev.Feedback)
	assert.Equal(t, 2, ev.TestsRun)
	require.Len(t, ev.FailedTestCases, 1)
	assert.Equal(t, "-1 -2", ev.FailedTestCases[0].Input)

	require.Len(t, judge.Calls, 1)
	prompt := judge.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "1 out of 2 test cases failed")
	assert.Equal(t, VerdictSchema, judge.Calls[0].Schema)
}

func TestCodingJudgeOverridesPassingTests(t *testing.T) {
	runner := &fakeRunner{pass: map[string]bool{"1 2": true}}
	judge := llm.NewMockProvider(verdictJSON(false, "Hard-coded output."))
	e := New(judge, runner, nil, DefaultConfig(), nil)

	ev, err := e.Evaluate(context.Background(), codingQuestion(question.TestCase{Input: "1 2", ExpectedOutput: "3"}), "print(3)")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	assert.Empty(t, ev.FailedTestCases)
}

func TestCodingOracleDownFallsBackToTests(t *testing.T) {
	tests := []struct {
		name    string
		pass    map[string]bool
		correct bool
	}{
		{"all pass", map[string]bool{"a": true, "b": true}, true},
		{"one fails", map[string]bool{"a": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
			e := New(judge, &fakeRunner{pass: tt.pass}, nil, DefaultConfig(), nil)
			q := codingQuestion(
				question.TestCase{Input: "a", ExpectedOutput: "x"},
				question.TestCase{Input: "b", ExpectedOutput: "y"},
			)

			ev, err := e.Evaluate(context.Background(), q, "code")
			require.NoError(t, err)
			assert.Equal(t, tt.correct, ev.Correct)
			assert.Equal(t, SourceTests, ev.Source)
			assert.NotEmpty(t, ev.Notes)
		})
	}
}

func TestCodingNoTestsNoJudge(t *testing.T) {
	q := &question.Coding{Meta: question.Meta{ID: 1, Language: "python", Text: "Write a function."}}
	e := New(nil, &fakeRunner{}, nil, DefaultConfig(), nil)

	ev, err := e.Evaluate(context.Background(), q, "code")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	assert.Equal(t, SourceNone, ev.Source)
	assert.Zero(t, ev.TestsRun)
}

func TestCodingBackfillsSampleTestCase(t *testing.T) {
	q := &question.Coding{
		Meta:           question.Meta{ID: 9, Language: "python", Text: "Sum."},
		SampleInput:    "2 2",
		ExpectedOutput: "4",
	}
	runner := &fakeRunner{pass: map[string]bool{"2 2": true}}
	store := &recordingBackfill{}
	e := New(nil, runner, store, DefaultConfig(), nil)

	ev, err := e.Evaluate(context.Background(), q, "code")
	require.NoError(t, err)
	assert.True(t, ev.Correct)
	assert.Equal(t, 1, runner.calls)
	require.Len(t, store.got, 1)
	assert.Equal(t, "4", store.got[0].ExpectedOutput)
}

func TestCodingUnsupportedLanguage(t *testing.T) {
	runner := &fakeRunner{err: &sandbox.UnsupportedLanguageError{Language: "cobol"}}
	e := New(llm.NewMockProvider(verdictJSON(true, "ok")), runner, nil, DefaultConfig(), nil)

	_, err := e.Evaluate(context.Background(), codingQuestion(question.TestCase{Input: "1", ExpectedOutput: "1"}), "code")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnsupportedLanguage, apperr.KindOf(err))
	assert.ErrorIs(t, err, sandbox.ErrUnsupportedLanguage)
}

func TestCodingRunnerErrorCountsAsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("disk full")}
	e := New(nil, runner, nil, DefaultConfig(), nil)

	ev, err := e.Evaluate(context.Background(), codingQuestion(question.TestCase{Input: "1", ExpectedOutput: "1"}), "code")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	require.Len(t, ev.FailedTestCases, 1)
	assert.Equal(t, "disk full", ev.FailedTestCases[0].Error)
}

func TestTheory(t *testing.T) {
	q := &question.Theory{Meta: question.Meta{ID: 2, Text: "What is a goroutine?"}, ModelAnswer: "A lightweight thread."}

	judge := llm.NewMockProvider(verdictJSON(true, "Right."))
	ev, err := New(judge, nil, nil, DefaultConfig(), nil).Evaluate(context.Background(), q, "a green thread")
	require.NoError(t, err)
	assert.True(t, ev.Correct)
	assert.Equal(t, SourceJudge, ev.Source)
	assert.Contains(t, judge.Calls[0].Messages[0].Content, "A lightweight thread.")

	down := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{}})
	ev, err = New(down, nil, nil, DefaultConfig(), nil).Evaluate(context.Background(), q, "a green thread")
	require.NoError(t, err)
	assert.False(t, ev.Correct, "theory without a judge is never correct")
	assert.Equal(t, SourceNone, ev.Source)
	assert.NotEmpty(t, ev.Notes)
}

func TestTheoryMalformedJudgeReply(t *testing.T) {
	q := &question.Theory{Meta: question.Meta{ID: 2, Text: "q"}}
	judge := llm.NewMockProvider(llm.Text("```json\n{\"correct\": true, \"feedback\": \"Nice work\", }\n```"))

	ev, err := New(judge, nil, nil, DefaultConfig(), nil).Evaluate(context.Background(), q, "a")
	require.NoError(t, err)
	assert.True(t, ev.Correct)
	assert.Equal(t, "Nice work", ev.Feedback)
	assert.Equal(t, SourceHeuristic, ev.Source)
}

func TestJudgeSchemaViolationIsSalvaged(t *testing.T) {
	q := &question.Theory{Meta: question.Meta{ID: 2, Text: "q"}}
	raw := json.RawMessage(`{"correct": false, "feedback": "Missing the key point"}`)
	judge := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrInvalidResponse{Content: raw, Err: errors.New("missing failed_test_cases")}})

	ev, err := New(judge, nil, nil, DefaultConfig(), nil).Evaluate(context.Background(), q, "a")
	require.NoError(t, err)
	assert.False(t, ev.Correct)
	assert.Equal(t, "Missing the key point", ev.Feedback)
	assert.Equal(t, SourceHeuristic, ev.Source)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		correct   bool
		feedback  string
		heuristic bool
	}{
		{"plain json", `{"correct": true, "feedback": "ok", "failed_test_cases": []}`, true, "ok", false},
		{"fenced json", "```json\n{\"correct\": false, \"feedback\": \"no\", \"failed_test_cases\": [\"x\"]}\n```", false, "no", false},
		{"prose with verdict", `I think "correct": true because "feedback": "fine"`, true, "fine", true},
		{"prose without verdict", "The answer looks right to me.", false, feedbackUnavailable, true},
		{"correct false", `"correct": false, "feedback": "bad"`, false, "bad", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseVerdict([]byte(tt.raw))
			assert.Equal(t, tt.correct, v.Correct)
			assert.Equal(t, tt.feedback, v.Feedback)
			assert.Equal(t, tt.heuristic, v.Heuristic)
		})
	}
}
