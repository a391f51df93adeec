// Package evaluator grades answers: MCQ by letter, coding by sandboxed
// test cases plus an LLM judge, theory by the judge alone.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/sandbox"
)

// CodeRunner executes a program on one test case.
type CodeRunner interface {
	RunCode(ctx context.Context, code, input, expected, language string) (bool, error)
}

// TestCaseStore persists back-filled test cases.
type TestCaseStore interface {
	BackfillTestCase(ctx context.Context, questionID int64, tc question.TestCase) (bool, error)
}

// Source names the signal that decided an Evaluation.
type Source string

const (
	SourceMCQ       Source = "mcq"
	SourceJudge     Source = "judge"
	SourceHeuristic Source = "heuristic"
	SourceTests     Source = "tests"
	SourceNone      Source = "none"
)

// FailedCase is a test case the submission did not pass.
type FailedCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Error          string `json:"error,omitempty"`
}

// Evaluation is a graded answer. Notes records degraded paths, such as an
// unavailable judge, without failing the evaluation.
type Evaluation struct {
	Correct         bool         `json:"is_correct"`
	Feedback        string       `json:"feedback"`
	Source          Source       `json:"source"`
	TestsRun        int          `json:"tests_run"`
	FailedTestCases []FailedCase `json:"failed_test_cases,omitempty"`
	JudgeFailures   []string     `json:"judge_failed_test_cases,omitempty"`
	Notes           []string     `json:"notes,omitempty"`
}

// Config holds judge call parameters.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{MaxTokens: 1500, Temperature: 0}
}

// Evaluator grades answers.
type Evaluator struct {
	judge     llm.Provider
	runner    CodeRunner
	testCases TestCaseStore
	cfg       Config
	logger    *slog.Logger
}

// New creates an Evaluator. judge may be nil, in which case the documented
// fallbacks apply. testCases may be nil to disable back-filling.
func New(judge llm.Provider, runner CodeRunner, testCases TestCaseStore, cfg Config, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{judge: judge, runner: runner, testCases: testCases, cfg: cfg, logger: logger}
}

// Evaluate grades answer for q. Oracle failures are absorbed; an error is
// returned only for an unsupported coding language, a cancelled context or
// an unknown question variant.
func (e *Evaluator) Evaluate(ctx context.Context, q question.Question, answer string) (*Evaluation, error) {
	var (
		ev  *Evaluation
		err error
	)
	switch q := q.(type) {
	case *question.MCQ:
		ev = evaluateMCQ(q, answer)
	case *question.Coding:
		ev, err = e.evaluateCoding(ctx, q, answer)
	case *question.Theory:
		ev = e.evaluateTheory(ctx, q, answer)
	default:
		return nil, fmt.Errorf("evaluate: unknown question %T", q)
	}
	if err != nil {
		return nil, err
	}
	metrics.Evaluations.WithLabelValues(string(q.Kind()), string(ev.Source), strconv.FormatBool(ev.Correct)).Inc()
	return ev, nil
}

func evaluateMCQ(q *question.MCQ, answer string) *Evaluation {
	ev := &Evaluation{Source: SourceMCQ}
	if opt, err := question.ParseOption(answer); err == nil && opt == q.Correct {
		ev.Correct = true
		ev.Feedback = "Correct Answer"
		return ev
	}
	ev.Feedback = fmt.Sprintf("Incorrect Answer. The correct answer is %s", q.Correct)
	return ev
}

func (e *Evaluator) evaluateCoding(ctx context.Context, q *question.Coding, code string) (*Evaluation, error) {
	cases := e.testCasesFor(ctx, q)
	ev := &Evaluation{TestsRun: len(cases)}

	for _, tc := range cases {
		ok, err := e.runner.RunCode(ctx, code, tc.Input, tc.ExpectedOutput, q.Language)
		if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
			return nil, apperr.Wrap(apperr.KindUnsupportedLanguage, "unsupported_language",
				fmt.Sprintf("code in %q cannot be executed", q.Language), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			ev.FailedTestCases = append(ev.FailedTestCases, FailedCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput, Error: err.Error()})
			continue
		}
		if !ok {
			ev.FailedTestCases = append(ev.FailedTestCases, FailedCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
		}
	}
	allPassed := len(ev.FailedTestCases) == 0

	prompt, err := render(codingTemplate, codingPrompt{
		Question: q.Text,
		Language: q.Language,
		Answer:   code,
		Total:    len(cases),
		Failed:   ev.FailedTestCases,
	})
	if err != nil {
		return nil, fmt.Errorf("build judge prompt: %w", err)
	}

	verdict, err := e.ask(ctx, codingSystemPrompt, prompt)
	if err == nil {
		ev.apply(verdict)
		return ev, nil
	}

	e.logger.Warn("judge unavailable for coding answer", "question", q.ID, "error", err)
	if len(cases) == 0 {
		ev.Source = SourceNone
		ev.Feedback = "Answer could not be evaluated: no test cases and the judge is unavailable"
		ev.Notes = append(ev.Notes, "judge unavailable: "+err.Error())
		return ev, nil
	}
	ev.Source = SourceTests
	ev.Correct = allPassed
	if allPassed {
		ev.Feedback = fmt.Sprintf("All %d test cases passed", len(cases))
	} else {
		ev.Feedback = fmt.Sprintf("%d out of %d test cases failed", len(ev.FailedTestCases), len(cases))
	}
	ev.Notes = append(ev.Notes, "judge unavailable, graded by test cases: "+err.Error())
	return ev, nil
}

// testCasesFor returns q's test cases, back-filling the sample pair from
// the question text when there are none.
func (e *Evaluator) testCasesFor(ctx context.Context, q *question.Coding) []question.TestCase {
	if len(q.TestCases) > 0 {
		return q.TestCases
	}
	tc, ok := questiongen.TestCaseFor(q)
	if !ok {
		return nil
	}
	if e.testCases != nil {
		if _, err := e.testCases.BackfillTestCase(ctx, q.ID, tc); err != nil {
			e.logger.Warn("failed to back-fill test case", "question", q.ID, "error", err)
		}
	}
	return []question.TestCase{tc}
}

func (e *Evaluator) evaluateTheory(ctx context.Context, q *question.Theory, answer string) *Evaluation {
	prompt, err := render(theoryTemplate, theoryPrompt{Question: q.Text, Reference: q.ModelAnswer, Answer: answer})
	if err == nil {
		var verdict Verdict
		verdict, err = e.ask(ctx, theorySystemPrompt, prompt)
		if err == nil {
			ev := &Evaluation{}
			ev.apply(verdict)
			return ev
		}
	}

	e.logger.Warn("judge unavailable for theory answer", "question", q.ID, "error", err)
	return &Evaluation{
		Source:   SourceNone,
		Feedback: "Answer could not be evaluated at this time",
		Notes:    []string{"judge unavailable: " + err.Error()},
	}
}

// ask calls the judge. A reply that breaks the schema is still read
// heuristically; only a missing reply is an error.
func (e *Evaluator) ask(ctx context.Context, system, prompt string) (Verdict, error) {
	if e.judge == nil {
		return Verdict{}, llm.ErrNotConfigured
	}
	resp, err := e.judge.Generate(llm.WithPurpose(ctx, llm.PurposeEvaluation), llm.Request{
		System:      system,
		Messages:    llm.UserMessage(prompt),
		Schema:      VerdictSchema,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		if raw, ok := llm.InvalidContent(err); ok {
			return parseVerdict(raw), nil
		}
		return Verdict{}, err
	}
	return parseVerdict(resp.Content), nil
}

func (ev *Evaluation) apply(v Verdict) {
	ev.Correct = v.Correct
	ev.Feedback = v.Feedback
	ev.JudgeFailures = v.FailedTestCases
	ev.Source = SourceJudge
	if v.Heuristic {
		ev.Source = SourceHeuristic
	}
}
