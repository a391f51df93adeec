// Package questiongen produces new bank questions through the LLM oracle,
// rejecting near duplicates of existing ones.
package questiongen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abhisek/codequiz/internal/apperr"
	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/retry"
	"github.com/abhisek/codequiz/internal/similarity"
	"github.com/abhisek/codequiz/internal/store"
)

// Source says where a Result's question came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceDuplicate Source = "duplicate"
	SourceRandom    Source = "random"
)

// Result is a generated or substituted question. Warnings collects
// best-effort failures that did not prevent the result.
type Result struct {
	Question   question.Question
	Source     Source
	Similarity float64
	Warnings   []error
}

// Request selects what to generate. Exclude only restricts the random
// fallback; callers must still check the returned ref.
type Request struct {
	Type     question.Type
	Language string
	Level    string
	Exclude  []question.Ref
}

// DuplicateChecker is the slice of similarity.Detector the generator uses.
type DuplicateChecker interface {
	Check(ctx context.Context, t question.Type, text string) (similarity.Verdict, error)
	Index(ctx context.Context, ref question.Ref, text string, vec []float32) error
}

var errDuplicate = errors.New("generated question is a near duplicate")

// Generator implements question generation with dedup retries and
// fallbacks to the existing bank.
type Generator struct {
	provider  llm.Provider
	questions store.QuestionRepo
	dedup     DuplicateChecker
	config    Config
	logger    *slog.Logger
}

// New creates a Generator. provider and dedup may be nil: without a
// provider every request falls back to the bank, without dedup nothing is
// a duplicate.
func New(provider llm.Provider, questions store.QuestionRepo, dedup DuplicateChecker, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider:  provider,
		questions: questions,
		dedup:     dedup,
		config:    cfg,
		logger:    logger,
	}
}

// candidate is a parsed, non-duplicate reply awaiting persistence.
type candidate struct {
	q        question.Question
	vec      []float32
	warnings []error
}

// Generate returns a new question, the most similar existing one when
// every attempt produced a duplicate, or a random bank question when the
// oracle fails. It errors only when none of these is possible.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if _, err := question.ParseType(string(req.Type)); err != nil {
		return nil, apperr.Validation("invalid_question_type", err.Error())
	}
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestionGen)

	var (
		best  *similarity.Match
		cause error = llm.ErrNotConfigured
	)
	if g.provider != nil {
		cand, err := retry.Do(ctx, retry.Attempts(g.config.MaxAttempts), func(ctx context.Context, attempt int) (*candidate, error) {
			c, match, err := g.attempt(ctx, req, attempt)
			if match != nil && (best == nil || match.Similarity > best.Similarity) {
				best = match
			}
			return c, err
		})
		if err == nil {
			return g.persist(ctx, req, cand)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cause = err
	}

	if best != nil {
		q, err := g.questions.GetQuestion(ctx, best.Ref)
		if err == nil {
			g.logger.Info("returning existing near-duplicate question",
				"ref", best.Ref, "similarity", best.Similarity)
			metrics.Generations.WithLabelValues(string(req.Type), string(SourceDuplicate)).Inc()
			return &Result{Question: q, Source: SourceDuplicate, Similarity: best.Similarity}, nil
		}
		g.logger.Warn("near-duplicate question vanished", "ref", best.Ref, "error", err)
	}
	return g.fallback(ctx, req, cause)
}

// attempt makes one oracle call. An oracle error, an unparseable reply and
// a duplicate each use up one attempt.
func (g *Generator) attempt(ctx context.Context, req Request, attempt int) (*candidate, *similarity.Match, error) {
	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    llm.UserMessage(buildUserMessage(req)),
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.temperature(attempt),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		g.logger.Warn("question generation call failed", "type", req.Type, "attempt", attempt+1, "error", err)
		return nil, nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	q, err := Parse(req.Type, resp.Text())
	if err != nil {
		g.logger.Warn("unparseable question reply", "type", req.Type, "attempt", attempt+1, "error", err)
		return nil, nil, err
	}
	meta := q.Base()
	meta.Language = req.Language
	meta.Level = req.Level

	c := &candidate{q: q}
	if g.dedup == nil {
		return c, nil, nil
	}
	verdict, err := g.dedup.Check(ctx, req.Type, meta.Text)
	if err != nil {
		// An unavailable detector must not block generation.
		c.warnings = append(c.warnings, fmt.Errorf("duplicate check: %w", err))
		return c, nil, nil
	}
	if verdict.Duplicate {
		match, _ := verdict.Best()
		g.logger.Info("generated question is a duplicate",
			"type", req.Type, "attempt", attempt+1, "similarity", match.Similarity)
		return nil, &match, errDuplicate
	}
	c.vec = verdict.Vector
	return c, nil, nil
}

func (g *Generator) persist(ctx context.Context, req Request, c *candidate) (*Result, error) {
	if err := g.questions.CreateQuestion(ctx, c.q); err != nil {
		return nil, fmt.Errorf("save generated question: %w", err)
	}
	res := &Result{Question: c.q, Source: SourceGenerated, Warnings: c.warnings}
	ref := question.RefOf(c.q)

	if coding, ok := c.q.(*question.Coding); ok {
		if tc, found := TestCaseFor(coding); !found {
			res.Warnings = append(res.Warnings, fmt.Errorf("question %s: no sample test case in reply", ref))
		} else if saved, err := g.questions.AddTestCase(ctx, ref.ID, tc); err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("save test case for %s: %w", ref, err))
		} else {
			coding.TestCases = append(coding.TestCases, saved)
		}
	}

	if g.dedup != nil {
		if err := g.dedup.Index(ctx, ref, c.q.Base().Text, c.vec); err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("index embedding: %w", err))
		}
	}

	for _, w := range res.Warnings {
		g.logger.Warn("question generated with warnings", "ref", ref, "warning", w)
	}
	metrics.Generations.WithLabelValues(string(req.Type), string(SourceGenerated)).Inc()
	return res, nil
}

func (g *Generator) fallback(ctx context.Context, req Request, cause error) (*Result, error) {
	qs, err := g.questions.SampleQuestions(ctx, req.Type, req.Language, req.Level, req.Exclude, 1)
	if err != nil {
		return nil, fmt.Errorf("sample fallback question: %w", err)
	}
	if len(qs) == 0 {
		metrics.Generations.WithLabelValues(string(req.Type), "failed").Inc()
		return nil, apperr.Wrap(apperr.KindService, "generation_failed",
			"failed to generate question and no fallback available", cause)
	}

	g.logger.Warn("question generation failed, using random bank question",
		"type", req.Type, "ref", question.RefOf(qs[0]), "error", cause)
	metrics.Generations.WithLabelValues(string(req.Type), string(SourceRandom)).Inc()
	return &Result{Question: qs[0], Source: SourceRandom, Warnings: []error{cause}}, nil
}
