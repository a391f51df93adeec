// Package app builds the service graph shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abhisek/codequiz/internal/allocator"
	"github.com/abhisek/codequiz/internal/api"
	"github.com/abhisek/codequiz/internal/assignment"
	"github.com/abhisek/codequiz/internal/cache"
	"github.com/abhisek/codequiz/internal/config"
	"github.com/abhisek/codequiz/internal/evaluator"
	"github.com/abhisek/codequiz/internal/events"
	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/progress"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/quiz"
	"github.com/abhisek/codequiz/internal/sandbox"
	"github.com/abhisek/codequiz/internal/similarity"
	"github.com/abhisek/codequiz/internal/store"
)

// App owns the store, the oracles and the engines built on them.
type App struct {
	Config      config.Config
	Store       *store.Store
	Provider    llm.Provider
	Generator   *questiongen.Generator
	Evaluator   *evaluator.Evaluator
	Quizzes     *quiz.Engine
	Assignments *assignment.Engine
	Progress    *progress.Tracker
	Logger      *slog.Logger

	cache     cache.Cache
	publisher events.Publisher
	closers   []func() error
}

// New opens the database and wires every engine. Redis and RabbitMQ are
// optional: when unset or unreachable an in-process cache and a no-op
// publisher stand in.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := cfg.Database.DSN
	if dsn == "" && cfg.Database.Driver == store.DriverSQLite {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		dsn = p
	}

	st, err := store.Open(cfg.Database.Driver, dsn, store.WithEmbeddingDimensions(cfg.Embedding.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{Config: cfg, Store: st, Logger: logger}
	a.closers = append(a.closers, st.Close)

	a.Provider, err = llm.NewProvider(ctx, cfg.LLM, st.EventRepo(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Provider == nil {
		logger.Warn("no LLM provider configured; generation and judging use fallbacks")
	}
	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}

	detector := similarity.New(embedder, st.EmbeddingRepo(),
		similarity.WithThreshold(cfg.Dedup.Threshold),
		similarity.WithLimit(cfg.Dedup.Limit),
		similarity.WithLogger(logger),
	)
	a.Generator = questiongen.New(a.Provider, st.QuestionRepo(), detector, cfg.Generation, logger)

	runner := sandbox.New(
		sandbox.WithTimeout(cfg.Sandbox.Timeout),
		sandbox.WithBaseDir(cfg.Sandbox.Dir),
		sandbox.WithLogger(logger),
	)
	a.Evaluator = evaluator.New(a.Provider, runner, st.QuestionRepo(), evaluator.DefaultConfig(), logger)

	a.cache = a.openCache(ctx)
	a.publisher = a.openPublisher()

	a.Progress = progress.New(st.ProgressRepo(), st.QuizRepo(), st.LeaderboardRepo(),
		progress.WithCache(a.cache, cfg.Redis.TTL),
		progress.WithLogger(logger),
	)

	picker := allocator.NewPicker(nil)
	picker.TopProbability = cfg.Quiz.TopProbability
	a.Quizzes = quiz.New(quiz.Deps{
		Catalog:   st.CatalogRepo(),
		Questions: st.QuestionRepo(),
		Quizzes:   st.QuizRepo(),
		Evaluator: a.Evaluator,
		Generator: a.Generator,
		Progress:  a.Progress,
		Publisher: a.publisher,
		Picker:    picker,
		Logger:    logger,
	}, quiz.Config{
		DefaultQuestions: cfg.Quiz.DefaultQuestions,
		MaxQuestions:     cfg.Quiz.MaxQuestions,
	})

	acfg := assignment.DefaultConfig()
	acfg.Coding = cfg.Assignment.Coding
	acfg.Theory = cfg.Assignment.Theory
	acfg.MaxGenerationAttempts = cfg.Assignment.MaxGenerationAttempts
	a.Assignments = assignment.New(assignment.Deps{
		Catalog:     st.CatalogRepo(),
		Questions:   st.QuestionRepo(),
		Quizzes:     st.QuizRepo(),
		Assignments: st.AssignmentRepo(),
		Evaluator:   a.Evaluator,
		Generator:   a.Generator,
		Progress:    a.Progress,
		Publisher:   a.publisher,
		Logger:      logger,
	}, acfg)

	return a, nil
}

func (a *App) openCache(ctx context.Context) cache.Cache {
	if a.Config.Redis.Addr == "" {
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(ctx, a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB, "codequiz")
	if err != nil {
		a.Logger.Warn("redis unavailable, using in-process cache", "addr", a.Config.Redis.Addr, "error", err)
		return cache.NewMemory()
	}
	a.closers = append(a.closers, r.Close)
	return r
}

func (a *App) openPublisher() events.Publisher {
	if a.Config.AMQP.URL == "" {
		return events.Noop{}
	}
	p, err := events.NewAMQP(a.Config.AMQP.URL, a.Config.AMQP.Exchange)
	if err != nil {
		a.Logger.Warn("amqp unavailable, events disabled", "exchange", a.Config.AMQP.Exchange, "error", err)
		return events.Noop{}
	}
	a.closers = append(a.closers, p.Close)
	return p
}

// Handler returns the HTTP API.
func (a *App) Handler() (http.Handler, error) {
	auth, err := api.NewAuthenticator(a.Config.Server.JWTSecret)
	if err != nil {
		return nil, err
	}
	return api.NewRouter(api.Deps{
		Quizzes:     a.Quizzes,
		Assignments: a.Assignments,
		Progress:    a.Progress,
		Generator:   a.Generator,
		Catalog:     a.Store.CatalogRepo(),
		Auth:        auth,
		CORSOrigins: a.Config.Server.CORSOrigins,
		Logger:      a.Logger,
	}), nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
