// Package config builds the process-wide Config from a .env file and
// CODEQUIZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/questiongen"
	"github.com/abhisek/codequiz/internal/similarity"
	"github.com/abhisek/codequiz/internal/store"
)

// Config is built once at startup and handed to constructors.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	LLM        llm.Config
	Embedding  llm.EmbeddingConfig
	Dedup      DedupConfig
	Generation questiongen.Config
	Assignment AssignmentConfig
	Quiz       QuizConfig
	Sandbox    SandboxConfig
	Redis      RedisConfig
	AMQP       AMQPConfig
	LogLevel   slog.Level
}

type ServerConfig struct {
	Addr        string
	JWTSecret   string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type DedupConfig struct {
	Threshold float64
	Limit     int
}

type AssignmentConfig struct {
	MaxGenerationAttempts int
	Coding                int
	Theory                int
}

type QuizConfig struct {
	DefaultQuestions int
	MaxQuestions     int
	TopProbability   float64
}

type SandboxConfig struct {
	Timeout time.Duration
	Dir     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Database:   DatabaseConfig{Driver: store.DriverSQLite},
		LLM:        llm.DefaultConfig(),
		Embedding:  llm.DefaultEmbeddingConfig(),
		Dedup:      DedupConfig{Threshold: similarity.DefaultThreshold, Limit: similarity.DefaultLimit},
		Generation: questiongen.DefaultConfig(),
		Assignment: AssignmentConfig{MaxGenerationAttempts: 5, Coding: 8, Theory: 2},
		Quiz:       QuizConfig{DefaultQuestions: 10, MaxQuestions: 50, TopProbability: 0.8},
		Sandbox:    SandboxConfig{Timeout: 10 * time.Second},
		Redis:      RedisConfig{TTL: 60 * time.Second},
		AMQP:       AMQPConfig{Exchange: "codequiz.events"},
		LogLevel:   slog.LevelInfo,
	}
}

// Load reads envFile when it exists, then overlays CODEQUIZ_* variables
// on Default. An empty envFile means ".env". Variables already present in
// the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	cfg.LLM = llm.ConfigFromEnv()
	cfg.Embedding = llm.EmbeddingConfigFromEnv(cfg.LLM)

	var errs []error
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, key string) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&cfg.Server.Addr, "CODEQUIZ_ADDR")
	str(&cfg.Server.JWTSecret, "CODEQUIZ_JWT_SECRET")
	if v := os.Getenv("CODEQUIZ_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	str(&cfg.Database.Driver, "CODEQUIZ_DB_DRIVER")
	str(&cfg.Database.DSN, "CODEQUIZ_DB")

	float(&cfg.Dedup.Threshold, "CODEQUIZ_DUPLICATE_THRESHOLD")
	num(&cfg.Dedup.Limit, "CODEQUIZ_DUPLICATE_LIMIT")

	num(&cfg.Generation.MaxAttempts, "CODEQUIZ_GENERATION_ATTEMPTS")
	num(&cfg.Generation.MaxTokens, "CODEQUIZ_GENERATION_MAX_TOKENS")

	num(&cfg.Assignment.MaxGenerationAttempts, "CODEQUIZ_ASSIGNMENT_GENERATION_ATTEMPTS")

	num(&cfg.Quiz.DefaultQuestions, "CODEQUIZ_QUIZ_QUESTIONS")
	num(&cfg.Quiz.MaxQuestions, "CODEQUIZ_QUIZ_MAX_QUESTIONS")

	dur(&cfg.Sandbox.Timeout, "CODEQUIZ_SANDBOX_TIMEOUT")
	str(&cfg.Sandbox.Dir, "CODEQUIZ_SANDBOX_DIR")

	str(&cfg.Redis.Addr, "CODEQUIZ_REDIS_ADDR")
	str(&cfg.Redis.Password, "CODEQUIZ_REDIS_PASSWORD")
	num(&cfg.Redis.DB, "CODEQUIZ_REDIS_DB")
	dur(&cfg.Redis.TTL, "CODEQUIZ_CACHE_TTL")

	str(&cfg.AMQP.URL, "CODEQUIZ_AMQP_URL")
	str(&cfg.AMQP.Exchange, "CODEQUIZ_AMQP_EXCHANGE")

	if v := os.Getenv("CODEQUIZ_LOG_LEVEL"); v != "" {
		lvl, err := ParseLevel(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.LogLevel = lvl
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. The JWT secret is only
// required when serving HTTP.
func (c Config) Validate(serving bool) error {
	var errs []error
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == store.DriverPostgres && c.Database.DSN == "" {
		errs = append(errs, errors.New("CODEQUIZ_DB is required for the postgres driver"))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("duplicate threshold must be in (0, 1], got %v", c.Dedup.Threshold))
	}
	if c.Dedup.Limit <= 0 {
		errs = append(errs, fmt.Errorf("duplicate limit must be positive, got %d", c.Dedup.Limit))
	}
	if c.Generation.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("generation attempts must be positive, got %d", c.Generation.MaxAttempts))
	}
	if c.Assignment.MaxGenerationAttempts <= 0 {
		errs = append(errs, fmt.Errorf("assignment generation attempts must be positive, got %d", c.Assignment.MaxGenerationAttempts))
	}
	if c.Quiz.DefaultQuestions <= 0 || c.Quiz.DefaultQuestions > c.Quiz.MaxQuestions {
		errs = append(errs, fmt.Errorf("default quiz size %d must be in [1, %d]", c.Quiz.DefaultQuestions, c.Quiz.MaxQuestions))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox timeout must be positive, got %s", c.Sandbox.Timeout))
	}
	if serving && c.Server.JWTSecret == "" {
		errs = append(errs, errors.New("CODEQUIZ_JWT_SECRET is required to serve"))
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
