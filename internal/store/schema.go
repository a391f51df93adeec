package store

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Default catalog rows seeded on first start.
var (
	DefaultLanguages = []string{"python", "javascript", "java", "c", "cpp", "csharp", "go", "rust", "php", "ruby"}
	DefaultLevels    = []string{"beginner", "intermediate", "advanced"}
)

// tables is written in the SQLite dialect; postgresDDL rewrites the few
// spots that differ.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS languages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS expertise_levels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS coding_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		language TEXT NOT NULL,
		level TEXT NOT NULL,
		question_text TEXT NOT NULL,
		sample_input TEXT NOT NULL DEFAULT '',
		expected_output TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		backfilled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS coding_questions_language_level ON coding_questions (language, level)`,
	`CREATE TABLE IF NOT EXISTS theory_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		language TEXT NOT NULL,
		level TEXT NOT NULL,
		question_text TEXT NOT NULL,
		model_answer TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS theory_questions_language_level ON theory_questions (language, level)`,
	`CREATE TABLE IF NOT EXISTS mcq_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		language TEXT NOT NULL,
		level TEXT NOT NULL,
		question_text TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_option TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS mcq_questions_language_level ON mcq_questions (language, level)`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id BIGINT NOT NULL REFERENCES coding_questions (id) ON DELETE CASCADE,
		input TEXT NOT NULL DEFAULT '',
		expected_output TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS question_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id BIGINT NOT NULL,
		question_type TEXT NOT NULL,
		embedding TEXT NOT NULL,
		UNIQUE (question_id, question_type)
	)`,
	`CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		language TEXT NOT NULL,
		level TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		completed_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS quizzes_user ON quizzes (user_id, language, level)`,
	`CREATE TABLE IF NOT EXISTS quiz_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id BIGINT NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
		question_type TEXT NOT NULL,
		question_id BIGINT NOT NULL,
		user_answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		time_taken DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		UNIQUE (quiz_id, question_type, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		language TEXT NOT NULL,
		level TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		completed_at BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_questions (
		assignment_id BIGINT NOT NULL REFERENCES assignments (id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		question_type TEXT NOT NULL,
		question_id BIGINT NOT NULL,
		PRIMARY KEY (assignment_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS assignment_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id BIGINT NOT NULL REFERENCES assignments (id) ON DELETE CASCADE,
		question_type TEXT NOT NULL,
		question_id BIGINT NOT NULL,
		answer TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		UNIQUE (assignment_id, question_type, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		user_id TEXT PRIMARY KEY,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		total_attempts INTEGER NOT NULL DEFAULT 0,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS llm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp BIGINT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS llm_events_purpose ON llm_events (purpose)`,
}

// migrate creates every table and seeds the catalog. On Postgres it tries
// to enable pgvector; without it embeddings are stored as text and
// similarity search uses the full scan.
func (s *Store) migrate(ctx context.Context) error {
	if s.dialect == dialect.Postgres {
		if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err == nil {
			s.vector = true
		}
	}

	for _, ddl := range tables {
		if s.dialect == dialect.Postgres {
			ddl = s.postgresDDL(ddl)
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%s: %w", firstLine(ddl), err)
		}
	}

	return s.seedCatalog(ctx)
}

func (s *Store) postgresDDL(ddl string) string {
	ddl = strings.ReplaceAll(ddl, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
	if s.vector && strings.Contains(ddl, "question_embeddings") {
		ddl = strings.Replace(ddl, "embedding TEXT NOT NULL", fmt.Sprintf("embedding vector(%d) NOT NULL", s.dims), 1)
	}
	return ddl
}

func (s *Store) seedCatalog(ctx context.Context) error {
	for table, names := range map[string][]string{
		"languages":        DefaultLanguages,
		"expertise_levels": DefaultLevels,
	} {
		for _, name := range names {
			b := s.builder().Insert(table).
				Columns("name").
				Values(name).
				OnConflict(entsql.ConflictColumns("name"), entsql.DoNothing())
			if _, err := exec(ctx, s.db, b); err != nil {
				return fmt.Errorf("seed %s: %w", table, err)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
