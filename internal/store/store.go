package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// Postgres driver registered as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported values for Open's driver argument.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate")

	// ErrCompleted is returned when a quiz or assignment no longer accepts
	// responses.
	ErrCompleted = errors.New("already completed")

	// ErrVectorUnsupported is returned by NearestEmbeddings when the
	// database has no vector index.
	ErrVectorUnsupported = errors.New("vector search unsupported")
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and hands out repositories.
type Store struct {
	db      *sql.DB
	dialect string
	dims    int
	vector  bool
}

// Option configures Open.
type Option func(*Store)

// WithEmbeddingDimensions sets the width of the pgvector column.
func WithEmbeddingDimensions(n int) Option {
	return func(s *Store) { s.dims = n }
}

// Open connects to the database, applies pragmas (SQLite) and creates the
// schema. driver is DriverSQLite or DriverPostgres.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	s := &Store{dims: 1536}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	switch driver {
	case DriverSQLite, "":
		s.dialect = dialect.SQLite
		s.db, err = sql.Open("sqlite", dsn)
	case DriverPostgres:
		s.dialect = dialect.Postgres
		s.db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if s.dialect == dialect.SQLite {
		// Every transaction runs on the one connection; callers must
		// close rows before issuing the next statement.
		s.db.SetMaxOpenConns(1)
		if err := applyPragmas(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	if err := s.migrate(context.Background()); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the ent dialect name in use.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CatalogRepo() CatalogRepo         { return &catalogRepo{s} }
func (s *Store) QuestionRepo() QuestionRepo       { return &questionRepo{s} }
func (s *Store) EmbeddingRepo() EmbeddingRepo     { return &embeddingRepo{s} }
func (s *Store) QuizRepo() QuizRepo               { return &quizRepo{s} }
func (s *Store) AssignmentRepo() AssignmentRepo   { return &assignmentRepo{s} }
func (s *Store) ProgressRepo() ProgressRepo       { return &progressRepo{s} }
func (s *Store) LeaderboardRepo() LeaderboardRepo { return &leaderboardRepo{s} }
func (s *Store) EventRepo() *LLMEventRepo         { return &LLMEventRepo{s} }

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

// withTx runs fn in a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func insert(ctx context.Context, q querier, b *entsql.InsertBuilder) (int64, error) {
	query, args := b.Returning("id").Query()
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

func exec(ctx context.Context, q querier, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.RowsAffected()
}

func count(ctx context.Context, q querier, sel *entsql.Selector) (int, error) {
	query, args := sel.Query()
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var lite *sqlite.Error
	if errors.As(err, &lite) {
		code := lite.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code == "23505"
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

// now matches the millisecond precision timestamps are stored at, so a
// returned row equals the one read back later.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// applyPragmas configures SQLite for a single-process server.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the SQLite file path in priority order:
// 1. CODEQUIZ_DB environment variable
// 2. $XDG_DATA_HOME/codequiz/codequiz.db
// 3. ~/.local/share/codequiz/codequiz.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("CODEQUIZ_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "codequiz", "codequiz.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
