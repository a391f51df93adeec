package store

import (
	"context"
	"fmt"
	"strings"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/codequiz/internal/apperr"
)

type catalogRepo struct {
	s *Store
}

func (r *catalogRepo) Languages(ctx context.Context) ([]string, error) {
	return r.names(ctx, "languages")
}

func (r *catalogRepo) Levels(ctx context.Context) ([]string, error) {
	return r.names(ctx, "expertise_levels")
}

func (r *catalogRepo) HasLanguage(ctx context.Context, name string) (bool, error) {
	return r.has(ctx, "languages", name)
}

func (r *catalogRepo) HasLevel(ctx context.Context, name string) (bool, error) {
	return r.has(ctx, "expertise_levels", name)
}

func (r *catalogRepo) AddLanguage(ctx context.Context, name string) error {
	return r.add(ctx, "languages", name)
}

func (r *catalogRepo) AddLevel(ctx context.Context, name string) error {
	return r.add(ctx, "expertise_levels", name)
}

func (r *catalogRepo) names(ctx context.Context, table string) ([]string, error) {
	query, args := r.s.builder().Select("name").
		From(entsql.Table(table)).
		OrderBy("id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *catalogRepo) has(ctx context.Context, table, name string) (bool, error) {
	n, err := count(ctx, r.s.db, r.s.builder().Select().Count().
		From(entsql.Table(table)).
		Where(entsql.EQ("name", NormalizeName(name))))
	if err != nil {
		return false, fmt.Errorf("lookup %s %q: %w", table, name, err)
	}
	return n > 0, nil
}

func (r *catalogRepo) add(ctx context.Context, table, name string) error {
	b := r.s.builder().Insert(table).
		Columns("name").
		Values(NormalizeName(name)).
		OnConflict(entsql.ConflictColumns("name"), entsql.DoNothing())
	if _, err := exec(ctx, r.s.db, b); err != nil {
		return fmt.Errorf("add %s %q: %w", table, name, err)
	}
	return nil
}

// NormalizeName is the canonical form of a language or level name.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CheckCatalog returns a NotFound error unless both language and level
// exist.
func CheckCatalog(ctx context.Context, catalog CatalogRepo, language, level string) error {
	ok, err := catalog.HasLanguage(ctx, language)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("language_not_found", fmt.Sprintf("language %q is not supported", language))
	}
	if ok, err = catalog.HasLevel(ctx, level); err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("level_not_found", fmt.Sprintf("expertise level %q is not supported", level))
	}
	return nil
}
