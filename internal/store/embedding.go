package store

import (
	"context"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/codequiz/internal/question"
)

type embeddingRepo struct {
	s *Store
}

// Vectors are stored in the pgvector text form "[x,y,...]", which is also
// a JSON array.
func encodeVector(vec []float32) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *embeddingRepo) UpsertEmbedding(ctx context.Context, ref question.Ref, vec []float32) error {
	enc, err := encodeVector(vec)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	b := r.s.builder().Insert("question_embeddings").
		Columns("question_id", "question_type", "embedding").
		Values(ref.ID, string(ref.Type), enc).
		OnConflict(
			entsql.ConflictColumns("question_id", "question_type"),
			entsql.ResolveWithNewValues(),
		)
	if _, err := exec(ctx, r.s.db, b); err != nil {
		return fmt.Errorf("upsert embedding %s: %w", ref, err)
	}
	return nil
}

func (r *embeddingRepo) Embeddings(ctx context.Context, t question.Type) ([]StoredEmbedding, error) {
	column := "embedding"
	if r.s.dialect == dialect.Postgres {
		column = "embedding::text AS embedding"
	}
	query, args := r.s.builder().Select("question_id", column).
		From(entsql.Table("question_embeddings")).
		Where(entsql.EQ("question_type", string(t))).
		OrderBy("question_id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []StoredEmbedding
	for rows.Next() {
		var (
			e   StoredEmbedding
			raw string
		)
		if err := rows.Scan(&e.QuestionID, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", e.QuestionID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *embeddingRepo) NearestEmbeddings(ctx context.Context, t question.Type, vec []float32, threshold float64, limit int) ([]SimilarMatch, error) {
	if !r.s.vector {
		return nil, ErrVectorUnsupported
	}
	enc, err := encodeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	// Cosine similarity is 1 - cosine distance (<=>).
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT question_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM question_embeddings
		WHERE question_type = $2 AND 1 - (embedding <=> $1::vector) > $3
		ORDER BY similarity DESC
		LIMIT $4`,
		enc, string(t), threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		if err := rows.Scan(&m.QuestionID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
