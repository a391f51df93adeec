// Package similarity detects semantically duplicate questions by comparing
// text embeddings.
package similarity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/metrics"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/store"
)

const (
	DefaultThreshold = 0.87
	DefaultLimit     = 5
)

// Match is an existing question close to the checked text.
type Match struct {
	Ref        question.Ref
	Similarity float64
}

// Verdict is the outcome of a duplicate check. Vector is the embedding of
// the checked text, kept so the caller can index it without a second
// oracle call.
type Verdict struct {
	Duplicate bool
	Matches   []Match
	Vector    []float32
}

// Best returns the most similar match, if any.
func (v Verdict) Best() (Match, bool) {
	if len(v.Matches) == 0 {
		return Match{}, false
	}
	return v.Matches[0], true
}

// Detector is the duplicate detector. A Detector without an embedder
// reports nothing as a duplicate.
type Detector struct {
	embedder  llm.Embedder
	repo      store.EmbeddingRepo
	threshold float64
	limit     int
	logger    *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold sets the similarity above which a match counts.
func WithThreshold(t float64) Option {
	return func(d *Detector) { d.threshold = t }
}

// WithLimit caps the number of matches returned.
func WithLimit(n int) Option {
	return func(d *Detector) { d.limit = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// New creates a Detector. embedder may be nil.
func New(embedder llm.Embedder, repo store.EmbeddingRepo, opts ...Option) *Detector {
	d := &Detector{
		embedder:  embedder,
		repo:      repo,
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether the detector has an embedding oracle.
func (d *Detector) Enabled() bool {
	return d != nil && d.embedder != nil
}

// Check embeds text and searches the stored vectors of type t. The vector
// index is tried first; any failure there falls back to a full scan.
func (d *Detector) Check(ctx context.Context, t question.Type, text string) (Verdict, error) {
	if !d.Enabled() {
		return Verdict{}, nil
	}

	vec, err := d.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbedding), text)
	if err != nil {
		metrics.DuplicateChecks.WithLabelValues("embed", "error").Inc()
		return Verdict{}, fmt.Errorf("embed question: %w", err)
	}

	path := "index"
	matches, err := d.nearest(ctx, t, vec)
	if err != nil {
		if !errors.Is(err, store.ErrVectorUnsupported) {
			d.logger.Warn("vector search failed, scanning", "type", t, "error", err)
		}
		path = "scan"
		matches, err = d.scan(ctx, t, vec)
		if err != nil {
			metrics.DuplicateChecks.WithLabelValues(path, "error").Inc()
			return Verdict{Vector: vec}, err
		}
	}

	v := Verdict{Matches: matches, Vector: vec}
	if best, ok := v.Best(); ok && best.Similarity > d.threshold {
		v.Duplicate = true
	}
	result := "unique"
	if v.Duplicate {
		result = "duplicate"
	}
	metrics.DuplicateChecks.WithLabelValues(path, result).Inc()
	return v, nil
}

// IsDuplicate is Check with errors treated as "not a duplicate".
func (d *Detector) IsDuplicate(ctx context.Context, t question.Type, text string) (bool, Match) {
	v, err := d.Check(ctx, t, text)
	if err != nil {
		d.logger.Warn("duplicate check failed", "type", t, "error", err)
		return false, Match{}
	}
	best, _ := v.Best()
	return v.Duplicate, best
}

// Index stores the embedding of ref. A nil vec embeds text first.
func (d *Detector) Index(ctx context.Context, ref question.Ref, text string, vec []float32) error {
	if vec == nil {
		if !d.Enabled() {
			return nil
		}
		var err error
		vec, err = d.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbedding), text)
		if err != nil {
			return fmt.Errorf("embed question %s: %w", ref, err)
		}
	}
	if err := d.repo.UpsertEmbedding(ctx, ref, vec); err != nil {
		return fmt.Errorf("store embedding %s: %w", ref, err)
	}
	return nil
}

func (d *Detector) nearest(ctx context.Context, t question.Type, vec []float32) ([]Match, error) {
	hits, err := d.repo.NearestEmbeddings(ctx, t, vec, d.threshold, d.limit)
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = Match{Ref: question.Ref{Type: t, ID: h.QuestionID}, Similarity: h.Similarity}
	}
	return out, nil
}

func (d *Detector) scan(ctx context.Context, t question.Type, vec []float32) ([]Match, error) {
	stored, err := d.repo.Embeddings(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}

	var out []Match
	for _, e := range stored {
		if sim := Cosine(vec, e.Vector); sim > d.threshold {
			out = append(out, Match{Ref: question.Ref{Type: t, ID: e.QuestionID}, Similarity: sim})
		}
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if d.limit > 0 && len(out) > d.limit {
		out = out[:d.limit]
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths and
// zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
