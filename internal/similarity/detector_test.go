package similarity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codequiz/internal/llm"
	"github.com/abhisek/codequiz/internal/question"
	"github.com/abhisek/codequiz/internal/store"
)

// fixedEmbedder maps texts to preset vectors.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func (f *fixedEmbedder) Dimensions() int { return 2 }

// vectorRepo is an EmbeddingRepo with a working nearest-neighbour search.
type vectorRepo struct {
	stored     map[question.Ref][]float32
	nearestErr error
	nearestHit int
}

func newVectorRepo() *vectorRepo {
	return &vectorRepo{stored: map[question.Ref][]float32{}}
}

func (r *vectorRepo) UpsertEmbedding(_ context.Context, ref question.Ref, vec []float32) error {
	r.stored[ref] = vec
	return nil
}

func (r *vectorRepo) Embeddings(_ context.Context, t question.Type) ([]store.StoredEmbedding, error) {
	var out []store.StoredEmbedding
	for ref, v := range r.stored {
		if ref.Type == t {
			out = append(out, store.StoredEmbedding{QuestionID: ref.ID, Vector: v})
		}
	}
	return out, nil
}

func (r *vectorRepo) NearestEmbeddings(_ context.Context, t question.Type, vec []float32, threshold float64, limit int) ([]store.SimilarMatch, error) {
	r.nearestHit++
	if r.nearestErr != nil {
		return nil, r.nearestErr
	}
	var out []store.SimilarMatch
	for ref, v := range r.stored {
		if ref.Type == t {
			if sim := Cosine(vec, v); sim > threshold {
				out = append(out, store.SimilarMatch{QuestionID: ref.ID, Similarity: sim})
			}
		}
	}
	return out, nil
}

// unit returns a 2-d unit vector whose cosine with (1, 0) is cos.
func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
}

func TestCheckThreshold(t *testing.T) {
	tests := []struct {
		name string
		cos  float64
		want bool
	}{
		{"well above", 0.95, true},
		{"just above", 0.8701, true},
		{"just below", 0.8699, false},
		{"below", 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newVectorRepo()
			repo.stored[question.Ref{Type: question.TypeTheory, ID: 1}] = []float32{1, 0}
			emb := &fixedEmbedder{vectors: map[string][]float32{"new": unit(tt.cos)}}

			v, err := New(emb, repo).Check(context.Background(), question.TypeTheory, "new")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Duplicate)
			assert.NotNil(t, v.Vector)
		})
	}
}

func TestCheckIgnoresOtherTypes(t *testing.T) {
	repo := newVectorRepo()
	repo.stored[question.Ref{Type: question.TypeMCQ, ID: 1}] = []float32{1, 0}
	emb := &fixedEmbedder{vectors: map[string][]float32{"q": {1, 0}}}

	v, err := New(emb, repo).Check(context.Background(), question.TypeTheory, "q")
	require.NoError(t, err)
	assert.False(t, v.Duplicate)
}

func TestCheckFallsBackToScan(t *testing.T) {
	repo := newVectorRepo()
	repo.nearestErr = errors.New("operator does not exist: vector <=> vector")
	for i := int64(1); i <= 7; i++ {
		repo.stored[question.Ref{Type: question.TypeCoding, ID: i}] = unit(0.88 + float64(i)/100)
	}
	emb := &fixedEmbedder{vectors: map[string][]float32{"q": {1, 0}}}

	v, err := New(emb, repo).Check(context.Background(), question.TypeCoding, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.nearestHit)
	assert.True(t, v.Duplicate)
	require.Len(t, v.Matches, DefaultLimit)
	best, _ := v.Best()
	assert.Equal(t, int64(7), best.Ref.ID)
	for i := 1; i < len(v.Matches); i++ {
		assert.GreaterOrEqual(t, v.Matches[i-1].Similarity, v.Matches[i].Similarity)
	}
}

func TestIsDuplicateDegradesOnError(t *testing.T) {
	emb := &fixedEmbedder{err: &llm.ErrProviderUnavailable{Err: errors.New("connection refused")}}
	dup, _ := New(emb, newVectorRepo()).IsDuplicate(context.Background(), question.TypeTheory, "q")
	assert.False(t, dup)
}

func TestDisabledDetector(t *testing.T) {
	d := New(nil, newVectorRepo())
	assert.False(t, d.Enabled())

	v, err := d.Check(context.Background(), question.TypeTheory, "anything")
	require.NoError(t, err)
	assert.False(t, v.Duplicate)
	assert.NoError(t, d.Index(context.Background(), question.Ref{Type: question.TypeTheory, ID: 1}, "anything", nil))
}

func TestIndexAndCheckAgainstStore(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	d := New(llm.NewMockEmbedder(64), s.EmbeddingRepo())

	ref := question.Ref{Type: question.TypeTheory, ID: 3}
	require.NoError(t, d.Index(ctx, ref, "Explain goroutines and channels in Go", nil))

	dup, best := d.IsDuplicate(ctx, question.TypeTheory, "Explain goroutines and channels in Go")
	assert.True(t, dup)
	assert.Equal(t, ref, best.Ref)

	dup, _ = d.IsDuplicate(ctx, question.TypeTheory, "What is a closure in JavaScript")
	assert.False(t, dup)
}
