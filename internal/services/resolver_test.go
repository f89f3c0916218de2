package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	inputs []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeGateway struct {
	catalogHits []CatalogHit
	searchHits  []ScoredChunk
	chunks      []ReferenceChunk
	searchErr   error
	scanCalls   []scanCall
}

type scanCall struct {
	docType string
	source  string
	lo, hi  int
}

func (f *fakeGateway) EnsureCollection(context.Context, string) error { return nil }

func (f *fakeGateway) Search(_ context.Context, _ string, _ []float32, _ string, _ []string, _ int) ([]ScoredChunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits, nil
}

func (f *fakeGateway) SearchCatalog(_ context.Context, _ string, _ []float32, _ int) ([]CatalogHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.catalogHits, nil
}

func (f *fakeGateway) ScanRange(_ context.Context, _, _, docType, source string, lo, hi int) ([]ReferenceChunk, error) {
	f.scanCalls = append(f.scanCalls, scanCall{docType: docType, source: source, lo: lo, hi: hi})
	var out []ReferenceChunk
	for _, c := range f.chunks {
		if c.DocType == docType && c.Source == source && c.ChunkIndex >= lo && c.ChunkIndex <= hi {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGateway) UpsertChunk(context.Context, string, ReferenceChunk, []float32) error {
	return nil
}

func (f *fakeGateway) UpsertCatalogEntry(context.Context, string, CatalogEntry, int, []float32) error {
	return nil
}

func catalogHit(jobKey, term string, score float32, primary bool, tags ...string) CatalogHit {
	return CatalogHit{
		Entry: CatalogEntry{
			JobKey:         jobKey,
			Title:          term,
			SearchableTerm: term,
			IsPrimary:      primary,
			Tags:           tags,
		},
		Score: score,
	}
}

func newTestResolver(gateway VectorGateway) JobKeyResolver {
	return NewJobKeyResolver(&fakeEmbedder{}, gateway, "job_catalog", 5, 0.80, zap.NewNop())
}

func TestResolveAcceptsAboveThreshold(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("backend-pe-v1", "Product Engineer (Backend)", 0.95, true, "backend", "golang"),
		catalogHit("frontend-fe-v1", "Frontend Engineer", 0.60, true),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Backend Engineer")
	require.NoError(t, err)

	assert.True(t, res.Resolved())
	assert.Equal(t, "backend-pe-v1", res.JobKey)
	assert.InDelta(t, 0.95, res.Similarity, 1e-6)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, []string{"backend", "golang"}, res.Candidates[0].Tags)
}

func TestResolveRejectsBelowThreshold(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("backend-pe-v1", "Product Engineer (Backend)", 0.5, true),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Underwater Basket Weaver")
	require.NoError(t, err)

	assert.False(t, res.Resolved())
	assert.Empty(t, res.JobKey)
	assert.InDelta(t, 0.5, res.Similarity, 1e-9)
	assert.Len(t, res.Candidates, 1)
}

func TestResolveAcceptsExactlyAtThreshold(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("backend-pe-v1", "Product Engineer (Backend)", 0.80, true),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, "backend-pe-v1", res.JobKey)
}

func TestResolveDedupesPerJobKeyKeepingMaxSimilarity(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("backend-pe-v1", "Backend Engineer", 0.82, false),
		catalogHit("backend-pe-v1", "Product Engineer (Backend)", 0.91, true),
		catalogHit("backend-pe-v1", "BE Developer", 0.70, false),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Backend Engineer")
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.InDelta(t, 0.91, res.Candidates[0].Similarity, 1e-6)
	assert.Equal(t, "backend-pe-v1", res.JobKey)
}

func TestResolveTieBreakPrefersPrimary(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("zeta-v1", "Zeta Role", 0.9, false),
		catalogHit("alpha-v1", "Alpha Role", 0.9, true),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Some Role")
	require.NoError(t, err)
	assert.Equal(t, "alpha-v1", res.JobKey)
}

func TestResolveTieBreakFallsBackToLexicographicKey(t *testing.T) {
	gateway := &fakeGateway{catalogHits: []CatalogHit{
		catalogHit("zeta-v1", "Zeta Role", 0.9, true),
		catalogHit("alpha-v1", "Alpha Role", 0.9, true),
	}}

	res, err := newTestResolver(gateway).Resolve(context.Background(), "Some Role")
	require.NoError(t, err)
	assert.Equal(t, "alpha-v1", res.JobKey)
}

func TestResolveNoCandidates(t *testing.T) {
	res, err := newTestResolver(&fakeGateway{}).Resolve(context.Background(), "Anything")
	require.NoError(t, err)

	assert.False(t, res.Resolved())
	assert.Empty(t, res.Candidates)
}

func TestResolvePropagatesSearchError(t *testing.T) {
	gateway := &fakeGateway{searchErr: errors.New("connection refused")}

	_, err := newTestResolver(gateway).Resolve(context.Background(), "Backend Engineer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search catalog")
}
