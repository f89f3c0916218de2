package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func refChunk(docType, source string, idx int, text string) ReferenceChunk {
	return ReferenceChunk{
		JobKey:     "backend-pe-v1",
		DocType:    docType,
		Source:     source,
		ChunkIndex: idx,
		Text:       text,
	}
}

func newTestRetriever(gateway VectorGateway) ContextRetriever {
	return NewContextRetriever(&fakeEmbedder{}, gateway, "cv_reference", "project_reference", zap.NewNop())
}

func TestRetrieveStitchesNeighborWindow(t *testing.T) {
	chunks := []ReferenceChunk{
		refChunk(DocTypeJDChunk, "jd.pdf", 0, "chunk zero"),
		refChunk(DocTypeJDChunk, "jd.pdf", 1, "chunk one"),
		refChunk(DocTypeJDChunk, "jd.pdf", 2, "chunk two"),
		refChunk(DocTypeJDChunk, "jd.pdf", 3, "chunk three"),
		refChunk(DocTypeJDChunk, "jd.pdf", 4, "chunk four"),
	}
	gateway := &fakeGateway{
		chunks:     chunks,
		searchHits: []ScoredChunk{{Chunk: chunks[2], Score: 0.9}},
	}

	blocks, err := newTestRetriever(gateway).RetrieveForCV(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 1, nil)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, "chunk one\nchunk two\nchunk three", blocks[0].Text)
	assert.Equal(t, 1, blocks[0].StartChunk)
	assert.Equal(t, "jd.pdf", blocks[0].Source)
}

func TestRetrieveClampsWindowAtZero(t *testing.T) {
	chunks := []ReferenceChunk{
		refChunk(DocTypeJDChunk, "jd.pdf", 0, "chunk zero"),
		refChunk(DocTypeJDChunk, "jd.pdf", 1, "chunk one"),
	}
	gateway := &fakeGateway{
		chunks:     chunks,
		searchHits: []ScoredChunk{{Chunk: chunks[0], Score: 0.9}},
	}

	blocks, err := newTestRetriever(gateway).RetrieveForCV(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 2, nil)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, "chunk zero\nchunk one", blocks[0].Text)
	require.Len(t, gateway.scanCalls, 1)
	assert.Equal(t, 0, gateway.scanCalls[0].lo)
	assert.Equal(t, 2, gateway.scanCalls[0].hi)
}

func TestRetrieveDedupesRepeatedHits(t *testing.T) {
	chunk := refChunk(DocTypeJDChunk, "jd.pdf", 1, "chunk one")
	gateway := &fakeGateway{
		chunks: []ReferenceChunk{chunk},
		searchHits: []ScoredChunk{
			{Chunk: chunk, Score: 0.95},
			{Chunk: chunk, Score: 0.90},
		},
	}

	blocks, err := newTestRetriever(gateway).RetrieveForCV(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 1, nil)
	require.NoError(t, err)

	assert.Len(t, blocks, 1)
	assert.Len(t, gateway.scanCalls, 1)
}

func TestRetrieveFallsBackToHitWhenScanEmpty(t *testing.T) {
	hit := refChunk(DocTypeJDChunk, "jd.pdf", 7, "lonely chunk")
	gateway := &fakeGateway{
		searchHits: []ScoredChunk{{Chunk: hit, Score: 0.9}},
	}

	blocks, err := newTestRetriever(gateway).RetrieveForCV(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 1, nil)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, "lonely chunk", blocks[0].Text)
	assert.Equal(t, 7, blocks[0].StartChunk)
}

func TestRetrieveForCVAppendsRubricLast(t *testing.T) {
	jd := refChunk(DocTypeJDChunk, "jd.pdf", 0, "jd requirements")
	gateway := &fakeGateway{
		chunks:     []ReferenceChunk{jd},
		searchHits: []ScoredChunk{{Chunk: jd, Score: 0.9}},
	}
	rubric := []RetrievalBlock{{Text: "rubric criteria", DocType: DocTypeRubric}}

	blocks, err := newTestRetriever(gateway).RetrieveForCV(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 1, rubric)
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "jd requirements", blocks[0].Text)
	assert.Equal(t, "rubric criteria", blocks[1].Text)
}

func TestRetrieveForProjectPrependsRubricFirst(t *testing.T) {
	brief := refChunk(DocTypeCaseBrief, "brief.pdf", 0, "case brief")
	gateway := &fakeGateway{
		chunks:     []ReferenceChunk{brief},
		searchHits: []ScoredChunk{{Chunk: brief, Score: 0.9}},
	}
	rubric := []RetrievalBlock{{Text: "rubric criteria", DocType: DocTypeRubric}}

	blocks, err := newTestRetriever(gateway).RetrieveForProject(
		context.Background(), "backend-pe-v1", "Backend Engineer", nil, 5, 1, rubric)
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "rubric criteria", blocks[0].Text)
	assert.Equal(t, "case brief", blocks[1].Text)
}

func TestRetrieveRedactsExampleOutputsInBlocks(t *testing.T) {
	chunk := refChunk(DocTypeRubric, "rubric.pdf", 0,
		`Scoring guide. Example: {"cv_match_rate": 0.82, "cv_feedback": ["ok"]} end.`)
	gateway := &fakeGateway{
		chunks:     []ReferenceChunk{chunk},
		searchHits: []ScoredChunk{{Chunk: chunk, Score: 0.9}},
	}

	blocks, err := newTestRetriever(gateway).RetrieveRubrics(context.Background(), "backend-pe-v1", 5, 1)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, "Scoring guide. Example: [redacted-example] end.", blocks[0].Text)
}

func TestRedactExampleOutputs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "project score example redacted",
			in:   `Some text {"project_score": 4.5, "x":"y"} more text`,
			want: `Some text [redacted-example] more text`,
		},
		{
			name: "match rate example redacted case-insensitively",
			in:   `before {"CV_Match_Rate": 0.9} after`,
			want: `before [redacted-example] after`,
		},
		{
			name: "unrelated json object kept",
			in:   `config {"timeout": 30, "retries": 3} stays`,
			want: `config {"timeout": 30, "retries": 3} stays`,
		},
		{
			name: "plain text untouched",
			in:   "A rubric mentioning match rate in prose only.",
			want: "A rubric mentioning match rate in prose only.",
		},
		{
			name: "oversized object left alone",
			in:   `{"project_score": ` + longFiller(250) + `}`,
			want: `{"project_score": ` + longFiller(250) + `}`,
		},
		{
			name: "multiple examples all redacted",
			in:   `{"match_rate": 1} and {"project_score": 5}`,
			want: `[redacted-example] and [redacted-example]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactExampleOutputs(tt.in))
		})
	}
}

func longFiller(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestBuildRetrievalQuery(t *testing.T) {
	assert.Equal(t,
		"scoring rubric parameters and evaluation guidelines",
		BuildRetrievalQuery("rubric", "Backend Engineer", []string{"go"}))

	assert.Equal(t,
		"job requirements and evaluation criteria for Backend Engineer relevant tags: go, sql",
		BuildRetrievalQuery("cv", "Backend Engineer", []string{"go", "sql"}))

	assert.Equal(t,
		"case study brief and project evaluation criteria for Backend Engineer",
		BuildRetrievalQuery("project", "Backend Engineer", nil))
}
