package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RetrievalBlock is a stitched window of contiguous chunks around one search
// hit. Ephemeral, computed per request.
type RetrievalBlock struct {
	Text       string
	Source     string
	DocType    string
	StartChunk int
}

// ContextRetriever reassembles reference material for a resolved job_key.
// Rubric blocks are retrieved once per job and shared between the CV and the
// project branch.
type ContextRetriever interface {
	RetrieveRubrics(ctx context.Context, jobKey string, k, radius int) ([]RetrievalBlock, error)
	RetrieveForCV(ctx context.Context, jobKey, jobTitle string, tags []string, k, radius int, rubric []RetrievalBlock) ([]RetrievalBlock, error)
	RetrieveForProject(ctx context.Context, jobKey, jobTitle string, tags []string, k, radius int, rubric []RetrievalBlock) ([]RetrievalBlock, error)
}

type contextRetriever struct {
	embedder          EmbeddingService
	gateway           VectorGateway
	cvCollection      string
	projectCollection string
	logger            *zap.Logger
}

func NewContextRetriever(
	embedder EmbeddingService,
	gateway VectorGateway,
	cvCollection, projectCollection string,
	logger *zap.Logger,
) ContextRetriever {
	return &contextRetriever{
		embedder:          embedder,
		gateway:           gateway,
		cvCollection:      cvCollection,
		projectCollection: projectCollection,
		logger:            logger,
	}
}

// RetrieveRubrics implements ContextRetriever.
func (r *contextRetriever) RetrieveRubrics(ctx context.Context, jobKey string, k, radius int) ([]RetrievalBlock, error) {
	query := BuildRetrievalQuery("rubric", "", nil)
	return r.retrieve(ctx, r.projectCollection, jobKey, []string{DocTypeRubric}, query, k, radius)
}

// RetrieveForCV implements ContextRetriever. Job-description blocks come
// first, the shared rubric last.
func (r *contextRetriever) RetrieveForCV(ctx context.Context, jobKey, jobTitle string, tags []string, k, radius int, rubric []RetrievalBlock) ([]RetrievalBlock, error) {
	query := BuildRetrievalQuery("cv", jobTitle, tags)
	blocks, err := r.retrieve(ctx, r.cvCollection, jobKey, []string{DocTypeJDChunk}, query, k, radius)
	if err != nil {
		return nil, err
	}
	return append(blocks, rubric...), nil
}

// RetrieveForProject implements ContextRetriever. The shared rubric leads,
// case-brief blocks follow.
func (r *contextRetriever) RetrieveForProject(ctx context.Context, jobKey, jobTitle string, tags []string, k, radius int, rubric []RetrievalBlock) ([]RetrievalBlock, error) {
	query := BuildRetrievalQuery("project", jobTitle, tags)
	blocks, err := r.retrieve(ctx, r.projectCollection, jobKey, []string{DocTypeCaseBrief}, query, k, radius)
	if err != nil {
		return nil, err
	}
	return append(append([]RetrievalBlock{}, rubric...), blocks...), nil
}

type chunkIdentity struct {
	source     string
	docType    string
	chunkIndex int
}

// retrieve runs one filtered similarity search and stitches a contiguous
// chunk window around each distinct hit. Similarity search alone returns
// isolated fragments; the [center-radius, center+radius] scan recovers the
// locality that fixed-size chunking split away.
func (r *contextRetriever) retrieve(ctx context.Context, collection, jobKey string, docTypes []string, query string, k, radius int) ([]RetrievalBlock, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	hits, err := r.gateway.Search(ctx, collection, vector, jobKey, docTypes, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search references: %w", err)
	}

	seen := make(map[chunkIdentity]bool)
	var blocks []RetrievalBlock

	for _, hit := range hits {
		identity := chunkIdentity{hit.Chunk.Source, hit.Chunk.DocType, hit.Chunk.ChunkIndex}
		if seen[identity] {
			continue
		}
		seen[identity] = true

		lo := hit.Chunk.ChunkIndex - radius
		if lo < 0 {
			lo = 0
		}
		hi := hit.Chunk.ChunkIndex + radius

		neighbors, err := r.gateway.ScanRange(ctx, collection, jobKey, hit.Chunk.DocType, hit.Chunk.Source, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("failed to stitch chunks around hit: %w", err)
		}
		if len(neighbors) == 0 {
			neighbors = []ReferenceChunk{hit.Chunk}
		}

		sort.Slice(neighbors, func(i, j int) bool {
			return neighbors[i].ChunkIndex < neighbors[j].ChunkIndex
		})

		parts := make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			parts = append(parts, n.Text)
		}

		blocks = append(blocks, RetrievalBlock{
			Text:       RedactExampleOutputs(strings.Join(parts, "\n")),
			Source:     hit.Chunk.Source,
			DocType:    hit.Chunk.DocType,
			StartChunk: neighbors[0].ChunkIndex,
		})
	}

	r.logger.Debug("retrieved reference blocks",
		zap.String("collection", collection),
		zap.String("job_key", jobKey),
		zap.Strings("doc_types", docTypes),
		zap.Int("hits", len(hits)),
		zap.Int("blocks", len(blocks)),
	)

	return blocks, nil
}

// RedactionMarker replaces JSON-shaped example outputs found in reference text.
const RedactionMarker = "[redacted-example]"

var exampleOutputPattern = regexp.MustCompile(`\{[^{}]{0,200}\}`)

// RedactExampleOutputs removes JSON-object-shaped spans that mention the
// evaluation output fields. Ingested reference material sometimes carries
// worked examples; left in place they bias the model toward copying the
// numbers instead of reasoning from evidence. Best-effort span scan, not a
// JSON parser.
func RedactExampleOutputs(text string) string {
	return exampleOutputPattern.ReplaceAllStringFunc(text, func(span string) string {
		lower := strings.ToLower(span)
		if strings.Contains(lower, "match_rate") || strings.Contains(lower, "project_score") {
			return RedactionMarker
		}
		return span
	})
}
