package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// Reference document types stored as the doc_type payload field.
const (
	DocTypeJDChunk    = "jd_chunk"
	DocTypeCaseBrief  = "case_brief"
	DocTypeRubric     = "rubric"
	DocTypeJobCatalog = "job_catalog"
)

// ReferenceChunk is one bounded slice of an ingested reference document.
// chunk_index values are contiguous from 0 per (job_key, doc_type, source).
type ReferenceChunk struct {
	JobKey     string
	DocType    string
	Source     string
	ChunkIndex int
	Text       string
}

// CatalogEntry is one searchable term of the job catalog. A job_key owns one
// entry per term (title first, then each alias), all sharing the same
// title/aliases/tags.
type CatalogEntry struct {
	JobKey         string
	Title          string
	SearchableTerm string
	Aliases        []string
	Tags           []string
	IsPrimary      bool
	Source         string
}

type ScoredChunk struct {
	Chunk ReferenceChunk
	Score float32
}

type CatalogHit struct {
	Entry CatalogEntry
	Score float32
}

// VectorGateway executes filtered similarity search and neighbor-range scans
// over the named Qdrant collections.
type VectorGateway interface {
	EnsureCollection(ctx context.Context, name string) error
	Search(ctx context.Context, collection string, vector []float32, jobKey string, docTypes []string, limit int) ([]ScoredChunk, error)
	SearchCatalog(ctx context.Context, collection string, vector []float32, limit int) ([]CatalogHit, error)
	ScanRange(ctx context.Context, collection, jobKey, docType, source string, lo, hi int) ([]ReferenceChunk, error)
	UpsertChunk(ctx context.Context, collection string, chunk ReferenceChunk, vector []float32) error
	UpsertCatalogEntry(ctx context.Context, collection string, entry CatalogEntry, ordinal int, vector []float32) error
}

type qdrantGateway struct {
	client     *qdrant.Client
	vectorSize uint64
	timeout    time.Duration
	logger     *zap.Logger
}

func NewQdrantGateway(urlStr, apiKey string, vectorSize uint64, timeout time.Duration, logger *zap.Logger) (VectorGateway, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port, not the 6333 REST port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantGateway{
		client:     client,
		vectorSize: vectorSize,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// EnsureCollection implements VectorGateway.
func (q *qdrantGateway) EnsureCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	q.logger.Info("created qdrant collection", zap.String("collection", name))
	return nil
}

// Search implements VectorGateway.
func (q *qdrantGateway) Search(ctx context.Context, collection string, vector []float32, jobKey string, docTypes []string, limit int) ([]ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var must []*qdrant.Condition
	if jobKey != "" {
		must = append(must, qdrant.NewMatch("job_key", jobKey))
	}
	if len(docTypes) > 0 {
		must = append(must, qdrant.NewMatchKeywords("doc_type", docTypes...))
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	results := make([]ScoredChunk, 0, len(points))
	for _, point := range points {
		results = append(results, ScoredChunk{
			Chunk: chunkFromPayload(point.Payload),
			Score: point.Score,
		})
	}

	return results, nil
}

// SearchCatalog implements VectorGateway.
func (q *qdrantGateway) SearchCatalog(ctx context.Context, collection string, vector []float32, limit int) ([]CatalogHit, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("doc_type", DocTypeJobCatalog),
		}},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}

	hits := make([]CatalogHit, 0, len(points))
	for _, point := range points {
		p := point.Payload
		hits = append(hits, CatalogHit{
			Entry: CatalogEntry{
				JobKey:         payloadString(p, "job_key"),
				Title:          payloadString(p, "title"),
				SearchableTerm: payloadString(p, "searchable_term"),
				Aliases:        payloadStrings(p, "aliases"),
				Tags:           payloadStrings(p, "tags"),
				IsPrimary:      payloadBool(p, "is_primary"),
				Source:         payloadString(p, "source"),
			},
			Score: point.Score,
		})
	}

	return hits, nil
}

// ScanRange implements VectorGateway. It scrolls every chunk of the given
// (job_key, doc_type, source) whose chunk_index falls in [lo, hi]. Order is
// not guaranteed, callers sort by ChunkIndex.
func (q *qdrantGateway) ScanRange(ctx context.Context, collection, jobKey, docType, source string, lo, hi int) ([]ReferenceChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("job_key", jobKey),
			qdrant.NewMatch("doc_type", docType),
			qdrant.NewMatch("source", source),
			qdrant.NewRange("chunk_index", &qdrant.Range{
				Gte: qdrant.PtrOf(float64(lo)),
				Lte: qdrant.PtrOf(float64(hi)),
			}),
		}},
		Limit:       qdrant.PtrOf(uint32(hi - lo + 1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk range: %w", err)
	}

	chunks := make([]ReferenceChunk, 0, len(points))
	for _, point := range points {
		chunks = append(chunks, chunkFromPayload(point.Payload))
	}

	return chunks, nil
}

// UpsertChunk implements VectorGateway. The point id is derived from the chunk
// identity, so re-ingesting identical content overwrites instead of duplicating.
func (q *qdrantGateway) UpsertChunk(ctx context.Context, collection string, chunk ReferenceChunk, vector []float32) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(ChunkPointID(chunk)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"job_key":     chunk.JobKey,
			"doc_type":    chunk.DocType,
			"source":      chunk.Source,
			"chunk_index": int64(chunk.ChunkIndex),
			"text":        chunk.Text,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}

	return nil
}

// UpsertCatalogEntry implements VectorGateway.
func (q *qdrantGateway) UpsertCatalogEntry(ctx context.Context, collection string, entry CatalogEntry, ordinal int, vector []float32) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	aliases := make([]interface{}, len(entry.Aliases))
	for i, a := range entry.Aliases {
		aliases[i] = a
	}
	tags := make([]interface{}, len(entry.Tags))
	for i, t := range entry.Tags {
		tags[i] = t
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(CatalogPointID(entry.JobKey, entry.SearchableTerm, ordinal)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"job_key":         entry.JobKey,
			"doc_type":        DocTypeJobCatalog,
			"title":           entry.Title,
			"searchable_term": entry.SearchableTerm,
			"text":            entry.SearchableTerm,
			"aliases":         aliases,
			"tags":            tags,
			"is_primary":      entry.IsPrimary,
			"source":          entry.Source,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert catalog entry: %w", err)
	}

	return nil
}

// ChunkPointID derives the deterministic point id for a reference chunk.
func ChunkPointID(c ReferenceChunk) string {
	name := fmt.Sprintf("%s::%s::%s::%d::%s", c.JobKey, c.DocType, c.Source, c.ChunkIndex, c.Text)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// CatalogPointID derives the deterministic point id for a catalog term.
func CatalogPointID(jobKey, term string, ordinal int) string {
	name := fmt.Sprintf("%s::%d::%s", jobKey, ordinal, term)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func chunkFromPayload(p map[string]*qdrant.Value) ReferenceChunk {
	return ReferenceChunk{
		JobKey:     payloadString(p, "job_key"),
		DocType:    payloadString(p, "doc_type"),
		Source:     payloadString(p, "source"),
		ChunkIndex: int(payloadInt(p, "chunk_index")),
		Text:       payloadString(p, "text"),
	}
}

func payloadString(p map[string]*qdrant.Value, key string) string {
	if v, ok := p[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(p map[string]*qdrant.Value, key string) int64 {
	v, ok := p[key]
	if !ok {
		return 0
	}
	if d, isDouble := v.GetKind().(*qdrant.Value_DoubleValue); isDouble {
		return int64(d.DoubleValue)
	}
	return v.GetIntegerValue()
}

func payloadBool(p map[string]*qdrant.Value, key string) bool {
	if v, ok := p[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func payloadStrings(p map[string]*qdrant.Value, key string) []string {
	v, ok := p[key]
	if !ok || v.GetListValue() == nil {
		return nil
	}
	var out []string
	for _, item := range v.GetListValue().Values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
