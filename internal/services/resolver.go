package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// JobKeyResolver maps a free-text job title to a canonical catalog job_key
// via semantic similarity against the catalog collection.
type JobKeyResolver interface {
	Resolve(ctx context.Context, jobTitle string) (*JobKeyResolution, error)
}

type JobKeyCandidate struct {
	JobKey     string
	Title      string
	Similarity float64
	IsPrimary  bool
	Tags       []string
}

// JobKeyResolution carries the accepted key (empty when no candidate met the
// threshold) plus the ranked candidate list. The resolver never invents a key;
// the caller is responsible for a fallback.
type JobKeyResolution struct {
	JobKey     string
	Similarity float64
	Candidates []JobKeyCandidate
}

func (r *JobKeyResolution) Resolved() bool {
	return r.JobKey != ""
}

type jobKeyResolver struct {
	embedder   EmbeddingService
	gateway    VectorGateway
	collection string
	topK       int
	threshold  float64
	logger     *zap.Logger
}

func NewJobKeyResolver(
	embedder EmbeddingService,
	gateway VectorGateway,
	collection string,
	topK int,
	threshold float64,
	logger *zap.Logger,
) JobKeyResolver {
	return &jobKeyResolver{
		embedder:   embedder,
		gateway:    gateway,
		collection: collection,
		topK:       topK,
		threshold:  threshold,
		logger:     logger,
	}
}

// Resolve implements JobKeyResolver.
func (r *jobKeyResolver) Resolve(ctx context.Context, jobTitle string) (*JobKeyResolution, error) {
	vector, err := r.embedder.Embed(ctx, jobTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to embed job title: %w", err)
	}

	hits, err := r.gateway.SearchCatalog(ctx, r.collection, vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}

	// A job_key may surface several times through different aliases; keep the
	// highest-similarity occurrence per key.
	best := make(map[string]JobKeyCandidate)
	for _, hit := range hits {
		cand := JobKeyCandidate{
			JobKey:     hit.Entry.JobKey,
			Title:      hit.Entry.Title,
			Similarity: float64(hit.Score),
			IsPrimary:  hit.Entry.IsPrimary,
			Tags:       hit.Entry.Tags,
		}
		if prev, ok := best[cand.JobKey]; !ok || cand.Similarity > prev.Similarity {
			best[cand.JobKey] = cand
		}
	}

	candidates := make([]JobKeyCandidate, 0, len(best))
	for _, cand := range best {
		candidates = append(candidates, cand)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].IsPrimary != candidates[j].IsPrimary {
			return candidates[i].IsPrimary
		}
		return candidates[i].JobKey < candidates[j].JobKey
	})

	resolution := &JobKeyResolution{Candidates: candidates}
	if len(candidates) == 0 {
		r.logger.Warn("no catalog candidates for job title", zap.String("job_title", jobTitle))
		return resolution, nil
	}

	top := candidates[0]
	resolution.Similarity = top.Similarity
	if top.Similarity < r.threshold {
		r.logger.Info("job title below match threshold",
			zap.String("job_title", jobTitle),
			zap.String("best_candidate", top.JobKey),
			zap.Float64("similarity", top.Similarity),
			zap.Float64("threshold", r.threshold),
		)
		return resolution, nil
	}

	resolution.JobKey = top.JobKey
	r.logger.Info("resolved job title",
		zap.String("job_title", jobTitle),
		zap.String("job_key", top.JobKey),
		zap.Float64("similarity", top.Similarity),
	)

	return resolution, nil
}
