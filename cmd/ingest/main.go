package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"ai-evaluator/internal/config"
	"ai-evaluator/internal/services"
)

// ingest loads one job's reference set: the job description feeds the catalog
// and the CV-reference collection, the case brief and scoring rubric feed the
// project-reference collection. Point ids are deterministic, so re-running the
// command for the same files overwrites in place.
func main() {
	var (
		jdPath     = pflag.String("jd", "", "path to the job description PDF (required)")
		briefPath  = pflag.String("brief", "", "path to the case brief PDF")
		rubricPath = pflag.String("rubric", "", "path to the scoring rubric PDF")
		chunkSize  = pflag.Int("chunk-size", 1000, "chunk window size in characters")
		overlap    = pflag.Int("chunk-overlap", 200, "overlap between adjacent chunks")
	)
	pflag.Parse()

	if *jdPath == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog, *jdPath, *briefPath, *rubricPath, *chunkSize, *overlap); err != nil {
		zlog.Fatal("ingestion failed", zap.Error(err))
	}

	zlog.Info("ingestion complete")
}

func run(cfg *config.Config, zlog *zap.Logger, jdPath, briefPath, rubricPath string, chunkSize, overlap int) error {
	ctx := context.Background()

	pdfParser := services.NewPDFParserService()
	chunker := services.NewTextChunker()

	embedder, err := services.NewGeminiEmbedder(
		cfg.Gemini.APIKey,
		cfg.Gemini.EmbedModel,
		int(cfg.Qdrant.VectorSize),
		cfg.LLM.Timeout,
		zlog.Named("embedder"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	gateway, err := services.NewQdrantGateway(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.VectorSize,
		cfg.Qdrant.Timeout,
		zlog.Named("qdrant"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize qdrant: %w", err)
	}

	for _, collection := range []string{
		cfg.Qdrant.CatalogCollection,
		cfg.Qdrant.CVCollection,
		cfg.Qdrant.ProjectCollection,
	} {
		if err := gateway.EnsureCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
		}
	}

	geminiProvider, err := services.NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.LLM.Timeout)
	if err != nil {
		return fmt.Errorf("failed to initialize gemini provider: %w", err)
	}
	openRouterProvider := services.NewOpenRouterProvider(
		cfg.OpenRouter.APIKey,
		cfg.OpenRouter.Model,
		cfg.OpenRouter.BaseURL,
		cfg.LLM.Timeout,
	)
	invoker := services.NewModelInvoker(
		[]services.ChatProvider{geminiProvider, openRouterProvider},
		cfg.LLM.MaxAttempts,
		cfg.LLM.RetryInitial,
		zlog.Named("invoker"),
	)

	jdText, err := pdfParser.ExtractText(jdPath)
	if err != nil {
		return fmt.Errorf("failed to extract job description: %w", err)
	}
	jdText = services.CleanText(jdText)

	meta, err := invoker.CatalogMetadata(ctx, jdText)
	if err != nil {
		return fmt.Errorf("failed to derive catalog metadata: %w", err)
	}
	zlog.Info("catalog metadata derived",
		zap.String("job_key", meta.JobKey),
		zap.String("title", meta.Title),
		zap.Strings("aliases", meta.Aliases),
		zap.Strings("tags", meta.Tags),
	)

	if err := upsertCatalog(ctx, gateway, embedder, cfg.Qdrant.CatalogCollection, meta, filepath.Base(jdPath)); err != nil {
		return err
	}

	if err := ingestDocument(ctx, gateway, embedder, chunker, zlog,
		cfg.Qdrant.CVCollection, meta.JobKey, services.DocTypeJDChunk,
		filepath.Base(jdPath), jdText, chunkSize, overlap); err != nil {
		return err
	}

	if briefPath != "" {
		text, err := pdfParser.ExtractText(briefPath)
		if err != nil {
			return fmt.Errorf("failed to extract case brief: %w", err)
		}
		if err := ingestDocument(ctx, gateway, embedder, chunker, zlog,
			cfg.Qdrant.ProjectCollection, meta.JobKey, services.DocTypeCaseBrief,
			filepath.Base(briefPath), services.CleanText(text), chunkSize, overlap); err != nil {
			return err
		}
	}

	if rubricPath != "" {
		text, err := pdfParser.ExtractText(rubricPath)
		if err != nil {
			return fmt.Errorf("failed to extract rubric: %w", err)
		}
		if err := ingestDocument(ctx, gateway, embedder, chunker, zlog,
			cfg.Qdrant.ProjectCollection, meta.JobKey, services.DocTypeRubric,
			filepath.Base(rubricPath), services.CleanText(text), chunkSize, overlap); err != nil {
			return err
		}
	}

	return nil
}

// upsertCatalog writes one catalog point per searchable term: the title first
// as the primary term, then every alias.
func upsertCatalog(
	ctx context.Context,
	gateway services.VectorGateway,
	embedder services.EmbeddingService,
	collection string,
	meta *services.CatalogMetadata,
	source string,
) error {
	terms := append([]string{meta.Title}, meta.Aliases...)

	for ordinal, term := range terms {
		vector, err := embedder.Embed(ctx, term)
		if err != nil {
			return fmt.Errorf("failed to embed catalog term %q: %w", term, err)
		}

		entry := services.CatalogEntry{
			JobKey:         meta.JobKey,
			Title:          meta.Title,
			SearchableTerm: term,
			Aliases:        meta.Aliases,
			Tags:           meta.Tags,
			IsPrimary:      ordinal == 0,
			Source:         source,
		}
		if err := gateway.UpsertCatalogEntry(ctx, collection, entry, ordinal, vector); err != nil {
			return fmt.Errorf("failed to upsert catalog term %q: %w", term, err)
		}
	}

	return nil
}

func ingestDocument(
	ctx context.Context,
	gateway services.VectorGateway,
	embedder services.EmbeddingService,
	chunker services.TextChunker,
	zlog *zap.Logger,
	collection, jobKey, docType, source, text string,
	chunkSize, overlap int,
) error {
	chunks := chunker.ChunkText(text, chunkSize, overlap)

	for idx, chunkText := range chunks {
		vector, err := embedder.Embed(ctx, chunkText)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d of %s: %w", idx, source, err)
		}

		chunk := services.ReferenceChunk{
			JobKey:     jobKey,
			DocType:    docType,
			Source:     source,
			ChunkIndex: idx,
			Text:       chunkText,
		}
		if err := gateway.UpsertChunk(ctx, collection, chunk, vector); err != nil {
			return fmt.Errorf("failed to upsert chunk %d of %s: %w", idx, source, err)
		}
	}

	zlog.Info("document ingested",
		zap.String("collection", collection),
		zap.String("job_key", jobKey),
		zap.String("doc_type", docType),
		zap.String("source", source),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}
