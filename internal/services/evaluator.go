package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ai-evaluator/internal/models"
	"ai-evaluator/internal/repositories"
)

// EvaluatorService runs the full evaluation pipeline for one job: resolve the
// job_key, extract both documents, retrieve and redact references, drive the
// three LLM stages and record the terminal state. Any stage failure aborts the
// rest; no partial result is ever persisted.
type EvaluatorService interface {
	EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error
}

type evaluatorService struct {
	evalRepo  repositories.EvaluationRepository
	docRepo   repositories.DocumentRepository
	resolver  JobKeyResolver
	retriever ContextRetriever
	invoker   ModelInvoker
	pdfParser PDFParserService
	topK      int
	radius    int
	logger    *zap.Logger
}

func NewEvaluatorService(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	resolver JobKeyResolver,
	retriever ContextRetriever,
	invoker ModelInvoker,
	pdfParser PDFParserService,
	topK int,
	radius int,
	logger *zap.Logger,
) EvaluatorService {
	return &evaluatorService{
		evalRepo:  evalRepo,
		docRepo:   docRepo,
		resolver:  resolver,
		retriever: retriever,
		invoker:   invoker,
		pdfParser: pdfParser,
		topK:      topK,
		radius:    radius,
		logger:    logger,
	}
}

// EvaluateCandidate implements EvaluatorService.
func (e *evaluatorService) EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error {
	// Only the pickup that wins the queued->processing transition runs the
	// pipeline; a duplicate enqueue of the same id is dropped here.
	if err := e.evalRepo.MarkProcessing(evalID); err != nil {
		if errors.Is(err, repositories.ErrJobNotQueued) {
			e.logger.Debug("job already picked up, skipping",
				zap.String("evaluation_id", evalID.String()))
			return nil
		}
		return fmt.Errorf("failed to mark processing: %w", err)
	}

	evaluation, err := e.evalRepo.FindByID(evalID)
	if err != nil {
		return fmt.Errorf("failed to load evaluation: %w", err)
	}

	result, err := e.runPipeline(ctx, evaluation)
	if err != nil {
		e.logger.Error("evaluation pipeline failed",
			zap.String("evaluation_id", evalID.String()),
			zap.Error(err),
		)
		if failErr := e.evalRepo.Fail(evalID, "ERROR: "+err.Error()); failErr != nil {
			e.logger.Error("failed to record job failure", zap.Error(failErr))
		}
		return err
	}

	if err := e.evalRepo.Complete(evalID, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	e.logger.Info("evaluation completed",
		zap.String("evaluation_id", evalID.String()),
		zap.String("job_key", result.JobKey),
		zap.Float64("cv_match_rate", result.CVMatchRate),
		zap.Float64("project_score", result.ProjectScore),
	)
	return nil
}

func (e *evaluatorService) runPipeline(ctx context.Context, evaluation *models.Evaluation) (*models.EvaluationResult, error) {
	cvDoc, err := e.docRepo.FindByID(evaluation.CVDocumentID)
	if err != nil {
		return nil, fmt.Errorf("cv document lookup failed: %w", err)
	}
	projectDoc, err := e.docRepo.FindByID(evaluation.ProjectDocumentID)
	if err != nil {
		return nil, fmt.Errorf("project document lookup failed: %w", err)
	}

	cvText, err := e.pdfParser.ExtractText(cvDoc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract cv text: %w", err)
	}
	reportText, err := e.pdfParser.ExtractText(projectDoc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract project report text: %w", err)
	}

	resolution, err := e.resolver.Resolve(ctx, evaluation.JobTitle)
	if err != nil {
		return nil, fmt.Errorf("job key resolution failed: %w", err)
	}

	jobKey := resolution.JobKey
	var tags []string
	if resolution.Resolved() {
		tags = resolution.Candidates[0].Tags
	} else {
		jobKey = SlugifyTitle(evaluation.JobTitle)
		e.logger.Warn("job title unresolved, using slug fallback",
			zap.String("job_title", evaluation.JobTitle),
			zap.String("job_key", jobKey),
			zap.Float64("best_similarity", resolution.Similarity),
		)
	}

	// Rubric is shared scoring criteria; fetch once, reuse on both branches.
	rubric, err := e.retriever.RetrieveRubrics(ctx, jobKey, e.topK, e.radius)
	if err != nil {
		return nil, fmt.Errorf("rubric retrieval failed: %w", err)
	}

	cvRefs, err := e.retriever.RetrieveForCV(ctx, jobKey, evaluation.JobTitle, tags, e.topK, e.radius, rubric)
	if err != nil {
		return nil, fmt.Errorf("cv reference retrieval failed: %w", err)
	}
	projectRefs, err := e.retriever.RetrieveForProject(ctx, jobKey, evaluation.JobTitle, tags, e.topK, e.radius, rubric)
	if err != nil {
		return nil, fmt.Errorf("project reference retrieval failed: %w", err)
	}

	cvEval, err := e.invoker.EvaluateCV(ctx, cvText, cvRefs)
	if err != nil {
		return nil, fmt.Errorf("cv evaluation failed: %w", err)
	}
	projectEval, err := e.invoker.EvaluateProject(ctx, reportText, projectRefs)
	if err != nil {
		return nil, fmt.Errorf("project evaluation failed: %w", err)
	}
	summary, err := e.invoker.Summarize(ctx, cvEval, projectEval)
	if err != nil {
		return nil, fmt.Errorf("summary synthesis failed: %w", err)
	}

	result := &models.EvaluationResult{
		CVMatchRate:     cvEval.MatchRate,
		CVFeedback:      cvEval.Feedback,
		ProjectScore:    projectEval.Score,
		ProjectFeedback: projectEval.Feedback,
		OverallSummary:  summary.Summary,
		JobKey:          jobKey,
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("assembled result invalid: %w", err)
	}

	return result, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyTitle normalizes a free-text job title into the fallback job_key
// used when the catalog resolver rejects it.
func SlugifyTitle(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}
