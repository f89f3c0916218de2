package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrNoProviderConfigured marks the tolerated degradation where no LLM
// credentials exist; invoker operations answer it with a documented stub.
var ErrNoProviderConfigured = errors.New("no llm provider configured")

// ErrInvalidModelOutput marks a provider response that failed schema or range
// validation. Never retried; it aborts the evaluation stage.
var ErrInvalidModelOutput = errors.New("invalid model output")

// FeedbackList accepts either a single string or a list from the model and
// normalizes to a list of strings. The union never leaves the parsing
// boundary; downstream code only sees []string.
type FeedbackList []string

func (f *FeedbackList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = FeedbackList{single}
		return nil
	}

	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("feedback must be a string or a list of strings")
	}

	out := make(FeedbackList, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprintf("%v", item))
	}
	*f = out
	return nil
}

type CVEvaluation struct {
	MatchRate float64      `json:"cv_match_rate"`
	Feedback  FeedbackList `json:"cv_feedback"`
}

type ProjectEvaluation struct {
	Score    float64      `json:"project_score"`
	Feedback FeedbackList `json:"project_feedback"`
}

type EvaluationSummary struct {
	Summary string `json:"overall_summary"`
}

type CatalogMetadata struct {
	JobKey  string   `json:"job_key"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases"`
	Tags    []string `json:"tags"`
}

// ModelInvoker sends evaluation prompts through the provider chain with
// retry/backoff and validates the structured responses.
type ModelInvoker interface {
	EvaluateCV(ctx context.Context, cvText string, refs []RetrievalBlock) (*CVEvaluation, error)
	EvaluateProject(ctx context.Context, reportText string, refs []RetrievalBlock) (*ProjectEvaluation, error)
	Summarize(ctx context.Context, cvEval *CVEvaluation, projectEval *ProjectEvaluation) (*EvaluationSummary, error)
	CatalogMetadata(ctx context.Context, raw string) (*CatalogMetadata, error)
}

type modelInvoker struct {
	providers    []ChatProvider
	prompts      *PromptBuilder
	maxAttempts  int
	retryInitial time.Duration
	logger       *zap.Logger
}

// NewModelInvoker wires the ordered provider chain. The first configured
// provider handles every call; with none configured the evaluate operations
// degrade to stub results instead of blocking the pipeline.
func NewModelInvoker(providers []ChatProvider, maxAttempts int, retryInitial time.Duration, logger *zap.Logger) ModelInvoker {
	return &modelInvoker{
		providers:    providers,
		prompts:      NewPromptBuilder(),
		maxAttempts:  maxAttempts,
		retryInitial: retryInitial,
		logger:       logger,
	}
}

// EvaluateCV implements ModelInvoker.
func (i *modelInvoker) EvaluateCV(ctx context.Context, cvText string, refs []RetrievalBlock) (*CVEvaluation, error) {
	resp, err := i.complete(ctx, promptSystemEvaluator, i.prompts.CVEvaluation(cvText, refs), 0.2)
	if errors.Is(err, ErrNoProviderConfigured) {
		i.logger.Warn("no llm provider configured, returning stub cv evaluation")
		return &CVEvaluation{MatchRate: 0.5, Feedback: FeedbackList{"Stub feedback."}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cv evaluation call failed: %w", err)
	}

	var result CVEvaluation
	if err := parseModelJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.MatchRate < 0 || result.MatchRate > 1 {
		return nil, fmt.Errorf("%w: cv_match_rate %.2f out of range [0,1]", ErrInvalidModelOutput, result.MatchRate)
	}

	return &result, nil
}

// EvaluateProject implements ModelInvoker.
func (i *modelInvoker) EvaluateProject(ctx context.Context, reportText string, refs []RetrievalBlock) (*ProjectEvaluation, error) {
	resp, err := i.complete(ctx, promptSystemEvaluator, i.prompts.ProjectEvaluation(reportText, refs), 0.2)
	if errors.Is(err, ErrNoProviderConfigured) {
		i.logger.Warn("no llm provider configured, returning stub project evaluation")
		return &ProjectEvaluation{Score: 2.5, Feedback: FeedbackList{"Stub feedback."}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("project evaluation call failed: %w", err)
	}

	var result ProjectEvaluation
	if err := parseModelJSON(resp, &result); err != nil {
		return nil, err
	}
	if result.Score < 1 || result.Score > 5 {
		return nil, fmt.Errorf("%w: project_score %.2f out of range [1,5]", ErrInvalidModelOutput, result.Score)
	}

	return &result, nil
}

// Summarize implements ModelInvoker.
func (i *modelInvoker) Summarize(ctx context.Context, cvEval *CVEvaluation, projectEval *ProjectEvaluation) (*EvaluationSummary, error) {
	cvJSON, err := json.Marshal(cvEval)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cv evaluation: %w", err)
	}
	projectJSON, err := json.Marshal(projectEval)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project evaluation: %w", err)
	}

	resp, err := i.complete(ctx, promptSystemJSON, i.prompts.FinalSummary(string(cvJSON), string(projectJSON)), 0.2)
	if errors.Is(err, ErrNoProviderConfigured) {
		i.logger.Warn("no llm provider configured, returning stub summary")
		return &EvaluationSummary{Summary: "Stub overall summary."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("summary call failed: %w", err)
	}

	var result EvaluationSummary
	if err := parseModelJSON(resp, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Summary) == "" {
		return nil, fmt.Errorf("%w: overall_summary is empty", ErrInvalidModelOutput)
	}

	return &result, nil
}

// CatalogMetadata implements ModelInvoker. Used at ingestion time; a missing
// provider is an error here, ingestion cannot run on stubs.
func (i *modelInvoker) CatalogMetadata(ctx context.Context, raw string) (*CatalogMetadata, error) {
	resp, err := i.complete(ctx, promptSystemJSON, i.prompts.CatalogMetadata(raw), 0.1)
	if err != nil {
		return nil, fmt.Errorf("catalog metadata call failed: %w", err)
	}

	var meta CatalogMetadata
	if err := parseModelJSON(resp, &meta); err != nil {
		return nil, err
	}
	if meta.JobKey == "" || meta.Title == "" {
		return nil, fmt.Errorf("%w: catalog metadata missing job_key or title", ErrInvalidModelOutput)
	}

	return &meta, nil
}

// complete picks the first configured provider and calls it with the
// retry/backoff policy: up to maxAttempts attempts, exponential backoff
// doubling from retryInitial, retrying transient failures only.
func (i *modelInvoker) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	var provider ChatProvider
	for _, p := range i.providers {
		if p.Configured() {
			provider = p
			break
		}
	}
	if provider == nil {
		return "", ErrNoProviderConfigured
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = i.retryInitial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryWithData(func() (string, error) {
		attempt++
		out, err := provider.Complete(ctx, system, user, temperature)
		if err == nil {
			return out, nil
		}
		if !isRetryableProviderError(err) {
			return "", backoff.Permanent(err)
		}
		i.logger.Warn("transient provider failure",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return "", err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(i.maxAttempts-1)), ctx))
}

func parseModelJSON(response string, target interface{}) error {
	jsonStr := extractJSON(response)
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
	}
	return nil
}

// extractJSON pulls the JSON object out of a response that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}

	return text
}
