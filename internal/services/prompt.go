package services

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Inputs are truncated to a bounded prefix to cap cost and latency.
	maxInputChars      = 5000
	maxReferenceBlocks = 5
	referenceSeparator = "\n---\n"

	promptSystemEvaluator = "You are a strict evaluator returning only valid JSON."
	promptSystemJSON      = "You return strict JSON only."
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// CVEvaluation builds the user prompt for scoring a CV against the retrieved
// job requirements and rubric.
func (pb *PromptBuilder) CVEvaluation(cvText string, refs []RetrievalBlock) string {
	return fmt.Sprintf(`Compare the candidate CV content against the provided references (job requirements and CV scoring rubric).
Return strict JSON:
{
  "cv_match_rate": <float 0..1>,
  "cv_feedback": ["<2-4 short bullets>"]
}

CV:
%s

References:
%s`, truncateInput(cvText), formatReferences(refs))
}

// ProjectEvaluation builds the user prompt for scoring a project report
// against the case brief and rubric.
func (pb *PromptBuilder) ProjectEvaluation(reportText string, refs []RetrievalBlock) string {
	return fmt.Sprintf(`Evaluate the candidate Project Report against the case study brief and project scoring rubric.
Return strict JSON:
{
  "project_score": <float 1..5>,
  "project_feedback": ["<2-4 short bullets>"]
}

Report:
%s

References:
%s`, truncateInput(reportText), formatReferences(refs))
}

// FinalSummary builds the user prompt synthesizing both prior evaluations.
func (pb *PromptBuilder) FinalSummary(cvEvalJSON, projectEvalJSON string) string {
	return fmt.Sprintf(`Synthesize the CV evaluation and Project evaluation into a 3-5 sentence overall summary.
Return strict JSON:
{
  "overall_summary": "<text>"
}

CV Eval JSON: %s
Project Eval JSON: %s`, cvEvalJSON, projectEvalJSON)
}

// CatalogMetadata builds the ingestion-time prompt that distills a job
// description into catalog metadata.
func (pb *PromptBuilder) CatalogMetadata(raw string) string {
	return fmt.Sprintf(`From the job description below, produce catalog metadata.
Return strict JSON:
{
  "job_key": "<stable-kebab-case-identifier-with-version-suffix>",
  "title": "<canonical job title>",
  "aliases": ["<alternative searchable titles>"],
  "tags": ["<skill and domain tags>"]
}

%s`, truncateInput(raw))
}

// BuildRetrievalQuery produces the synthetic query describing the retrieval
// intent for one branch of the pipeline.
func BuildRetrievalQuery(kind, jobTitle string, tags []string) string {
	var query string
	switch kind {
	case "cv":
		query = fmt.Sprintf("job requirements and evaluation criteria for %s", jobTitle)
	case "project":
		query = fmt.Sprintf("case study brief and project evaluation criteria for %s", jobTitle)
	case "rubric":
		return "scoring rubric parameters and evaluation guidelines"
	default:
		query = jobTitle
	}
	if len(tags) > 0 {
		query += " relevant tags: " + strings.Join(tags, ", ")
	}
	return query
}

func formatReferences(refs []RetrievalBlock) string {
	if len(refs) > maxReferenceBlocks {
		refs = refs[:maxReferenceBlocks]
	}
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, strings.TrimSpace(ref.Text))
	}
	return strings.Join(parts, referenceSeparator)
}

func truncateInput(text string) string {
	return truncateAtRuneBoundary(text, maxInputChars)
}

// truncateAtRuneBoundary caps text at limit bytes without splitting a
// multi-byte rune; the byte limit backs up to the start of the rune it lands
// inside.
func truncateAtRuneBoundary(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
