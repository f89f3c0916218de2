package models

import (
	"fmt"
	"strings"
)

// EvaluationResult is the fully assembled output of one evaluation pipeline run.
// It exists only for completed jobs and must pass Validate before being persisted.
type EvaluationResult struct {
	CVMatchRate     float64  `json:"cv_match_rate"`
	CVFeedback      []string `json:"cv_feedback"`
	ProjectScore    float64  `json:"project_score"`
	ProjectFeedback []string `json:"project_feedback"`
	OverallSummary  string   `json:"overall_summary"`
	JobKey          string   `json:"job_key"`
}

func (r *EvaluationResult) Validate() error {
	if r.CVMatchRate < 0 || r.CVMatchRate > 1 {
		return fmt.Errorf("cv_match_rate %.2f out of range [0,1]", r.CVMatchRate)
	}
	if r.ProjectScore < 1 || r.ProjectScore > 5 {
		return fmt.Errorf("project_score %.2f out of range [1,5]", r.ProjectScore)
	}
	if strings.TrimSpace(r.OverallSummary) == "" {
		return fmt.Errorf("overall_summary is empty")
	}
	return nil
}

type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
}

type EvaluateRequest struct {
	JobTitle          string `json:"job_title" validate:"required"`
	CVDocumentID      string `json:"cv_document_id" validate:"required,uuid"`
	ProjectDocumentID string `json:"project_document_id" validate:"required,uuid"`
}

type EvaluateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ResultResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Result       *EvaluationResult `json:"result"`
	ErrorMessage *string           `json:"error_message"`
}
