package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EvaluationStatus string

const (
	StatusQueued     EvaluationStatus = "queued"
	StatusProcessing EvaluationStatus = "processing"
	StatusCompleted  EvaluationStatus = "completed"
	StatusFailed     EvaluationStatus = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s EvaluationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Evaluation struct {
	ID                uuid.UUID                    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobTitle          string                       `gorm:"type:text" json:"job_title"`
	CVDocumentID      uuid.UUID                    `gorm:"column:cv_document_id;type:uuid;not null" json:"cv_document_id"`
	ProjectDocumentID uuid.UUID                    `gorm:"type:uuid;not null" json:"project_document_id"`
	Status            EvaluationStatus             `gorm:"not null;default:'queued'" json:"status"`
	JobKey            *string                      `gorm:"type:text" json:"job_key,omitempty"`
	CVMatchRate       *float64                     `gorm:"column:cv_match_rate;type:decimal(3,2)" json:"cv_match_rate,omitempty"`
	CVFeedback        datatypes.JSONSlice[string]  `gorm:"column:cv_feedback;type:jsonb" json:"cv_feedback,omitempty"`
	ProjectScore      *float64                     `gorm:"type:decimal(3,2)" json:"project_score,omitempty"`
	ProjectFeedback   datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"project_feedback,omitempty"`
	OverallSummary    *string                      `gorm:"type:text" json:"overall_summary,omitempty"`
	ErrorMessage      *string                      `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time                    `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time                    `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relations
	CVDocument      Document `gorm:"foreignKey:CVDocumentID" json:"-"`
	ProjectDocument Document `gorm:"foreignKey:ProjectDocumentID" json:"-"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}
