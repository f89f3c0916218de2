package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ai-evaluator/internal/models"
)

var ErrEvaluationNotFound = errors.New("evaluation not found")

// ErrJobNotQueued reports a pickup that lost the queued->processing
// transition: the row is already processing, terminal, or unknown. The caller
// must not run the pipeline for it.
var ErrJobNotQueued = errors.New("evaluation is not in queued state")

// EvaluationRepository is the job lifecycle manager. Status transitions are
// monotonic: queued -> processing -> completed|failed. Each transition is one
// atomic UPDATE guarded by a status predicate, so a duplicate or stale write
// (or a write for an unknown id) matches zero rows and is a no-op.
type EvaluationRepository interface {
	Create(eval *models.Evaluation) error
	FindByID(id uuid.UUID) (*models.Evaluation, error)
	MarkProcessing(id uuid.UUID) error
	Complete(id uuid.UUID, result *models.EvaluationResult) error
	Fail(id uuid.UUID, errorMsg string) error
	FindPendingJobs(limit int) ([]models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(eval *models.Evaluation) error {
	if err := r.db.Create(eval).Error; err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepository) FindByID(id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := r.db.Where("id = ?", id).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to find evaluation: %w", err)
	}
	return &eval, nil
}

func (r *evaluationRepository) MarkProcessing(id uuid.UUID) error {
	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark processing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotQueued
	}

	return nil
}

func (r *evaluationRepository) Complete(id uuid.UUID, res *models.EvaluationResult) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("refusing to complete with invalid result: %w", err)
	}

	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":           models.StatusCompleted,
			"job_key":          res.JobKey,
			"cv_match_rate":    res.CVMatchRate,
			"cv_feedback":      datatypes.NewJSONSlice(res.CVFeedback),
			"project_score":    res.ProjectScore,
			"project_feedback": datatypes.NewJSONSlice(res.ProjectFeedback),
			"overall_summary":  res.OverallSummary,
			"updated_at":       time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete evaluation: %w", result.Error)
	}

	return nil
}

func (r *evaluationRepository) Fail(id uuid.UUID, errorMsg string) error {
	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status NOT IN ?", id, []models.EvaluationStatus{models.StatusCompleted, models.StatusFailed}).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": errorMsg,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to record failure: %w", result.Error)
	}

	return nil
}

func (r *evaluationRepository) FindPendingJobs(limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return evals, nil
}
