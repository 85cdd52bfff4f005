package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// EnrichmentJobRepositoryImpl implements EnrichmentJobRepository
type EnrichmentJobRepositoryImpl struct {
	*BaseRepository[models.EnrichmentJob, models.EnrichmentJobFilter]
}

// NewEnrichmentJobRepository creates a new enrichment job repository
func NewEnrichmentJobRepository(db *gorm.DB) EnrichmentJobRepository {
	return &EnrichmentJobRepositoryImpl{
		BaseRepository: NewBaseRepository[models.EnrichmentJob, models.EnrichmentJobFilter](db),
	}
}

// ByUUID retrieves a job by its public identifier
func (r *EnrichmentJobRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.EnrichmentJob, error) {
	db := r.getDB(ctx)
	var job models.EnrichmentJob
	if err := db.Where("uuid = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find enrichment job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateProgress persists the running counters of an in-flight job
func (r *EnrichmentJobRepositoryImpl) UpdateProgress(ctx context.Context, id uint, progress models.EnrichmentJobProgress) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	errorLog := pq.StringArray(progress.ErrorLog)
	if errorLog == nil {
		errorLog = pq.StringArray{}
	}
	res := db.Model(&models.EnrichmentJob{}).
		Where("id = ? AND status = ?", id, models.EnrichmentJobStatusRunning).
		Updates(map[string]any{
			"processed_products": progress.Processed,
			"matched_products":   progress.Matched,
			"not_found_products": progress.NotFound,
			"failed_products":    progress.Failed,
			"error_log":          errorLog,
			"updated_at":         utils.UTCNow(),
		})
	if res.Error != nil {
		err = fmt.Errorf("failed to update enrichment job %d progress: %w", id, res.Error)
	} else if res.RowsAffected == 0 {
		err = fmt.Errorf("enrichment job %d is not running", id)
	}
	return finish(db, shouldCommit, err)
}

// Finalize writes the terminal state of a job; a job can be finalized once
func (r *EnrichmentJobRepositoryImpl) Finalize(ctx context.Context, job *models.EnrichmentJob) error {
	if !job.Status.IsTerminal() {
		return fmt.Errorf("enrichment job %d cannot be finalized as %s", job.ID, job.Status)
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	errorLog := job.ErrorLog
	if errorLog == nil {
		errorLog = pq.StringArray{}
	}
	res := db.Model(&models.EnrichmentJob{}).
		Where("id = ? AND status = ?", job.ID, models.EnrichmentJobStatusRunning).
		Updates(map[string]any{
			"status":             job.Status,
			"processed_products": job.ProcessedProducts,
			"matched_products":   job.MatchedProducts,
			"not_found_products": job.NotFoundProducts,
			"failed_products":    job.FailedProducts,
			"completed_at":       job.CompletedAt,
			"results_summary":    job.ResultsSummary,
			"error_log":          errorLog,
			"updated_at":         utils.UTCNow(),
		})
	if res.Error != nil {
		err = fmt.Errorf("failed to finalize enrichment job %d: %w", job.ID, res.Error)
	} else if res.RowsAffected == 0 {
		err = fmt.Errorf("enrichment job %d already finalized", job.ID)
	}
	return finish(db, shouldCommit, err)
}

// ByFilter lists jobs newest first
func (r *EnrichmentJobRepositoryImpl) ByFilter(ctx context.Context, filter models.EnrichmentJobFilter, limit, offset int) ([]*models.EnrichmentJob, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db, filter).Order("started_at DESC, id DESC"), limit, offset)

	var jobs []*models.EnrichmentJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to find enrichment jobs: %w", err)
	}
	return jobs, nil
}

// Count returns the number of jobs matching the filter
func (r *EnrichmentJobRepositoryImpl) Count(ctx context.Context, filter models.EnrichmentJobFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.EnrichmentJob{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count enrichment jobs: %w", err)
	}
	return count, nil
}

func (r *EnrichmentJobRepositoryImpl) applyFilter(db *gorm.DB, filter models.EnrichmentJobFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.JobType != nil {
		db = db.Where("job_type = ?", *filter.JobType)
	}
	return db
}
