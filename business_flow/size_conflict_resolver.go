package businessflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/repository"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SizeCandidate is a size as reported by the authoritative marketplace
type SizeCandidate struct {
	USSize   float64  `validate:"gt=0,lt=1000"`
	EUSize   *float64 `validate:"omitempty,gt=0,lt=1000"`
	UKSize   *float64 `validate:"omitempty,gt=0,lt=1000"`
	CMSize   *float64 `validate:"omitempty,gt=0,lt=1000"`
	KRSize   *float64 `validate:"omitempty,gt=0,lt=10000"`
	Gender   string   `validate:"required,oneof=men women unisex child"`
	Category *string  `validate:"omitempty,min=1,max=50"`
}

// Value returns the candidate's size in region, nil when unknown
func (c *SizeCandidate) Value(region models.SizeRegion) *float64 {
	switch region {
	case models.SizeRegionUS:
		v := c.USSize
		return &v
	case models.SizeRegionEU:
		return c.EUSize
	case models.SizeRegionUK:
		return c.UKSize
	case models.SizeRegionCM:
		return c.CMSize
	case models.SizeRegionKR:
		return c.KRSize
	}
	return nil
}

// SetValue sets the candidate's size in region
func (c *SizeCandidate) SetValue(region models.SizeRegion, v float64) {
	switch region {
	case models.SizeRegionUS:
		c.USSize = v
	case models.SizeRegionEU:
		c.EUSize = &v
	case models.SizeRegionUK:
		c.UKSize = &v
	case models.SizeRegionCM:
		c.CMSize = &v
	case models.SizeRegionKR:
		c.KRSize = &v
	}
}

func (c *SizeCandidate) key() models.SizeMasterKey {
	return models.SizeMasterKey{USSize: c.USSize, Gender: c.Gender, Category: c.Category}
}

// rounded returns a copy with every value at the precision the size table stores
func (c SizeCandidate) rounded() SizeCandidate {
	c.USSize = utils.RoundFloat(c.USSize, 2)
	for _, region := range models.ReconciledSizeRegions {
		if v := c.Value(region); v != nil {
			c.SetValue(region, utils.RoundFloat(*v, 2))
		}
	}
	return c
}

// SizeSourceIDs identifies the marketplace record a candidate came from
type SizeSourceIDs struct {
	ProductID *string
	VariantID *string
}

// SizeConflictResolver reconciles canonical size records against the authoritative marketplace
type SizeConflictResolver interface {
	Reconcile(ctx context.Context, candidate SizeCandidate, ids SizeSourceIDs) (uint, error)
}

// SizeConflictResolverImpl implements SizeConflictResolver
type SizeConflictResolverImpl struct {
	sizeRepo  repository.SizeMasterRepository
	auditRepo repository.SizeValidationLogRepository
	tx        repository.Transactor
	clock     utils.Clock
	validator *validator.Validate
	logger    *log.Logger
}

// NewSizeConflictResolver creates a new size conflict resolver
func NewSizeConflictResolver(
	sizeRepo repository.SizeMasterRepository,
	auditRepo repository.SizeValidationLogRepository,
	tx repository.Transactor,
	clock utils.Clock,
	logger *log.Logger,
) SizeConflictResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &SizeConflictResolverImpl{
		sizeRepo:  sizeRepo,
		auditRepo: auditRepo,
		tx:        tx,
		clock:     utils.ClockOrSystem(clock),
		validator: newValidator(),
		logger:    logger,
	}
}

// Reconcile creates, corrects or confirms the size record matching candidate and returns its id.
// Each call appends exactly one audit entry in the same transaction as the record change.
func (r *SizeConflictResolverImpl) Reconcile(ctx context.Context, candidate SizeCandidate, ids SizeSourceIDs) (uint, error) {
	candidate = candidate.rounded()
	if err := r.validator.Struct(candidate); err != nil {
		return 0, NewBusinessError("INVALID_SIZE_CANDIDATE", "Size candidate validation failed",
			fmt.Errorf("%w: %s", ErrInvalidSizeCandidate, describeValidation(err)))
	}

	var (
		sizeID uint
		status models.SizeValidationStatus
	)
	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		now := r.clock.Now()

		existing, err := r.sizeRepo.ByNaturalKey(txCtx, candidate.key(), true)
		if err != nil {
			return err
		}

		if existing == nil {
			record := newSizeRecord(candidate, now)
			inserted, err := r.sizeRepo.InsertIfAbsent(txCtx, record)
			if err != nil {
				return err
			}
			if inserted {
				sizeID, status = record.ID, models.SizeValidationStatusCreated
				return r.audit(txCtx, record, nil, nil, models.SizeValidationStatusCreated, models.SizeActionCreated, ids, now)
			}

			// Lost the insert race; the winner's row is compared like any other
			existing, err = r.sizeRepo.ByNaturalKey(txCtx, candidate.key(), true)
			if err != nil {
				return err
			}
			if existing == nil {
				return ErrSizeRecordNotFound
			}
		}

		before := existing.Snapshot()
		conflicts := DetectSizeConflicts(existing, candidate)

		action := models.SizeActionNoChange
		status = models.SizeValidationStatusValid
		if len(conflicts) > 0 {
			for _, c := range conflicts {
				existing.SetRegionValue(c.Field, c.After)
			}
			existing.ValidationSource = utils.ToPtr(utils.AuthoritativeSizeSource)
			status, action = models.SizeValidationStatusUpdated, models.SizeActionUpdated
		}
		existing.LastValidatedAt = &now

		if err := r.sizeRepo.Update(txCtx, existing); err != nil {
			return err
		}
		sizeID = existing.ID
		return r.audit(txCtx, existing, &before, conflicts, status, action, ids, now)
	})
	if err != nil {
		return 0, NewBusinessError("SIZE_RECONCILIATION_FAILED", "Failed to reconcile size record", err)
	}

	sizeReconciliationsTotal.WithLabelValues(string(status)).Inc()
	if status == models.SizeValidationStatusUpdated {
		r.logger.Printf("size reconciliation: size_id=%d us_size=%.2f gender=%s status=%s", sizeID, candidate.USSize, candidate.Gender, status)
	}
	return sizeID, nil
}

func (r *SizeConflictResolverImpl) audit(
	ctx context.Context,
	record *models.SizeMaster,
	before *models.SizeSnapshot,
	conflicts []models.SizeConflict,
	status models.SizeValidationStatus,
	action models.SizeAction,
	ids SizeSourceIDs,
	at time.Time,
) error {
	if conflicts == nil {
		conflicts = []models.SizeConflict{}
	}
	entry := &models.SizeValidationLog{
		SizeMasterID:         record.ID,
		ValidationSource:     utils.AuthoritativeSizeSource,
		ValidationStatus:     status,
		MarketplaceProductID: ids.ProductID,
		MarketplaceVariantID: ids.VariantID,
		ConflictsFound:       datatypes.JSONSlice[models.SizeConflict](conflicts),
		ActionTaken:          action,
		BeforeData:           datatypes.NewJSONType(before),
		AfterData:            datatypes.NewJSONType(record.Snapshot()),
		ValidatedAt:          at,
	}
	if err := r.auditRepo.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to append size audit entry: %w", err)
	}
	return nil
}

func newSizeRecord(candidate SizeCandidate, now time.Time) *models.SizeMaster {
	return &models.SizeMaster{
		Gender:           candidate.Gender,
		Category:         candidate.Category,
		USSize:           candidate.USSize,
		EUSize:           candidate.EUSize,
		UKSize:           candidate.UKSize,
		CMSize:           candidate.CMSize,
		KRSize:           candidate.KRSize,
		ValidationSource: utils.ToPtr(utils.AuthoritativeSizeSource),
		LastValidatedAt:  &now,
	}
}

// DetectSizeConflicts compares every region the candidate reports against the stored record.
// Differences within the tolerance are not conflicts.
func DetectSizeConflicts(stored *models.SizeMaster, candidate SizeCandidate) []models.SizeConflict {
	tolerance := decimal.NewFromFloat(utils.SizeConflictTolerance)
	high := decimal.NewFromFloat(utils.SizeConflictHighThreshold)

	var conflicts []models.SizeConflict
	for _, region := range models.ReconciledSizeRegions {
		incoming := candidate.Value(region)
		if incoming == nil {
			continue
		}

		current := stored.RegionValue(region)
		if current == nil {
			conflicts = append(conflicts, models.SizeConflict{
				Field:    region,
				Type:     models.SizeConflictMissingInDB,
				Severity: models.SizeConflictSeverityLow,
				After:    *incoming,
			})
			continue
		}

		diff := decimal.NewFromFloat(*current).Sub(decimal.NewFromFloat(*incoming)).Abs()
		if !diff.GreaterThan(tolerance) {
			continue
		}
		severity := models.SizeConflictSeverityMedium
		if diff.GreaterThan(high) {
			severity = models.SizeConflictSeverityHigh
		}
		before := *current
		conflicts = append(conflicts, models.SizeConflict{
			Field:    region,
			Type:     models.SizeConflictMismatch,
			Severity: severity,
			Before:   &before,
			After:    *incoming,
		})
	}
	return conflicts
}
