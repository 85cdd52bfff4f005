// Package businessflow contains the core business logic for price enrichment, size reconciliation and the price ledger
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Price ledger errors
	ErrInvalidPriceSource = errors.New("invalid price source record")
	ErrPersistence        = errors.New("price ledger persistence failed")

	// Size reconciliation errors
	ErrInvalidSizeCandidate = errors.New("invalid size candidate")
	ErrSizeRecordNotFound   = errors.New("size record not found")

	// Enrichment errors
	ErrInvalidRateLimit       = errors.New("rate limit per minute must be positive")
	ErrInvalidBatchLimit      = errors.New("batch limit must not be negative")
	ErrEnrichmentJobFailed    = errors.New("enrichment job failed")
	ErrEnrichmentJobNotFound  = errors.New("enrichment job not found")
	ErrListingWithoutCode     = errors.New("listing has no product code")
	ErrEnrichmentAlreadyFinal = errors.New("enrichment job already finalized")

	// Opportunity errors
	ErrInvalidOpportunityQuery = errors.New("invalid opportunity query")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsInvalidPriceSource(err error) bool {
	return errors.Is(err, ErrInvalidPriceSource)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

func IsInvalidSizeCandidate(err error) bool {
	return errors.Is(err, ErrInvalidSizeCandidate)
}

func IsInvalidRateLimit(err error) bool {
	return errors.Is(err, ErrInvalidRateLimit)
}

func IsEnrichmentJobFailed(err error) bool {
	return errors.Is(err, ErrEnrichmentJobFailed)
}

func IsEnrichmentJobNotFound(err error) bool {
	return errors.Is(err, ErrEnrichmentJobNotFound)
}

func IsInvalidOpportunityQuery(err error) bool {
	return errors.Is(err, ErrInvalidOpportunityQuery)
}
