package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
)

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidName          = errors.New("invalid_sequence_name")
	ErrInvalidPattern       = pattern.ErrInvalidPattern
	ErrInvalidContext       = pattern.ErrInvalidContext
	ErrInvalidPadding       = errors.New("invalid_padding")
	ErrInvalidStepSize      = errors.New("invalid_step_size")
	ErrInvalidResetLimit    = errors.New("invalid_reset_limit")
	ErrInvalidResetPeriod   = errors.New("invalid_reset_period")
	ErrInvalidCounter       = errors.New("invalid_counter_state")
	ErrInvalidNumber        = errors.New("invalid_generated_number")
	ErrInvalidOverride      = errors.New("invalid_override")
	ErrInvalidResetValue    = errors.New("invalid_reset_value")
	ErrSequenceNotFound     = errors.New("sequence_not_found")
	ErrSequenceExists       = errors.New("sequence_already_exists")
	ErrVersionConflict      = errors.New("sequence_version_conflict")
	ErrLockTimeout          = errors.New("sequence_lock_timeout")
	ErrDuplicateNumber      = errors.New("duplicate_number")
	ErrNumberTaken          = errors.New("number_already_taken")
	ErrUnsupportedEvaluator = errors.New("unsupported_evaluator")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
)

// DuplicateNumberError names the value that is already recorded.
type DuplicateNumberError struct {
	TenantID     int64
	SequenceName string
	Value        string
}

func (e *DuplicateNumberError) Error() string {
	return fmt.Sprintf("%v: %q already issued for sequence %s", ErrDuplicateNumber, e.Value, e.SequenceName)
}

func (e *DuplicateNumberError) Unwrap() error {
	return ErrDuplicateNumber
}
