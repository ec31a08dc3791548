package gamification

import "errors"

var (
	// ErrInvalidTimingData rejects a completion with negative or missing durations.
	ErrInvalidTimingData = errors.New("invalid timing data")
	// ErrUnknownDrill means a drill has no descriptor in the catalog or the request.
	ErrUnknownDrill = errors.New("unknown drill")
	// ErrInvalidDrill means a descriptor is out of range.
	ErrInvalidDrill = errors.New("invalid drill descriptor")
	// ErrInvalidCompletion rejects a malformed event: duplicate drills, a
	// missing user, an oversized session or idempotency key.
	ErrInvalidCompletion = errors.New("invalid completion")
	// ErrConcurrencyConflict is returned when the streak record changed since it
	// was read. The whole award operation is retried from a fresh read.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrDuplicateMilestoneAward is absorbed by callers; the milestone is already paid.
	ErrDuplicateMilestoneAward = errors.New("milestone already awarded")
	// ErrInvalidAdjustment rejects a ledger credit with an unknown currency or
	// a non-positive amount.
	ErrInvalidAdjustment = errors.New("invalid point adjustment")

	errDuplicateResult = errors.New("award result already recorded")
)
