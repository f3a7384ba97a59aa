package subscription

import "errors"

var (
	ErrPlanNotFound     = errors.New("subscription plan not found")
	ErrUnknownPriceID   = errors.New("price id does not map to any catalog plan")
	ErrInvalidPeriod    = errors.New("subscription period bounds are missing or invalid")
	ErrInvalidCatalog   = errors.New("invalid plan catalog configuration")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrNotFound         = errors.New("subscription not found")
	ErrMissingProcessor = errors.New("processor subscription is required")
)
