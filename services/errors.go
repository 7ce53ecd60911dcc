package services

import "errors"

var (
	// ErrUnknownMetric means a requirement names a metric with no evaluator.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrInvalidRequirement covers a bad operator, filter key or filter value.
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrRequirementsNotMet is returned when an unlock is attempted with an unmet snapshot.
	ErrRequirementsNotMet = errors.New("requirements not met")
	// ErrCreditFailure wraps storage failures while paying a reward.
	ErrCreditFailure = errors.New("credit failure")
	// ErrNotUnlocked is returned when crediting or claiming an achievement the user has not unlocked.
	ErrNotUnlocked = errors.New("achievement not unlocked")
	// ErrAlreadyClaimed is returned by Claim when the reward was paid before.
	ErrAlreadyClaimed = errors.New("reward already claimed")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)
