package engine

import "errors"

var (
	// ErrModelUnavailable is returned when no trained classifier
	// artifact is present. Callers surface this as a retryable
	// "not trained yet" condition, not a generic failure.
	ErrModelUnavailable = errors.New("model artifact unavailable")

	// ErrInsufficientData is returned when an artifact was produced
	// from fewer than 2 instances or a single-class label set.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrUpstreamUnavailable is returned when an external collaborator
	// (the language-model API) is unconfigured or unreachable. Callers
	// degrade by omitting the narrative explanation.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)
