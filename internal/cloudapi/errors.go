package cloudapi

import "errors"

// Sentinel errors for cloud operations.
var (
	// ErrNoProvider is returned when attempting provider operations
	// without configured credentials.
	ErrNoProvider = errors.New("cloudapi: no provider configured")

	// ErrInstanceNotFound is returned when the provider has no record
	// of the requested instance.
	ErrInstanceNotFound = errors.New("cloudapi: instance not found")
)
