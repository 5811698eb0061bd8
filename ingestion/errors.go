package ingestion

import "errors"

var (
	// ErrSourceRequired is returned when no record source is configured.
	ErrSourceRequired = errors.New("record source required")

	// ErrStagingNotFound is returned when the staging table or sheet does not exist.
	ErrStagingNotFound = errors.New("staging table not found")
)
