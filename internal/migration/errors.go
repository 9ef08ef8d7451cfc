package migration

import "errors"

var (
	// ErrHostNotFound means a source or target host is missing from inventory.
	ErrHostNotFound = errors.New("host not found in inventory")
	// ErrRetriesExhausted means a job kept failing after every allowed retry.
	ErrRetriesExhausted = errors.New("job retries exhausted")
	// ErrStatusMissing means no deployment status appeared for too many polls.
	ErrStatusMissing = errors.New("deployment status missing")
)
