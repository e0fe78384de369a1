// Package domain holds sentinel errors shared by the stores and services of
// the review pipeline.
package domain

import "errors"

// ErrNotFound reports that a content item, workflow instance or related row
// does not exist. Stores return it so the HTTP layer can map lookups to 404s.
var ErrNotFound = errors.New("domain: not found")

// ErrConflict reports a lost optimistic-concurrency race, such as a stale
// assignment cursor CAS. Callers retry with fresh state.
var ErrConflict = errors.New("domain: conflict")
