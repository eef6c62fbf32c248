// Package apperr defines the error taxonomy shared by the journal core and its surfaces.
package apperr

import "errors"

var (
	// ErrInvalidInput marks a malformed request. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrForbidden marks an entity that exists but belongs to another owner.
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrEmbedding is the EmbeddingServiceError: network, quota or malformed response.
	ErrEmbedding = errors.New("embedding service error")
	// ErrStore is fatal to the enclosing transaction.
	ErrStore = errors.New("store error")
	// ErrUpstream marks a failed call to a generation collaborator.
	ErrUpstream = errors.New("upstream service error")
)
