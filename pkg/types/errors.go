package types

import "errors"

// Domain errors for type validation
var (
	// Repository reference errors
	ErrMissingRemote     = errors.New("remote is required")
	ErrUnknownRemote     = errors.New("remote must be github or gitlab")
	ErrMissingRepository = errors.New("repository is required")
	ErrRepositoryShape   = errors.New("repository must be owner/name")
	ErrMissingBranch     = errors.New("branch is required")

	// Message errors
	ErrUnknownRole  = errors.New("role must be user or assistant")
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrNoMessages   = errors.New("at least one message is required")

	// Stream chunk errors
	ErrUnknownChunkKind = errors.New("unknown chunk kind")
	ErrMissingTimestamp = errors.New("chunk timestamp must be set")

	// Source errors
	ErrNegativeLine      = errors.New("line numbers cannot be negative")
	ErrInvertedLineRange = errors.New("linestart must be before or equal to lineend")
)
