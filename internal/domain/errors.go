package domain

import "errors"

var (
	// ErrInvalidQuery marks malformed caller input such as an empty query or an
	// out-of-range k.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound marks an unknown publication id.
	ErrNotFound = errors.New("not found")

	// ErrModelUnavailable marks an embedding backend that cannot be loaded or reached.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrIndexCorruption marks index/metadata misalignment or a model identity
	// mismatch between the persisted index and the runtime embedder.
	ErrIndexCorruption = errors.New("index corruption")

	// ErrIngestLocked is returned when another ingestion run holds the data directory.
	ErrIngestLocked = errors.New("ingestion already in progress")

	// ErrNoIndex is returned when the data directory has no published build.
	ErrNoIndex = errors.New("no index build published")
)
