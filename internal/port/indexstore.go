package port

import (
	"context"

	"pubsearch/internal/domain"
)

// SnapshotWriter persists one complete index build.
type SnapshotWriter interface {
	WriteInfo(info domain.IndexInfo) error

	WriteEntries(entries []domain.Entry) error

	Close() error
}

// SnapshotReader reads a persisted index build back in ordinal order.
type SnapshotReader interface {
	ReadInfo() (domain.IndexInfo, error)

	ReadEntries(ctx context.Context) ([]domain.Entry, error)

	Close() error
}

// PublicationStore persists one record per publication.
type PublicationStore interface {
	Put(rec domain.PublicationRecord) error

	Get(id string) (domain.PublicationRecord, error)

	LoadAll(ctx context.Context) ([]domain.PublicationRecord, error)
}
