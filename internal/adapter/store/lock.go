package store

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"pubsearch/internal/domain"
)

// IngestLock is an exclusive, cross-process lock on a data directory. It rides
// on the flock bbolt takes on its file.
type IngestLock struct {
	db *bbolt.DB
}

// AcquireIngestLock takes the lock at path, waiting at most timeout. A lock
// held elsewhere yields domain.ErrIngestLocked.
func AcquireIngestLock(path string, timeout time.Duration) (*IngestLock, error) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIngestLocked, path)
		}
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return &IngestLock{db: db}, nil
}

func (l *IngestLock) Release() error {
	return l.db.Close()
}
