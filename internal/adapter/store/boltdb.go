package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
	keyInfo       = []byte("index_info")
)

// BoltSnapshot is one index build persisted in a bbolt file: the aligned
// vector/metadata entries plus the build's IndexInfo.
type BoltSnapshot struct {
	db *bbolt.DB
}

var (
	_ port.SnapshotWriter = (*BoltSnapshot)(nil)
	_ port.SnapshotReader = (*BoltSnapshot)(nil)
)

// CreateSnapshot creates a fresh snapshot file for writing. It refuses to
// overwrite an existing build.
func CreateSnapshot(path string) (*BoltSnapshot, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("snapshot already exists: %s", path)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEntries, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltSnapshot{db: db}, nil
}

// OpenSnapshot opens an existing snapshot read-only. timeout bounds the wait
// for the file lock held by a writer.
func OpenSnapshot(path string, timeout time.Duration) (*BoltSnapshot, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing index file %s", domain.ErrIndexCorruption, path)
		}
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEntries, bucketMeta} {
			if tx.Bucket(b) == nil {
				return fmt.Errorf("%w: bucket %s missing", domain.ErrIndexCorruption, b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltSnapshot{db: db}, nil
}

// WriteInfo stores the build descriptor together with the schema version and
// config hash it was produced under.
func (s *BoltSnapshot) WriteInfo(info domain.IndexInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyInfo, data)
	}); err != nil {
		return err
	}
	return s.SetSchemaInfo(&SchemaInfo{Version: info.SchemaVersion, ConfigHash: info.ConfigHash})
}

func (s *BoltSnapshot) ReadInfo() (domain.IndexInfo, error) {
	var info domain.IndexInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyInfo)
		if data == nil {
			return fmt.Errorf("%w: index info missing", domain.ErrIndexCorruption)
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("%w: index info: %v", domain.ErrIndexCorruption, err)
		}
		return nil
	})
	return info, err
}

func (s *BoltSnapshot) Close() error {
	return s.db.Close()
}

// WriteInfoFile writes the human-readable index descriptor next to index.db.
func WriteInfoFile(path string, info domain.IndexInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func ReadInfoFile(path string) (domain.IndexInfo, error) {
	var info domain.IndexInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("%w: %s: %v", domain.ErrIndexCorruption, path, err)
	}
	return info, nil
}
