package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"pubsearch/internal/domain"
)

// writeBatch bounds the number of entries per bbolt transaction.
const writeBatch = 1000

type storedEntry struct {
	Vector []float32            `json:"v"`
	Meta   domain.ChunkMetadata `json:"c"`
}

func ordinalKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

func nextOrdinal(b *bbolt.Bucket) int {
	k, _ := b.Cursor().Last()
	if k == nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(k)) + 1
}

// WriteEntries appends entries after any already written, keyed by ordinal so
// that a cursor walk returns them in index order.
func (s *BoltSnapshot) WriteEntries(entries []domain.Entry) error {
	for start := 0; start < len(entries); start += writeBatch {
		end := start + writeBatch
		if end > len(entries) {
			end = len(entries)
		}

		err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(bucketEntries)
			next := nextOrdinal(b)
			for i, e := range entries[start:end] {
				data, err := json.Marshal(storedEntry{Vector: e.Vector, Meta: e.Meta})
				if err != nil {
					return err
				}
				if err := b.Put(ordinalKey(next+i), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write entries %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// ReadEntries returns all entries in ordinal order. A gap in the ordinal
// sequence or an undecodable entry is reported as index corruption.
func (s *BoltSnapshot) ReadEntries(ctx context.Context) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		entries = make([]domain.Entry, 0, b.Stats().KeyN)

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(entries)%writeBatch == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(entries)) {
				return fmt.Errorf("%w: entry key %x out of sequence at position %d", domain.ErrIndexCorruption, k, len(entries))
			}
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("%w: entry %d: %v", domain.ErrIndexCorruption, len(entries), err)
			}
			entries = append(entries, domain.Entry{Vector: stored.Vector, Meta: stored.Meta})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// EntryCount returns the number of stored entries without decoding them.
func (s *BoltSnapshot) EntryCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n, err
}
