package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"pubsearch/config"
)

// CurrentSchemaVersion is the current snapshot layout version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the schema info from the snapshot.
func (s *BoltSnapshot) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if v := b.Get(keySchemaVersion); v != nil {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("bad schema version %q: %w", v, err)
			}
			info.Version = n
		}
		if h := b.Get(keyConfigHash); h != nil {
			info.ConfigHash = string(h)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the snapshot.
func (s *BoltSnapshot) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if err := b.Put(keySchemaVersion, []byte(strconv.Itoa(info.Version))); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash computes a hash of the settings that shape an index build.
// A different hash means the published build no longer matches the config.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		ChunkSize       int    `json:"chunk_size"`
		ChunkOverlap    int    `json:"chunk_overlap"`
		MinSectionChars int    `json:"min_section_chars"`
		ExcerptChars    int    `json:"excerpt_chars"`
		EmbProvider     string `json:"emb_provider"`
		EmbModel        string `json:"emb_model"`
		EmbDimension    int    `json:"emb_dimension"`
	}{
		ChunkSize:       cfg.Index.ChunkSize,
		ChunkOverlap:    cfg.Index.ChunkOverlap,
		MinSectionChars: cfg.Index.MinSectionChars,
		ExcerptChars:    cfg.Index.ExcerptChars,
		EmbProvider:     cfg.Embedding.Provider,
		EmbModel:        cfg.Embedding.Model,
		EmbDimension:    cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CompatibilityResult describes whether a snapshot can be served under the
// current binary and config.
type CompatibilityResult struct {
	Incompatible bool
	Stale        bool
	Version      int
	Reason       string
}

// CheckCompatibility compares the snapshot's schema version and config hash
// against the running binary and config. Incompatible snapshots cannot be
// loaded; stale ones can but should be rebuilt.
func (s *BoltSnapshot) CheckCompatibility(cfg *config.Config) (*CompatibilityResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &CompatibilityResult{Version: info.Version}
	switch {
	case info.Version == 0:
		result.Incompatible = true
		result.Reason = "snapshot has no schema version"
	case info.Version > CurrentSchemaVersion:
		result.Incompatible = true
		result.Reason = fmt.Sprintf("snapshot created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	case info.Version < CurrentSchemaVersion:
		result.Incompatible = true
		result.Reason = fmt.Sprintf("snapshot schema v%d is older than v%d", info.Version, CurrentSchemaVersion)
	case info.ConfigHash != ComputeConfigHash(cfg):
		result.Stale = true
		result.Reason = "index configuration changed since build"
	}
	return result, nil
}
