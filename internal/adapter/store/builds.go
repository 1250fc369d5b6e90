package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pubsearch/config"
	"pubsearch/internal/domain"
)

// ReadCurrent returns the id of the published build.
func ReadCurrent(dataDir string) (string, error) {
	data, err := os.ReadFile(config.CurrentPath(dataDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", domain.ErrNoIndex, dataDir)
		}
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: bad CURRENT pointer %q", domain.ErrIndexCorruption, id)
	}
	return id, nil
}

// PublishCurrent points CURRENT at buildID. Readers see either the old or the
// new pointer, never a partial write.
func PublishCurrent(dataDir, buildID string) error {
	target := config.CurrentPath(dataDir)
	tmp := target + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(buildID + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// ListBuilds returns build ids in creation order. Build ids are UUIDv7, so
// lexical order is chronological.
func ListBuilds(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(config.BuildsDir(dataDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// PruneBuilds removes all but the newest keep builds. The current build is
// never removed. It returns the removed ids.
func PruneBuilds(dataDir string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	ids, err := ListBuilds(dataDir)
	if err != nil {
		return nil, err
	}
	current, _ := ReadCurrent(dataDir)

	var removed []string
	for i, id := range ids {
		if i >= len(ids)-keep || id == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(config.BuildsDir(dataDir), id)); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}
