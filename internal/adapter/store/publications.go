package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

// loadConcurrency bounds parallel record reads in LoadAll.
const loadConcurrency = 8

// FilePublicationStore keeps one JSON file per publication under a directory.
type FilePublicationStore struct {
	dir string
}

var _ port.PublicationStore = (*FilePublicationStore)(nil)

func NewFilePublicationStore(dir string) (*FilePublicationStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create publications dir: %w", err)
	}
	return &FilePublicationStore{dir: dir}, nil
}

// Ids may contain characters that are unsafe in file names, so they are
// path-escaped.
func (s *FilePublicationStore) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+".json")
}

func (s *FilePublicationStore) Put(rec domain.PublicationRecord) error {
	if rec.ID == "" {
		return errors.New("publication record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(rec.ID), data, 0644)
}

func (s *FilePublicationStore) Get(id string) (domain.PublicationRecord, error) {
	var rec domain.PublicationRecord
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, fmt.Errorf("%w: publication %s", domain.ErrNotFound, id)
		}
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("%w: publication %s: %v", domain.ErrIndexCorruption, id, err)
	}
	return rec, nil
}

// LoadAll reads every record in the directory concurrently and returns them
// sorted by id.
func (s *FilePublicationStore) LoadAll(ctx context.Context) ([]domain.PublicationRecord, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}

	recs := make([]domain.PublicationRecord, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(s.dir, name))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &recs[i]); err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrIndexCorruption, name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}
