package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"pubsearch/config"
	"pubsearch/internal/adapter/store"
	"pubsearch/internal/domain"
)

// lookupPublication reads one record straight from the published build. It
// needs neither the embedder nor the vectors.
func lookupPublication(cfg *config.Config, pubID string) (domain.PublicationRecord, error) {
	if strings.TrimSpace(pubID) == "" {
		return domain.PublicationRecord{}, fmt.Errorf("%w: empty publication id", domain.ErrNotFound)
	}

	buildID, err := store.ReadCurrent(cfg.DataDir)
	if err != nil {
		return domain.PublicationRecord{}, err
	}
	dir := config.PublicationsDir(config.BuildDir(cfg.DataDir, buildID))
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.PublicationRecord{}, fmt.Errorf("%w: build %s has no publications", domain.ErrIndexCorruption, buildID)
		}
		return domain.PublicationRecord{}, err
	}

	pubs, err := store.NewFilePublicationStore(dir)
	if err != nil {
		return domain.PublicationRecord{}, err
	}
	return pubs.Get(pubID)
}
