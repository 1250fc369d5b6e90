package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"pubsearch/config"
	"pubsearch/internal/adapter/retriever"
	"pubsearch/internal/adapter/store"
	"pubsearch/internal/domain"
	"pubsearch/internal/logging"
)

// CorpusLoader reads published index builds from the data directory.
type CorpusLoader struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewCorpusLoader(cfg *config.Config, logger *slog.Logger) *CorpusLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusLoader{cfg: cfg, logger: logger}
}

// Load resolves CURRENT and loads that build.
func (l *CorpusLoader) Load(ctx context.Context) (*retriever.Corpus, error) {
	id, err := store.ReadCurrent(l.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return l.LoadBuild(ctx, id)
}

// LoadBuild loads one build and cross-checks the bbolt snapshot, the
// index_info.json descriptor and the publication records against each other.
// The whole load is bounded by index.load_timeout.
func (l *CorpusLoader) LoadBuild(ctx context.Context, buildID string) (*retriever.Corpus, error) {
	if l.cfg.Index.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Index.LoadTimeout)
		defer cancel()
	}

	ctx = logging.WithBuildID(ctx, buildID)
	buildDir := config.BuildDir(l.cfg.DataDir, buildID)

	snap, err := store.OpenSnapshot(config.IndexDBPath(buildDir), l.cfg.Index.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("open build %s: %w", buildID, err)
	}
	defer snap.Close()

	compat, err := snap.CheckCompatibility(l.cfg)
	if err != nil {
		return nil, err
	}
	if compat.Incompatible {
		return nil, fmt.Errorf("%w: build %s: %s", domain.ErrIndexCorruption, buildID, compat.Reason)
	}
	if compat.Stale {
		l.logger.WarnContext(ctx, "index build does not match current config, rebuild recommended", "reason", compat.Reason)
	}

	info, err := snap.ReadInfo()
	if err != nil {
		return nil, err
	}
	fileInfo, err := store.ReadInfoFile(config.IndexInfoPath(buildDir))
	if err != nil {
		return nil, err
	}
	if err := checkInfoAgreement(buildID, info, fileInfo); err != nil {
		return nil, err
	}
	if info.Provider != l.cfg.Embedding.Provider {
		return nil, fmt.Errorf("%w: build %s was embedded by provider %q, configured %q",
			domain.ErrIndexCorruption, buildID, info.Provider, l.cfg.Embedding.Provider)
	}

	n, err := snap.EntryCount()
	if err != nil {
		return nil, err
	}
	if n != info.ChunkCount {
		return nil, fmt.Errorf("%w: build %s holds %d entries, descriptor says %d",
			domain.ErrIndexCorruption, buildID, n, info.ChunkCount)
	}

	entries, err := snap.ReadEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read entries of build %s: %w", buildID, err)
	}

	pubStore, err := store.NewFilePublicationStore(config.PublicationsDir(buildDir))
	if err != nil {
		return nil, err
	}
	pubs, err := pubStore.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load publications of build %s: %w", buildID, err)
	}

	corpus, err := retriever.NewCorpus(info, entries, pubs)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", buildID, err)
	}

	l.logger.InfoContext(ctx, "index loaded", "chunks", info.ChunkCount, "publications", info.PublicationCount, "model", info.Model)
	return corpus, nil
}

func checkInfoAgreement(buildID string, db, file domain.IndexInfo) error {
	switch {
	case db.BuildID != buildID:
		return fmt.Errorf("%w: build %s carries id %s", domain.ErrIndexCorruption, buildID, db.BuildID)
	case db.BuildID != file.BuildID,
		db.Model != file.Model,
		db.Dimension != file.Dimension,
		db.ChunkCount != file.ChunkCount,
		db.PublicationCount != file.PublicationCount:
		return fmt.Errorf("%w: index_info.json disagrees with index.db in build %s", domain.ErrIndexCorruption, buildID)
	}
	return nil
}
