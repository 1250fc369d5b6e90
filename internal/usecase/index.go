package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pubsearch/config"
	"pubsearch/internal/adapter/chunker"
	"pubsearch/internal/adapter/embedding"
	"pubsearch/internal/adapter/fs"
	"pubsearch/internal/adapter/store"
	"pubsearch/internal/domain"
	"pubsearch/internal/logging"
	"pubsearch/internal/port"
)

// ErrEmptyCorpus is returned when the source yields no indexable text.
var ErrEmptyCorpus = errors.New("no chunks produced from source")

// ProgressFunc reports embedding progress in chunks.
type ProgressFunc func(done, total int)

// IndexUseCase builds a new index from a directory of publication records and
// publishes it atomically.
type IndexUseCase struct {
	cfg      *config.Config
	walker   port.FileWalker
	chunker  port.Chunker
	embedder port.Embedder
	logger   *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	cfg *config.Config,
	walker port.FileWalker,
	chunker port.Chunker,
	embedder port.Embedder,
	logger *slog.Logger,
) *IndexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		cfg:      cfg,
		walker:   walker,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	BuildID      string
	FilesScanned int
	FilesSkipped int
	Publications int
	Duplicates   int
	Chunks       int
	Pruned       []string
	Duration     time.Duration
	Errors       []string
}

// Rebuild indexes every record under source into a new build and points
// CURRENT at it. The previous build keeps serving until the new one is
// complete and verified.
func (u *IndexUseCase) Rebuild(ctx context.Context, source string, progress ProgressFunc) (*IndexResult, error) {
	started := time.Now()
	result := &IndexResult{}

	if err := config.EnsureDataDir(u.cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	lock, err := store.AcquireIngestLock(config.LockPath(u.cfg.DataDir), u.cfg.Index.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	pubs, err := u.collect(source, result)
	if err != nil {
		return nil, err
	}
	result.Publications = len(pubs)

	chunks := u.chunk(pubs, result)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, source)
	}
	result.Chunks = len(chunks)

	if err := embedding.Probe(ctx, u.embedder); err != nil {
		return nil, err
	}

	vectors, err := u.embed(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.Entry{Vector: vectors[i], Meta: u.metadata(c)}
	}

	buildID := uuid.Must(uuid.NewV7()).String()
	result.BuildID = buildID
	ctx = logging.WithBuildID(ctx, buildID)
	info := domain.IndexInfo{
		SchemaVersion:    store.CurrentSchemaVersion,
		BuildID:          buildID,
		Provider:         u.cfg.Embedding.Provider,
		Model:            u.embedder.ModelName(),
		Dimension:        u.embedder.Dimension(),
		ChunkCount:       len(entries),
		PublicationCount: len(pubs),
		ChunkSize:        u.cfg.Index.ChunkSize,
		ChunkOverlap:     u.cfg.Index.ChunkOverlap,
		ConfigHash:       store.ComputeConfigHash(u.cfg),
		CreatedAt:        time.Now().UTC(),
	}

	buildDir := config.BuildDir(u.cfg.DataDir, buildID)
	if err := u.writeBuild(buildDir, info, entries, pubs); err != nil {
		os.RemoveAll(buildDir)
		return nil, fmt.Errorf("failed to write build %s: %w", buildID, err)
	}

	// Load the build back through the same path the server uses before
	// anything can see it.
	if _, err := NewCorpusLoader(u.cfg, u.logger).LoadBuild(ctx, buildID); err != nil {
		os.RemoveAll(buildDir)
		return nil, fmt.Errorf("verify build %s: %w", buildID, err)
	}

	if err := store.PublishCurrent(u.cfg.DataDir, buildID); err != nil {
		os.RemoveAll(buildDir)
		return nil, fmt.Errorf("failed to publish build %s: %w", buildID, err)
	}

	pruned, err := store.PruneBuilds(u.cfg.DataDir, u.cfg.Index.KeepBuilds)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("prune old builds: %v", err))
	}
	result.Pruned = pruned
	result.Duration = time.Since(started)

	u.logger.InfoContext(ctx, "index published",
		"publications", result.Publications,
		"chunks", result.Chunks,
		"skipped_files", result.FilesSkipped,
		"duplicates", result.Duplicates,
		"duration", result.Duration)

	return result, nil
}

// collect walks source and decodes records. Unreadable files and records
// without an id are skipped; for duplicate ids the first record wins.
func (u *IndexUseCase) collect(source string, result *IndexResult) ([]domain.PublicationRecord, error) {
	files, err := u.walker.Walk(source)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	files = u.outsideDataDir(files)
	result.FilesScanned = len(files)

	seen := make(map[string]string)
	var pubs []domain.PublicationRecord
	for _, file := range files {
		recs, err := fs.ReadRecords(file.Path)
		if err != nil {
			result.FilesSkipped++
			result.Errors = append(result.Errors, err.Error())
			u.logger.Warn("skipping unreadable record file", "path", file.Path, "error", err)
			continue
		}
		for _, rec := range recs {
			if rec.ID == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: record without id", file.Path))
				u.logger.Warn("skipping record without id", "path", file.Path)
				continue
			}
			if first, dup := seen[rec.ID]; dup {
				result.Duplicates++
				u.logger.Warn("skipping duplicate publication", "pub_id", rec.ID, "path", file.Path, "first", first)
				continue
			}
			seen[rec.ID] = file.Path
			pubs = append(pubs, rec)
		}
	}
	return pubs, nil
}

// outsideDataDir drops files under the data directory. When source contains
// it, those are the persisted records of earlier builds.
func (u *IndexUseCase) outsideDataDir(files []port.FileInfo) []port.FileInfo {
	dataDir, err := filepath.Abs(u.cfg.DataDir)
	if err != nil {
		return files
	}
	kept := files[:0]
	for _, f := range files {
		if within(dataDir, f.Path) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func within(dir, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (u *IndexUseCase) chunk(pubs []domain.PublicationRecord, result *IndexResult) []domain.Chunk {
	var chunks []domain.Chunk
	for _, pub := range pubs {
		for _, sec := range chunker.OrderSections(pub.Sections, u.cfg.Index.MinSectionChars) {
			cs, err := u.chunker.Chunk(pub.ID, sec.Name, chunker.Normalize(sec.Text))
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", pub.ID, sec.Name, err))
				continue
			}
			chunks = append(chunks, cs...)
		}
	}
	return chunks
}

// embed vectorizes chunk texts batch by batch. Any failed batch aborts the
// run, since a build must not mix vectors from different attempts or models.
func (u *IndexUseCase) embed(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) ([][]float32, error) {
	batch := u.cfg.Embedding.BatchSize
	if batch <= 0 {
		batch = 64
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		vecs, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		for i, v := range vecs {
			if len(v) != u.embedder.Dimension() {
				return nil, fmt.Errorf("%w: chunk %s embedded to %d dims, want %d", domain.ErrModelUnavailable, chunks[start+i].ID, len(v), u.embedder.Dimension())
			}
		}
		vectors = append(vectors, vecs...)

		if progress != nil {
			progress(end, len(chunks))
		}
	}
	return vectors, nil
}

func (u *IndexUseCase) metadata(c domain.Chunk) domain.ChunkMetadata {
	excerpt := c.Text
	if r := []rune(excerpt); u.cfg.Index.ExcerptChars > 0 && len(r) > u.cfg.Index.ExcerptChars {
		excerpt = string(r[:u.cfg.Index.ExcerptChars])
	}
	return domain.ChunkMetadata{
		ChunkID: c.ID,
		PubID:   c.PubID,
		Section: c.Section,
		Start:   c.Start,
		End:     c.End,
		Excerpt: excerpt,
	}
}

func (u *IndexUseCase) writeBuild(buildDir string, info domain.IndexInfo, entries []domain.Entry, pubs []domain.PublicationRecord) error {
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return err
	}

	snap, err := store.CreateSnapshot(config.IndexDBPath(buildDir))
	if err != nil {
		return err
	}
	if err := writeSnapshot(snap, info, entries); err != nil {
		return err
	}

	if err := store.WriteInfoFile(config.IndexInfoPath(buildDir), info); err != nil {
		return err
	}

	pubStore, err := store.NewFilePublicationStore(config.PublicationsDir(buildDir))
	if err != nil {
		return err
	}
	return writePublications(pubStore, pubs)
}

// writeSnapshot writes info and entries and closes w, whatever the outcome.
func writeSnapshot(w port.SnapshotWriter, info domain.IndexInfo, entries []domain.Entry) error {
	if err := w.WriteInfo(info); err != nil {
		w.Close()
		return err
	}
	if err := w.WriteEntries(entries); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func writePublications(s port.PublicationStore, pubs []domain.PublicationRecord) error {
	for _, pub := range pubs {
		if err := s.Put(pub); err != nil {
			return fmt.Errorf("write publication %s: %w", pub.ID, err)
		}
	}
	return nil
}
