package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pubsearch/internal/adapter/chunker"
	"pubsearch/internal/adapter/embedding"
	"pubsearch/internal/adapter/fs"
	"pubsearch/internal/usecase"
)

var ingestQuiet bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Build and publish a new index from publication records",
	Long: `Read every publication record under source, chunk and embed the text,
write a new build under the data directory and point CURRENT at it.
The previous build keeps serving until the new one is verified.

Examples:
  pubsearch ingest ./records
  pubsearch ingest                 # uses the root directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestQuiet, "quiet", false, "disable the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	source := GetRootDir()
	if len(args) > 0 {
		var err error
		source, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("source does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", source)
	}

	cfg := GetConfig()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return err
	}
	chk, err := chunker.NewWindowChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return err
	}
	walker := fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)

	indexUC := usecase.NewIndexUseCase(cfg, walker, chk, embedder, logger)

	fmt.Printf("Scanning %s...\n", source)

	var progress usecase.ProgressFunc
	if !ingestQuiet {
		progress = newProgress("Embedding")
	}

	result, err := indexUC.Rebuild(cmd.Context(), source, progress)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Build:          %s\n", result.BuildID)
	fmt.Printf("  Files scanned:  %d\n", result.FilesScanned)
	fmt.Printf("  Files skipped:  %d\n", result.FilesSkipped)
	fmt.Printf("  Publications:   %d\n", result.Publications)
	if result.Duplicates > 0 {
		fmt.Printf("  Duplicates:     %d (first record kept)\n", result.Duplicates)
	}
	fmt.Printf("  Chunks:         %d (%d chars, %d overlap)\n", result.Chunks, chk.Size(), chk.Overlap())
	fmt.Printf("  Model:          %s (dim %d)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Printf("  Took:           %s\n", formatDuration(result.Duration))
	if len(result.Pruned) > 0 {
		fmt.Printf("  Pruned builds:  %d\n", len(result.Pruned))
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nIndex published in: %s\n", cfg.DataDir)
	return nil
}

// newProgress returns a ProgressFunc that drives a terminal progress bar,
// created lazily once the total is known.
func newProgress(label string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	return func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			remaining := total - done
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
