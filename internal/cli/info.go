package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pubsearch/config"
	"pubsearch/internal/adapter/store"
	"pubsearch/internal/domain"
	"pubsearch/internal/usecase"
)

var verifyBuild string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the published build and the builds on disk",
	RunE:  runInfo,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Load a build and cross-check its files",
	Long: `Load the published build (or the one named by --build) the same way the
server does: schema version, index descriptor, vector count and publication
records must all agree. Exits non-zero on any mismatch.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(infoCmd, verifyCmd)
	verifyCmd.Flags().StringVar(&verifyBuild, "build", "", "build id to verify (default is CURRENT)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	current, err := store.ReadCurrent(cfg.DataDir)
	if errors.Is(err, domain.ErrNoIndex) {
		fmt.Printf("No index published in %s. Run 'pubsearch ingest' first.\n", cfg.DataDir)
		return nil
	}
	if err != nil {
		return err
	}

	info, err := store.ReadInfoFile(config.IndexInfoPath(config.BuildDir(cfg.DataDir, current)))
	if err != nil {
		return err
	}

	fmt.Printf("Data dir:       %s\n", cfg.DataDir)
	fmt.Printf("Current build:  %s\n", info.BuildID)
	fmt.Printf("Created:        %s\n", info.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Schema:         v%d\n", info.SchemaVersion)
	fmt.Printf("Model:          %s/%s (dim %d)\n", info.Provider, info.Model, info.Dimension)
	fmt.Printf("Chunks:         %d\n", info.ChunkCount)
	fmt.Printf("Publications:   %d\n", info.PublicationCount)
	fmt.Printf("Chunking:       %d chars, %d overlap\n", info.ChunkSize, info.ChunkOverlap)
	if info.ConfigHash != store.ComputeConfigHash(cfg) {
		fmt.Println("Status:         stale (configuration changed since build)")
	}

	builds, err := store.ListBuilds(cfg.DataDir)
	if err != nil {
		return err
	}
	fmt.Printf("\nBuilds on disk: %d\n", len(builds))
	for _, b := range builds {
		marker := " "
		if b == current {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, b)
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	buildID := verifyBuild
	if buildID == "" {
		var err error
		buildID, err = store.ReadCurrent(cfg.DataDir)
		if err != nil {
			return err
		}
	}

	corpus, err := usecase.NewCorpusLoader(cfg, logger).LoadBuild(cmd.Context(), buildID)
	if err != nil {
		return fmt.Errorf("build %s failed verification: %w", buildID, err)
	}

	h := corpus.Health()
	fmt.Printf("Build %s OK: %d chunks, %d publications, %s dim %d\n",
		h.BuildID, h.Chunks, h.Publications, h.Model, h.Dimension)
	return nil
}
