package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pubsearch/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the published index",
	Long: `Embed a query and print the nearest chunks, closest first.

Examples:
  pubsearch search -q "bone loss in microgravity"
  pubsearch search -q "radiation effects on plants" -k 10 --json`,
	RunE: runSearch,
}

var pubCmd = &cobra.Command{
	Use:   "pub <pub_id>",
	Short: "Print the stored record of a publication",
	Long: `Print the record of a publication as stored in the published build.
Reads the record file directly; the embedding backend is not contacted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPub,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <pub_id>",
	Short: "Print the templated summary of a publication",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	rootCmd.AddCommand(searchCmd, pubCmd, summarizeCmd)
	searchCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")

	summarizeCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	rs, err := openReadSide(cmd.Context(), GetConfig())
	if err != nil {
		return err
	}

	results, err := rs.service.Search(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return err
	}

	if queryJSON {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s %s (distance: %.4f) ---\n", i+1, r.PubID, r.Section, r.Score)
		fmt.Printf("%s (%s)\n", r.PubTitle, r.PubYear)
		if r.PubAuthors != "" {
			fmt.Printf("%s\n", r.PubAuthors)
		}
		fmt.Println(strings.TrimSpace(r.Excerpt))
		fmt.Println()
	}
	return nil
}

func runPub(cmd *cobra.Command, args []string) error {
	rec, err := lookupPublication(GetConfig(), args[0])
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rec, err := lookupPublication(cfg, args[0])
	if err != nil {
		return err
	}
	sum := usecase.Summarize(rec, cfg.Summary)
	if queryJSON {
		return printJSON(sum)
	}
	fmt.Println(sum.Summary)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
