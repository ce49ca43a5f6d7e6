package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/domain/slide"
	"github.com/pathology-bites/slidedex/internal/repository/dataset"
	"github.com/pathology-bites/slidedex/internal/storage/file"
	chiTransport "github.com/pathology-bites/slidedex/internal/transport/chi"
	cataloguc "github.com/pathology-bites/slidedex/internal/usecase/catalog"
)

func init() {
	cmd := &cobra.Command{
		Use:   "index [dataset.json]",
		Short: "Build the search index from a local dataset file",
		Long:  "Parse a virtual slide dataset file and print the minimal search index exactly as the API would serve it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}
	cmd.Flags().StringP("search", "s", "", "Free-text filter")
	cmd.Flags().StringP("repository", "r", "", "Repository filter")
	cmd.Flags().StringP("category", "c", "", "Category filter")
	cmd.Flags().Bool("stats", false, "Print metadata only")
	rootCmd.AddCommand(cmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	search, _ := cmd.Flags().GetString("search")
	repository, _ := cmd.Flags().GetString("repository")
	category, _ := cmd.Flags().GetString("category")
	statsOnly, _ := cmd.Flags().GetBool("stats")

	source := file.NewSource(filepath.Dir(path), zap.NewNop())
	repo := dataset.New(source, dataset.Options{
		Location: domain.Location{Bucket: domain.DefaultBucket, Key: filepath.Base(path)},
	}, zap.NewNop())

	res, err := cataloguc.New(repo).SearchIndex(cmd.Context(), slide.Criteria{
		Search:     search,
		Repository: repository,
		Category:   category,
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	var out any = chiTransport.IndexResponse{Data: res.Entries, Metadata: res.Metadata}
	if statsOnly {
		out = res.Metadata
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
