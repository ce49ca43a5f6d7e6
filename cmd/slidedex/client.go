package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	slidedex "github.com/pathology-bites/slidedex/pkg/sdk"
)

var (
	serverURL string
	apiKey    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default: $SLIDEDEX_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Bearer API key (default: $SLIDEDEX_API_KEY)")

	search := &cobra.Command{
		Use:   "search [text]",
		Short: "Query the search index",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	addCriteriaFlags(search)
	search.Flags().Bool("stats", false, "Print metadata only")

	details := &cobra.Command{
		Use:   "details [id...]",
		Short: "Fetch full slide records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDetails,
	}

	random := &cobra.Command{
		Use:   "random",
		Short: "Draw random slides from the filtered index",
		Args:  cobra.NoArgs,
		RunE:  runRandom,
	}
	addCriteriaFlags(random)
	random.Flags().IntP("count", "n", 5, "Number of slides")
	random.Flags().Bool("details", false, "Fetch full records for the drawn slides")

	rootCmd.AddCommand(search, details, random)
}

func addCriteriaFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("repository", "r", "", "Repository filter")
	cmd.Flags().StringP("category", "c", "", "Category filter")
}

func criteriaFromFlags(cmd *cobra.Command, args []string) slidedex.Criteria {
	repository, _ := cmd.Flags().GetString("repository")
	category, _ := cmd.Flags().GetString("category")
	c := slidedex.Criteria{Repository: repository, Category: category}
	if len(args) > 0 {
		c.Search = args[0]
	}
	return c
}

func newClient() (*slidedex.Client, error) {
	base := serverURL
	if base == "" {
		base = os.Getenv("SLIDEDEX_URL")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	key := apiKey
	if key == "" {
		key = os.Getenv("SLIDEDEX_API_KEY")
	}
	c, err := slidedex.New(base,
		slidedex.WithAPIKey(key),
		slidedex.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	statsOnly, _ := cmd.Flags().GetBool("stats")

	client, err := newClient()
	if err != nil {
		return err
	}
	idx, err := client.SearchIndex(cmd.Context(), criteriaFromFlags(cmd, args))
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	if statsOnly {
		return printJSON(idx.Metadata)
	}
	return printJSON(idx)
}

func runDetails(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	res, err := client.FetchDetails(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}
	return printJSON(res)
}

func runRandom(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	withDetails, _ := cmd.Flags().GetBool("details")

	client, err := newClient()
	if err != nil {
		return err
	}
	cat := slidedex.NewCatalog(client)
	if err := cat.Load(cmd.Context()); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	cat.SetFilters(criteriaFromFlags(cmd, nil))

	picked := cat.RandomSlides(count)
	if !withDetails || len(picked) == 0 {
		return printJSON(picked)
	}

	ids := make([]string, len(picked))
	for i := range picked {
		ids[i] = picked[i].ID
	}
	slides, err := cat.LoadSlideDetails(cmd.Context(), ids)
	if err != nil {
		return fmt.Errorf("load details: %w", err)
	}
	return printJSON(slides)
}
