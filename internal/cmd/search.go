package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/format"
	"github.com/merlian/merlian/pkg/rank"
)

// search 命令 - 混合检索
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed screenshots",
	Long:  "Search using hybrid ranking (visual similarity + OCR text match)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var (
	numResults int
	searchMode string
)

func init() {
	searchCmd.Flags().IntVarP(&numResults, "num", "n", 0, "Number of results (0 = configured default)")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "hybrid", "Ranking mode (hybrid|visual|text)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	results, err := m.Search(context.Background(), args[0], numResults, rank.Mode(searchMode))
	if err != nil {
		return err
	}

	return format.OutputSearchResults(results, getFormat())
}
