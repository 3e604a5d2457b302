package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/format"
	"github.com/merlian/merlian/internal/tui"
	"github.com/merlian/merlian/pkg/jobs"
)

// index 命令 - 增量索引一个素材库
var indexCmd = &cobra.Command{
	Use:   "index <library>",
	Short: "Incrementally index a library",
	Long:  "Scan a library, extract features for new and changed images, and remove vanished ones",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var (
	maxItems    int
	recentFirst bool
	noOCR       bool
	quiet       bool
)

func init() {
	indexCmd.Flags().IntVar(&maxItems, "max-items", 0, "Limit of new/changed files this run (0 = unlimited)")
	indexCmd.Flags().BoolVar(&recentFirst, "recent-first", false, "Process most recently modified files first")
	indexCmd.Flags().BoolVar(&noOCR, "no-ocr", false, "Skip text recognition")
	indexCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No progress UI, print the result when done")
}

func runIndex(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	jobID, err := m.Index(context.Background(), args[0], jobs.IndexOptions{
		MaxItems:    maxItems,
		RecentFirst: recentFirst,
		WithOCR:     !noOCR,
	})
	if err != nil {
		return err
	}

	if quiet {
		fmt.Printf("Job started: %s\n", jobID)
		m.WaitJob(jobID)
	} else {
		if err := tui.Run(m, jobID); err != nil {
			return err
		}
		// 界面退出后任务可能还在收尾
		m.WaitJob(jobID)
	}

	j, err := m.Job(jobID)
	if err != nil {
		return err
	}
	return format.OutputJob(j, getFormat())
}
