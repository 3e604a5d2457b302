package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/pkg/jobs"
)

// watch 命令 - 监听目录变化自动增量索引
var watchCmd = &cobra.Command{
	Use:   "watch <library>",
	Short: "Watch a library and re-index on changes",
	Long:  "Watch the library directory and trigger incremental indexing after changes settle",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var watchNoOCR bool

func init() {
	watchCmd.Flags().BoolVar(&watchNoOCR, "no-ocr", false, "Skip text recognition")
}

func runWatch(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching. Press Ctrl+C to stop.")
	err = m.Watch(ctx, args[0], jobs.IndexOptions{WithOCR: !watchNoOCR})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
