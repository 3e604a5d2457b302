package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// warm 命令 - 预热模型后端
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Warm up the model backend",
	Long:  "Load the embedding and OCR models ahead of time so the first index or search is fast",
	Args:  cobra.NoArgs,
	RunE:  runWarm,
}

func runWarm(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Println("Warming backend...")
	if err := m.Warm(context.Background()); err != nil {
		return fmt.Errorf("backend warm failed: %w", err)
	}
	fmt.Printf("Backend %s.\n", m.BackendState())
	return nil
}
