package cmd

import (
	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/format"
)

// status 命令 - 索引状态
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	st, err := m.Status()
	if err != nil {
		return err
	}
	return format.OutputStatus(st, getFormat())
}
