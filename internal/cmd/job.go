package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/format"
)

// job 命令组 - 索引任务查询与取消
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and cancel indexing jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show job progress (latest when no id given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobStatus,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Request cancellation of a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobCancel,
}

func init() {
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobCancelCmd)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	if len(args) == 1 {
		job, err := m.Job(args[0])
		if err != nil {
			return err
		}
		return format.OutputJob(job, getFormat())
	}

	job, err := m.LatestJob()
	if err != nil {
		return err
	}
	return format.OutputJob(job, getFormat())
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.CancelJob(args[0]); err != nil {
		return err
	}
	fmt.Println("Cancellation requested. The in-flight file will finish first.")
	return nil
}
