package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// reset 命令 - 清空索引
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the entire index and start over",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var resetYes bool

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		fmt.Print("This deletes the whole index (source images are untouched). Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Reset(); err != nil {
		return err
	}
	fmt.Println("Index reset.")
	return nil
}
