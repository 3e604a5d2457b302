package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/format"
)

// library 命令组 - 素材库管理
var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage screenshot libraries",
}

var libraryAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a directory as a library",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryAdd,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered libraries",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <id|path>",
	Short: "Remove a library and all its indexed assets",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryRemove,
}

func init() {
	libraryCmd.AddCommand(libraryAddCmd)
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryRemoveCmd)
}

func runLibraryAdd(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	lib, err := m.AddLibrary(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Library registered: %s\n", lib.Path)
	fmt.Printf("  id: %s\n", lib.ID)
	fmt.Println("Run: merlian index", lib.Path)
	return nil
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	libs, err := m.Libraries()
	if err != nil {
		return err
	}
	return format.OutputLibraries(libs, getFormat())
}

func runLibraryRemove(cmd *cobra.Command, args []string) error {
	m, err := getMerlian()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.RemoveLibrary(args[0]); err != nil {
		return err
	}
	fmt.Println("Library removed.")
	return nil
}
