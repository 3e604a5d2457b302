package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/merlian/merlian/internal/config"
	"github.com/merlian/merlian/internal/format"
	"github.com/merlian/merlian/pkg/merlian"
)

var (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath string

	// Version 版本号
	Version string

	// BuildTime 构建时间
	BuildTime string

	// 全局标志
	dbPath       string
	outputFormat string
)

// printUsageTree 从 cobra 命令树自动生成usage
func printUsageTree(root *cobra.Command) {
	var lines []string
	maxLen := 0

	// 收集所有命令行
	var collect func(cmd *cobra.Command, prefix string)
	collect = func(cmd *cobra.Command, prefix string) {
		for _, sub := range cmd.Commands() {
			if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
				continue
			}
			if sub.HasSubCommands() {
				collect(sub, prefix+sub.Name()+" ")
			} else {
				use := prefix + sub.Use
				if len(use) > maxLen {
					maxLen = len(use)
				}
				lines = append(lines, use+"\t"+sub.Short)
			}
		}
	}
	collect(root, root.Name()+" ")

	// 对齐输出
	fmt.Println("Usage:")
	for _, line := range lines {
		parts := strings.SplitN(line, "\t", 2)
		padding := maxLen - len(parts[0]) + 2
		if padding < 2 {
			padding = 2
		}
		fmt.Printf("  %s%s- %s\n", parts[0], strings.Repeat(" ", padding), parts[1])
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "merlian",
	Short:   "Local screenshot indexing and hybrid search",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		printUsageTree(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 全局标志
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", DefaultDBPath, "Database path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text|json|csv|md)")

	// 添加子命令
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resetCmd)

	// 版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf("merlian version %s (built %s)\n", Version, BuildTime))
}

// getMerlian 获取引擎实例（辅助函数）
func getMerlian() (*merlian.Merlian, error) {
	fileCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cfg, err := fileCfg.Resolve()
	if err != nil {
		return nil, err
	}

	// --db 优先于配置文件，MERLIAN_DB次之
	if rootCmd.PersistentFlags().Changed("db") {
		cfg.DBPath = dbPath
	} else if DefaultDBPath != "" && fileCfg.DBPath == config.DefaultConfig().DBPath {
		cfg.DBPath = DefaultDBPath
	}

	m, err := merlian.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return m, nil
}

// getFormat 解析输出格式标志
func getFormat() format.Format {
	return format.Format(outputFormat)
}
