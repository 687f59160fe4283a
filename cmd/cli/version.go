package cli

import (
	"fmt"

	"growzzy/internal/handlers"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of growzzy",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\nCommit: %s\nBuildTime: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	// /health 报告同一个版本
	handlers.Version = Version
	rootCmd.AddCommand(versionCmd)
}
