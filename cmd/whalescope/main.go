// Command whalescope runs the WhaleScope backend: it supervises the Python
// analytics service, exposes the local IPC gateway for the dashboard shell,
// and offers the same operations on the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "whalescope",
	Short: "WhaleScope market analytics backend",
	Long: `WhaleScope market analytics backend.

Starts and supervises the Python analytics service, exposes the local
IPC gateway for the dashboard, and runs exports and worker scripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the whalescope version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("whalescope version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(keysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
