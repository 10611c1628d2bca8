package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sweep-cli",
	Short: "Sweeper - Run parameter sweeps across a pool of workers",
	Long: `Sweeper expands a parameter sweep into a job list and runs every job
exactly once across a pool of remote workers.

Sweeps are declared in YAML or HCL files. Each job gets one worker to itself;
a worker takes the next job as soon as its current one finishes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Credentials (S3 keys, ssh user) may live in .env
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sweep-cli",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Sweeper CLI v0.1.0")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(variantsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}
