package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "reportsum",
	Short: "Summarize PDF operational reports with a language model",
	Long: `reportsum turns PDF operational reports (shift logs, production
reports) into structured summaries.

Each report goes through:
  - Text and table extraction from the PDF
  - Merging into a page-ordered document
  - Chunking within a token budget
  - Model summarization, map-reduce for long reports
  - Archiving the summary as JSON`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.reportsum/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "reportsum home directory (default: ~/.reportsum)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
