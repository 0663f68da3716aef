package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running reportsum server via HTTP.

These commands require a running server (reportsum serve).
Use --server to specify a custom server URL.

Examples:
  reportsum api health                    # Check server health
  reportsum api tasks submit report.pdf   # Queue a PDF on the server's disk
  reportsum api tasks upload report.pdf   # Upload and queue a local PDF
  reportsum api summaries get <task-id>   # Fetch a finished summary`,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Task commands",
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Batch commands",
}

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Completed summary commands",
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archived summary file commands",
}

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	tasksCmd.AddCommand((&endpoints.SubmitTaskEndpoint{}).Command(getServerURL))
	tasksCmd.AddCommand((&endpoints.UploadTaskEndpoint{}).Command(getServerURL))
	tasksCmd.AddCommand((&endpoints.ListTasksEndpoint{}).Command(getServerURL))
	tasksCmd.AddCommand((&endpoints.GetTaskEndpoint{}).Command(getServerURL))
	tasksCmd.AddCommand((&endpoints.CancelTaskEndpoint{}).Command(getServerURL))
	tasksCmd.AddCommand((&endpoints.TaskLLMCallsEndpoint{}).Command(getServerURL))

	batchesCmd.AddCommand((&endpoints.SubmitBatchEndpoint{}).Command(getServerURL))
	batchesCmd.AddCommand((&endpoints.BatchStatusEndpoint{}).Command(getServerURL))

	summariesCmd.AddCommand((&endpoints.ListSummariesEndpoint{}).Command(getServerURL))
	summariesCmd.AddCommand((&endpoints.GetSummaryEndpoint{}).Command(getServerURL))

	archiveCmd.AddCommand((&endpoints.ListArchiveEndpoint{}).Command(getServerURL))
	archiveCmd.AddCommand((&endpoints.GetArchiveEndpoint{}).Command(getServerURL))

	llmcallsCmd.AddCommand((&endpoints.GetLLMCallEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(tasksCmd)
	apiCmd.AddCommand(batchesCmd)
	apiCmd.AddCommand(summariesCmd)
	apiCmd.AddCommand(archiveCmd)
	apiCmd.AddCommand(llmcallsCmd)
	rootCmd.AddCommand(apiCmd)
}
