package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

var runCmd = &cobra.Command{
	Use:   "run <file.pdf>...",
	Short: "Summarize PDFs locally without starting the server",
	Long: `Run processes the given PDFs through the same task workers the server
uses, waits for every task to finish and prints the tasks.

Logs go to stderr so the output stays machine readable.

Examples:
  reportsum run shift_report.pdf
  reportsum run -o json reports/*.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildServices(os.Stderr)
		if err != nil {
			return err
		}
		manager := env.services.Tasks

		ctx, cancel := context.WithCancel(cmd.Context())
		defer func() {
			cancel()
			manager.Shutdown()
		}()
		manager.Start(ctx)

		inputs := make([]tasks.Input, len(args))
		for i, a := range args {
			abs, err := filepath.Abs(a)
			if err != nil {
				return err
			}
			inputs[i] = tasks.Input{Path: abs}
		}
		_, submitted, err := manager.SubmitBatch(inputs)
		if err != nil {
			return err
		}

		results := make([]tasks.Task, 0, len(submitted))
		failed := 0
		for _, t := range submitted {
			done, err := manager.Wait(ctx, t.ID)
			if err != nil {
				return err
			}
			if done.State == tasks.StateFailed {
				failed++
			}
			results = append(results, done)
		}

		if err := api.Output(results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reports failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
