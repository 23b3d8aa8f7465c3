package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrannas/mlflow-client/internal/config"
	"github.com/Tyrannas/mlflow-client/internal/hooks"
	"github.com/Tyrannas/mlflow-client/internal/models"
)

// Valid terminal statuses for run end
var validEndStatuses = map[string]models.RunStatus{
	"success": models.RunStatusSuccess,
	"failed":  models.RunStatusFailed,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage runs",
	Long:  "Start and end tracked runs",
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new run",
	Long:  "Allocate a new run against the configured backend and notify run_started hooks",
	RunE:  runStart,
}

var runEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End a run",
	Long:  "Finalize a run's durable record and notify run_ended hooks",
	RunE:  runEnd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runEndCmd)

	// End command flags
	runEndCmd.Flags().String("run-id", "", "Run ID to end (required)")
	runEndCmd.Flags().String("status", "success", "End status (success/failed)")
	runEndCmd.Flags().String("message", "", "Failure description forwarded to run_ended hooks")
	runEndCmd.MarkFlagRequired("run-id")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger(cfg)

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	registry, hookErr := hooks.Resolve(cfg.HooksURI)
	if hookErr != nil {
		logger.Warn("hook source degraded", "uri", cfg.HooksURI, "error", hookErr)
	}

	ctx := context.Background()
	run, err := backend.StartRun(ctx, cfg.Experiment)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	dispatcher := hooks.NewDispatcher(registry, logger)
	dispatcher.Notify(ctx, hooks.EventRunStarted, run, hooks.StatusSuccess, "")

	// Output only run ID for shell scripting
	fmt.Printf("%s\n", run.ID)

	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger(cfg)

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	statusStr, _ := cmd.Flags().GetString("status")
	message, _ := cmd.Flags().GetString("message")

	status, valid := validEndStatuses[statusStr]
	if !valid {
		return fmt.Errorf("invalid status: %s (valid: success, failed)", statusStr)
	}

	run, err := runHandle(backend, cfg, runID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := backend.EndRun(ctx, run, status); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	registry, hookErr := hooks.Resolve(cfg.HooksURI)
	if hookErr != nil {
		logger.Warn("hook source degraded", "uri", cfg.HooksURI, "error", hookErr)
	}

	hookStatus := hooks.StatusSuccess
	if status == models.RunStatusFailed {
		hookStatus = hooks.StatusFailed
	}
	dispatcher := hooks.NewDispatcher(registry, logger)
	dispatcher.Notify(ctx, hooks.EventRunEnded, run, hookStatus, message)

	fmt.Printf("Run ended successfully\n")
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Printf("Status: %s\n", status)

	return nil
}
