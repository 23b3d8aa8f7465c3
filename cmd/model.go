package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrannas/mlflow-client/internal/config"
	"github.com/Tyrannas/mlflow-client/internal/models"
)

var logModelCmd = &cobra.Command{
	Use:   "model",
	Short: "Log a persisted model to a run",
	Long: `Log a persisted model (the pyfunc variant) to a run.
The model path is copied under the run's artifacts together with an MLmodel
metadata file recording the load entry point. In-memory frameworks can only
be logged through the library API.`,
	RunE: logModel,
}

func init() {
	logCmd.AddCommand(logModelCmd)

	logModelCmd.Flags().String("run-id", "", "Run ID to log the model to (required)")
	logModelCmd.Flags().String("path", "", "Path to the persisted model file or directory (required)")
	logModelCmd.Flags().String("load-entry-point", "", "Registered entry point that reconstructs the model (required)")
	logModelCmd.Flags().String("output-dir", "model", "Directory under the artifact root")
	logModelCmd.MarkFlagRequired("run-id")
	logModelCmd.MarkFlagRequired("path")
	logModelCmd.MarkFlagRequired("load-entry-point")
}

func logModel(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger(cfg)

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	path, _ := cmd.Flags().GetString("path")
	loadEntryPoint, _ := cmd.Flags().GetString("load-entry-point")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	run, err := runHandle(backend, cfg, runID)
	if err != nil {
		return err
	}

	desc := models.ModelDescriptor{
		Path:           path,
		Library:        models.FrameworkPyFunc,
		LoadEntryPoint: loadEntryPoint,
	}

	ctx := context.Background()
	if err := backend.LogModel(ctx, run, desc, outputDir); err != nil {
		return fmt.Errorf("failed to log model: %w", err)
	}

	fmt.Printf("Successfully logged model from %s\n", path)
	fmt.Printf("  Output dir: %s\n", outputDir)
	fmt.Printf("  Load entry point: %s\n", loadEntryPoint)

	return nil
}
