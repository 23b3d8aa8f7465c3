package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tyrannas/mlflow-client/internal/config"
)

var logArtifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Log artifact to a run",
	Long: `Log a file as an artifact to a run.
The file is stored under the run's artifact root with its original filename,
inside --artifact-path when specified.`,
	Example: `  # Store a file with its original name
  mlflow-client log artifact --run-id <run-id> --file train_data.npy

  # Store a file under a sub-path
  mlflow-client log artifact --run-id <run-id> --file train_data.npy --artifact-path inputs

  # Store multiple files
  mlflow-client log artifact --run-id <run-id> --file model.cfg --file data.csv`,
	RunE: logArtifact,
}

func init() {
	logCmd.AddCommand(logArtifactCmd)

	// Artifact command flags
	logArtifactCmd.Flags().String("run-id", "", "Run ID to store artifacts for (required)")
	logArtifactCmd.Flags().StringSlice("file", []string{}, "File path to store (can be specified multiple times)")
	logArtifactCmd.Flags().String("artifact-path", "", "Sub-path under the artifact root")
	logArtifactCmd.MarkFlagRequired("run-id")
	logArtifactCmd.MarkFlagRequired("file")
}

func logArtifact(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger(cfg)

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	files, _ := cmd.Flags().GetStringSlice("file")
	artifactPath, _ := cmd.Flags().GetString("artifact-path")

	if len(files) == 0 {
		return fmt.Errorf("at least one file must be specified")
	}

	run, err := runHandle(backend, cfg, runID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	successCount := 0

	for _, filePath := range files {
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "File not found: %s\n", filePath)
			continue
		}

		if err := backend.LogArtifact(ctx, run, filePath, artifactPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store %s: %v\n", filePath, err)
			continue
		}
		successCount++
	}

	if successCount == 0 {
		return fmt.Errorf("failed to store any artifacts")
	}

	fmt.Printf("Successfully stored %d/%d artifacts\n", successCount, len(files))
	if artifactPath != "" {
		fmt.Printf("  Artifact path: %s\n", artifactPath)
	}

	return nil
}
