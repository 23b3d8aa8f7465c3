package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tyrannas/mlflow-client/internal/config"
	"github.com/Tyrannas/mlflow-client/internal/parser"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log parameters, metrics, artifacts, and models",
	Long:  "Log parameters, metrics, artifacts, and models to an existing run",
}

var logParamsCmd = &cobra.Command{
	Use:   "params",
	Short: "Log parameters to a run",
	Long:  "Log parameters to an existing run",
	RunE:  logParams,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logParamsCmd)

	// Params command flags
	logParamsCmd.Flags().String("run-id", "", "Run ID to log parameters to (required)")
	logParamsCmd.Flags().StringArray("param", []string{}, "Parameters in key=value format")
	logParamsCmd.Flags().String("from-file", "", "Load parameters from file (JSON/YAML)")
	logParamsCmd.MarkFlagRequired("run-id")
}

func logParams(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	logger := newLogger(cfg)

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	params, _ := cmd.Flags().GetStringArray("param")
	fromFile, _ := cmd.Flags().GetString("from-file")

	if len(params) == 0 && fromFile == "" {
		return fmt.Errorf("either --param or --from-file must be specified")
	}

	run, err := runHandle(backend, cfg, runID)
	if err != nil {
		return err
	}

	paramMap := make(map[string]string)
	for _, param := range params {
		parts := strings.SplitN(param, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid parameter format: %s (expected key=value)", param)
		}
		paramMap[parts[0]] = parts[1]
	}

	// Load parameters from file
	if fromFile != "" {
		file, err := os.Open(fromFile)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", fromFile, err)
		}
		defer file.Close()

		var fromFileMap map[string]string
		ext := strings.ToLower(filepath.Ext(fromFile))

		switch ext {
		case ".json":
			fromFileMap, err = parser.ParseJSONParams(file)
		case ".yaml", ".yml":
			fromFileMap, err = parser.ParseYAMLParams(file)
		default:
			return fmt.Errorf("unsupported file format: %s (supported: .json, .yaml, .yml)", ext)
		}

		if err != nil {
			return fmt.Errorf("failed to parse parameters file: %w", err)
		}
		for key, value := range fromFileMap {
			paramMap[key] = value
		}
	}

	ctx := context.Background()
	for key, value := range paramMap {
		if err := backend.LogParam(ctx, run, key, value); err != nil {
			return fmt.Errorf("failed to log parameter %s: %w", key, err)
		}
	}

	fmt.Printf("Successfully logged %d parameters\n", len(paramMap))
	for key, value := range paramMap {
		fmt.Printf("  %s: %s\n", key, value)
	}

	return nil
}
