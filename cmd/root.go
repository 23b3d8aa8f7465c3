package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrannas/mlflow-client/internal/config"
	"github.com/Tyrannas/mlflow-client/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "mlflow-client",
	Short: "Experiment tracking client",
	Long: `A client for tracking machine-learning experiments.
Persists run parameters, metrics, artifacts, and models either to a local
filesystem layout or to a remote MLflow tracking server, and notifies
registered webhooks at run start and end.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("backend", "", "Backend to use: auto, local, or remote")
	rootCmd.PersistentFlags().String("tracking-uri", "", "Tracking server URI (overrides MLFLOW_TRACKING_URI)")
	rootCmd.PersistentFlags().String("experiment", "", "Experiment name (overrides MLFLOW_EXPERIMENT)")
	rootCmd.PersistentFlags().String("hooks-uri", "", "Hooks source URI (overrides MLFLOW_HOOKS_URI)")
	rootCmd.PersistentFlags().String("local-root", "", "Root directory for the local backend")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug/info/warn/error)")
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("tracking_uri", rootCmd.PersistentFlags().Lookup("tracking-uri"))
	viper.BindPFlag("experiment", rootCmd.PersistentFlags().Lookup("experiment"))
	viper.BindPFlag("hooks_uri", rootCmd.PersistentFlags().Lookup("hooks-uri"))
	viper.BindPFlag("local_root", rootCmd.PersistentFlags().Lookup("local-root"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Environment variables
	viper.SetEnvPrefix("MLFLOW")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("backend", "auto")
	viper.SetDefault("experiment", "default_experiment")
	viper.SetDefault("local_root", ".")
	viper.SetDefault("time_resolution", "1m")
	viper.SetDefault("time_alignment", "floor")
	viper.SetDefault("step_mode", "auto")
	viper.SetDefault("log_format", "text")
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat)
}
