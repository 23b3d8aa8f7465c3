package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Valid configuration values
var (
	validBackends = map[string]bool{
		"auto": true, "local": true, "remote": true,
	}
	validTimeResolutions = map[string]bool{
		"1m": true, "5m": true, "1h": true,
	}
	validTimeAlignments = map[string]bool{
		"floor": true, "ceil": true, "round": true,
	}
	validStepModes = map[string]bool{
		"auto": true, "timestamp": true, "sequence": true,
	}
)

type Config struct {
	Backend        string
	BackendURI     string
	TrackingURI    string
	Experiment     string
	HooksURI       string
	LocalRoot      string
	TimeResolution string
	TimeAlignment  string
	StepMode       string
	LogLevel       string
	LogFormat      string
}

func New() *Config {
	return &Config{
		Backend:        viper.GetString("backend"),
		BackendURI:     viper.GetString("backend_uri"),
		TrackingURI:    viper.GetString("tracking_uri"),
		Experiment:     viper.GetString("experiment"),
		HooksURI:       viper.GetString("hooks_uri"),
		LocalRoot:      viper.GetString("local_root"),
		TimeResolution: viper.GetString("time_resolution"),
		TimeAlignment:  viper.GetString("time_alignment"),
		StepMode:       viper.GetString("step_mode"),
		LogLevel:       viper.GetString("log_level"),
		LogFormat:      viper.GetString("log_format"),
	}
}

func (c *Config) Validate() error {
	if !validBackends[c.Backend] {
		return fmt.Errorf("invalid backend: %s (valid: auto, local, remote)", c.Backend)
	}

	if c.Backend == "remote" && c.BackendURI == "" && c.TrackingURI == "" {
		return fmt.Errorf("remote backend requires a tracking URI (--tracking-uri or MLFLOW_TRACKING_URI)")
	}

	// Validate time resolution
	if !validTimeResolutions[c.TimeResolution] {
		return fmt.Errorf("invalid time resolution: %s (valid: 1m, 5m, 1h)", c.TimeResolution)
	}

	// Validate time alignment
	if !validTimeAlignments[c.TimeAlignment] {
		return fmt.Errorf("invalid time alignment: %s (valid: floor, ceil, round)", c.TimeAlignment)
	}

	// Validate step mode
	if !validStepModes[c.StepMode] {
		return fmt.Errorf("invalid step mode: %s (valid: auto, timestamp, sequence)", c.StepMode)
	}

	return nil
}

// RemoteURI returns the tracking endpoint for the remote backend, preferring
// the explicit backend URI over the shared tracking URI.
func (c *Config) RemoteURI() string {
	if c.BackendURI != "" {
		return c.BackendURI
	}
	return c.TrackingURI
}
