// Package cfg loads the engine configuration from a YAML file named by
// CONFIG_FILE, or from environment variables alone. Environment values
// always override file values.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"risk-engine/internal/common"
	"risk-engine/internal/ml"
	"risk-engine/internal/training"
)

type Settings struct {
	ArtifactDir    string
	DataPath       string
	ListenPort     int
	MetricsPort    int
	LogLevel       string
	ReloadInterval time.Duration // 0 disables periodic reloads
	RequestTimeout time.Duration
	VelocityWindow time.Duration
	VelocitySize   int
	StreamPing     time.Duration
	TopFactors     int
	Drift          ml.DriftConfig

	// Training holds the run settings shared by both families plus the
	// per-family member hyperparameters.
	Training training.Config
}

type ConfigFile struct {
	Server struct {
		ArtifactDir    string `yaml:"artifactDir"`
		DataPath       string `yaml:"dataPath"`
		ListenPort     int    `yaml:"listenPort"`
		MetricsPort    int    `yaml:"metricsPort"`
		LogLevel       string `yaml:"logLevel"`
		ReloadInterval string `yaml:"reloadInterval"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Scoring struct {
		VelocityWindow string `yaml:"velocityWindow"`
		VelocitySize   int    `yaml:"velocitySize"`
		StreamPing     string `yaml:"streamPing"`
		TopFactors     int    `yaml:"topFactors"`
	} `yaml:"scoring"`

	Drift    ml.DriftConfig  `yaml:"drift"`
	Training training.Config `yaml:"training"`
}

const (
	defaultRequestTimeout = 5 * time.Second
	defaultVelocityWindow = 24 * time.Hour
	defaultStreamPing     = 15 * time.Second
	defaultTopFactors     = 5
)

func defaults() Settings {
	return Settings{
		ArtifactDir:    common.DefaultArtifactDir,
		ListenPort:     common.DefaultListenPort,
		MetricsPort:    common.DefaultMetricsPort,
		LogLevel:       common.DefaultLogLevel,
		RequestTimeout: defaultRequestTimeout,
		VelocityWindow: defaultVelocityWindow,
		VelocitySize:   common.DefaultVelocitySize,
		StreamPing:     defaultStreamPing,
		TopFactors:     defaultTopFactors,
		Drift:          ml.DefaultDriftConfig(),
		Training:       training.DefaultConfig(common.FamilyFraud),
	}
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Keys missing from the file keep their defaults.
	settings := defaults()
	var config ConfigFile
	config.Training = settings.Training
	config.Drift = settings.Drift
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	s := config.Server
	settings.ArtifactDir = stringOrDefault(s.ArtifactDir, settings.ArtifactDir)
	settings.DataPath = s.DataPath
	settings.ListenPort = intOrDefault(s.ListenPort, settings.ListenPort)
	settings.MetricsPort = intOrDefault(s.MetricsPort, settings.MetricsPort)
	settings.LogLevel = stringOrDefault(s.LogLevel, settings.LogLevel)
	if settings.ReloadInterval, err = parseDuration("reloadInterval", s.ReloadInterval, settings.ReloadInterval); err != nil {
		return Settings{}, err
	}
	if settings.RequestTimeout, err = parseDuration("requestTimeout", s.RequestTimeout, settings.RequestTimeout); err != nil {
		return Settings{}, err
	}

	sc := config.Scoring
	if settings.VelocityWindow, err = parseDuration("velocityWindow", sc.VelocityWindow, settings.VelocityWindow); err != nil {
		return Settings{}, err
	}
	if settings.StreamPing, err = parseDuration("streamPing", sc.StreamPing, settings.StreamPing); err != nil {
		return Settings{}, err
	}
	settings.VelocitySize = intOrDefault(sc.VelocitySize, settings.VelocitySize)
	settings.TopFactors = intOrDefault(sc.TopFactors, settings.TopFactors)
	settings.Drift = config.Drift
	settings.Training = config.Training

	applyEnv(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := defaults()
	applyEnv(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyEnv overrides s with every environment variable that is set.
func applyEnv(s *Settings) {
	s.ArtifactDir = getEnvOrDefault(common.EnvArtifactDir, s.ArtifactDir)
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.ListenPort = getIntOrDefault(common.EnvListenPort, s.ListenPort)
	s.MetricsPort = getIntOrDefault(common.EnvMetricsPort, s.MetricsPort)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)
	s.ReloadInterval = getDurationOrDefault(common.EnvReloadInterval, s.ReloadInterval)
	s.RequestTimeout = getDurationOrDefault(common.EnvRequestTimeout, s.RequestTimeout)
	s.VelocityWindow = getDurationOrDefault(common.EnvVelocityWindow, s.VelocityWindow)
	s.VelocitySize = getIntOrDefault(common.EnvVelocitySize, s.VelocitySize)
	s.StreamPing = getDurationOrDefault(common.EnvStreamPing, s.StreamPing)
	s.TopFactors = getIntOrDefault(common.EnvTopFactors, s.TopFactors)
	s.Drift.WindowSize = getIntOrDefault(common.EnvDriftWindow, s.Drift.WindowSize)
	s.Drift.PSIThreshold = getFloatOrDefault(common.EnvDriftPSIThreshold, s.Drift.PSIThreshold)

	t := &s.Training
	t.MinSamples = getIntOrDefault(common.EnvMinTrainingSamples, t.MinSamples)
	t.CVFolds = getIntOrDefault(common.EnvCVFolds, t.CVFolds)
	t.Seed = uint64(getIntOrDefault(common.EnvRandomSeed, int(t.Seed)))
	t.SMOTEThreshold = getFloatOrDefault(common.EnvSMOTEThreshold, t.SMOTEThreshold)
	t.DecisionCut = getFloatOrDefault(common.EnvDecisionCut, t.DecisionCut)
}

// TrainingConfig returns the training run configuration for family.
func (s *Settings) TrainingConfig(family string) (training.Config, error) {
	c := s.Training
	c.Family = family
	if err := c.Validate(); err != nil {
		return training.Config{}, err
	}
	return c, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func stringOrDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func intOrDefault(v, defaultValue int) int {
	if v != 0 {
		return v
	}
	return defaultValue
}

func parseDuration(field, v string, defaultValue time.Duration) (time.Duration, error) {
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	return d, nil
}

// validateSettings performs range validation of every configuration value
func validateSettings(settings *Settings) error {
	if settings.ArtifactDir == "" {
		return fmt.Errorf("artifact directory cannot be empty")
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	// Validate ports
	if settings.ListenPort < common.MinPort || settings.ListenPort > common.MaxPort {
		return fmt.Errorf("listen port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.ListenPort)
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.MetricsPort)
	}
	if settings.ListenPort == settings.MetricsPort {
		return fmt.Errorf("listen port and metrics port must differ, both are %d", settings.ListenPort)
	}

	// Validate time durations
	if settings.ReloadInterval != 0 && (settings.ReloadInterval < 10*time.Second || settings.ReloadInterval > 24*time.Hour) {
		return fmt.Errorf("reload interval must be 0 or between 10s and 24h, got %v", settings.ReloadInterval)
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 1m, got %v", settings.RequestTimeout)
	}
	if settings.VelocityWindow < time.Minute || settings.VelocityWindow > 7*24*time.Hour {
		return fmt.Errorf("velocity window must be between 1m and 168h, got %v", settings.VelocityWindow)
	}
	if settings.StreamPing < time.Second || settings.StreamPing > 5*time.Minute {
		return fmt.Errorf("stream ping interval must be between 1s and 5m, got %v", settings.StreamPing)
	}

	// Validate integer values
	if settings.VelocitySize <= 0 || settings.VelocitySize > 100000 {
		return fmt.Errorf("velocity size must be between 1 and 100000, got %d", settings.VelocitySize)
	}
	if settings.TopFactors <= 0 || settings.TopFactors > 20 {
		return fmt.Errorf("top factors must be between 1 and 20, got %d", settings.TopFactors)
	}
	if err := settings.Drift.Validate(); err != nil {
		return err
	}

	// Both families share the run settings, so both must validate.
	for _, family := range []string{common.FamilyFraud, common.FamilyCredit} {
		if _, err := settings.TrainingConfig(family); err != nil {
			return fmt.Errorf("%s training: %w", family, err)
		}
	}

	return nil
}
