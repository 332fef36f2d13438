package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"risk-engine/internal/common"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.ArtifactDir != common.DefaultArtifactDir {
					t.Errorf("expected default ArtifactDir, got %s", settings.ArtifactDir)
				}
				if settings.ListenPort != common.DefaultListenPort {
					t.Errorf("expected default ListenPort, got %d", settings.ListenPort)
				}
				if settings.ReloadInterval != 0 {
					t.Errorf("expected periodic reload disabled, got %v", settings.ReloadInterval)
				}
				if settings.Training.MinSamples != common.DefaultMinTrainingSamples {
					t.Errorf("expected default MinSamples, got %d", settings.Training.MinSamples)
				}
				if settings.Training.CVFolds != common.DefaultCVFolds {
					t.Errorf("expected default CVFolds, got %d", settings.Training.CVFolds)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"ARTIFACT_DIR":         "/var/lib/risk",
				"LISTEN_PORT":          "8100",
				"METRICS_PORT":         "9100",
				"LOG_LEVEL":            "debug",
				"RELOAD_INTERVAL":      "5m",
				"REQUEST_TIMEOUT":      "2s",
				"VELOCITY_WINDOW":      "12h",
				"VELOCITY_SIZE":        "64",
				"TOP_FACTORS":          "3",
				"MIN_TRAINING_SAMPLES": "500",
				"CV_FOLDS":             "3",
				"RANDOM_SEED":          "7",
				"SMOTE_THRESHOLD":      "0.2",
				"DECISION_CUT":         "0.4",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.ArtifactDir != "/var/lib/risk" {
					t.Errorf("expected ArtifactDir /var/lib/risk, got %s", settings.ArtifactDir)
				}
				if settings.ListenPort != 8100 || settings.MetricsPort != 9100 {
					t.Errorf("unexpected ports %d/%d", settings.ListenPort, settings.MetricsPort)
				}
				if settings.ReloadInterval != 5*time.Minute {
					t.Errorf("expected ReloadInterval 5m, got %v", settings.ReloadInterval)
				}
				if settings.VelocityWindow != 12*time.Hour {
					t.Errorf("expected VelocityWindow 12h, got %v", settings.VelocityWindow)
				}
				if settings.TopFactors != 3 {
					t.Errorf("expected TopFactors 3, got %d", settings.TopFactors)
				}
				tr := settings.Training
				if tr.MinSamples != 500 || tr.CVFolds != 3 || tr.Seed != 7 {
					t.Errorf("unexpected training overrides: %+v", tr)
				}
				if tr.SMOTEThreshold != 0.2 || tr.DecisionCut != 0.4 {
					t.Errorf("unexpected float overrides: %v %v", tr.SMOTEThreshold, tr.DecisionCut)
				}
			},
		},
		{
			name:    "unparseable values keep defaults",
			envVars: map[string]string{"LISTEN_PORT": "not-a-port", "RELOAD_INTERVAL": "soon"},
			validate: func(t *testing.T, settings Settings) {
				if settings.ListenPort != common.DefaultListenPort {
					t.Errorf("expected default ListenPort, got %d", settings.ListenPort)
				}
				if settings.ReloadInterval != 0 {
					t.Errorf("expected ReloadInterval 0, got %v", settings.ReloadInterval)
				}
			},
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{"LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "ports collide",
			envVars: map[string]string{"LISTEN_PORT": "9090", "METRICS_PORT": "9090"},
			wantErr: true,
		},
		{
			name:    "too few training samples",
			envVars: map[string]string{"MIN_TRAINING_SAMPLES": "3"},
			wantErr: true,
		},
		{
			name:    "too many CV folds",
			envVars: map[string]string{"CV_FOLDS": "50"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(common.EnvConfigFile, "")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	configContent := `
server:
  artifactDir: ./artifacts
  dataPath: ./data
  listenPort: 8200
  logLevel: warn
  reloadInterval: 1m
scoring:
  velocitySize: 128
  streamPing: 30s
drift:
  windowSize: 1000
  alertCooldown: 5m
training:
  minSamples: 400
  cvFolds: 0
  fraud:
    mlp:
      epochs: 20
    weights:
      logistic_regression: 0.4
      neural_network: 0.2
      random_forest: 0.3
      gmm: 0.1
  credit:
    boosting:
      trees: 50
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(common.EnvConfigFile, configPath)
	t.Setenv(common.EnvListenPort, "8300")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if settings.ArtifactDir != "./artifacts" || settings.DataPath != "./data" {
		t.Errorf("unexpected paths %s %s", settings.ArtifactDir, settings.DataPath)
	}
	if settings.ListenPort != 8300 {
		t.Errorf("expected env to override listen port, got %d", settings.ListenPort)
	}
	if settings.MetricsPort != common.DefaultMetricsPort {
		t.Errorf("expected default metrics port, got %d", settings.MetricsPort)
	}
	if settings.ReloadInterval != time.Minute {
		t.Errorf("expected ReloadInterval 1m, got %v", settings.ReloadInterval)
	}
	if settings.StreamPing != 30*time.Second || settings.VelocitySize != 128 {
		t.Errorf("unexpected scoring settings %v %d", settings.StreamPing, settings.VelocitySize)
	}

	if settings.Drift.WindowSize != 1000 || settings.Drift.AlertCooldown != 5*time.Minute {
		t.Errorf("unexpected drift settings %+v", settings.Drift)
	}
	if settings.Drift.PSIThreshold != 0.2 {
		t.Errorf("expected default drift threshold, got %v", settings.Drift.PSIThreshold)
	}

	tr := settings.Training
	if tr.MinSamples != 400 || tr.CVFolds != 0 {
		t.Errorf("unexpected training run settings: min %d, folds %d", tr.MinSamples, tr.CVFolds)
	}
	if tr.Fraud.MLP.Epochs != 20 {
		t.Errorf("expected 20 MLP epochs, got %d", tr.Fraud.MLP.Epochs)
	}
	if len(tr.Fraud.MLP.Hidden) == 0 {
		t.Error("expected unspecified MLP fields to keep their defaults")
	}
	if tr.Fraud.Weights["logistic_regression"] != 0.4 {
		t.Errorf("expected custom fraud weight, got %v", tr.Fraud.Weights)
	}
	if tr.Credit.Boosting.Trees != 50 {
		t.Errorf("expected 50 boosting trees, got %d", tr.Credit.Boosting.Trees)
	}

	fraud, err := settings.TrainingConfig(common.FamilyFraud)
	if err != nil {
		t.Fatalf("TrainingConfig(fraud) failed: %v", err)
	}
	if fraud.Family != common.FamilyFraud {
		t.Errorf("expected fraud family, got %s", fraud.Family)
	}
	credit, err := settings.TrainingConfig(common.FamilyCredit)
	if err != nil {
		t.Fatalf("TrainingConfig(credit) failed: %v", err)
	}
	if credit.Family != common.FamilyCredit {
		t.Errorf("expected credit family, got %s", credit.Family)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "server: [unclosed"},
		{"bad duration", "server:\n  requestTimeout: fast\n"},
		{"weights off by one", "training:\n  credit:\n    weights:\n      logistic_regression: 0.9\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}
			t.Setenv(common.EnvConfigFile, configPath)

			if _, err := Load(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadFromYAML_MissingFile(t *testing.T) {
	t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
