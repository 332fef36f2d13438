package common

// Model families
const (
	FamilyFraud  = "fraud"
	FamilyCredit = "credit"
)

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvArtifactDir        = "ARTIFACT_DIR"
	EnvDataPath           = "DATA_PATH"
	EnvListenPort         = "LISTEN_PORT"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvReloadInterval     = "RELOAD_INTERVAL"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
	EnvDecisionCut        = "DECISION_CUT"
	EnvMinTrainingSamples = "MIN_TRAINING_SAMPLES"
	EnvCVFolds            = "CV_FOLDS"
	EnvRandomSeed         = "RANDOM_SEED"
	EnvSMOTEThreshold     = "SMOTE_THRESHOLD"
	EnvVelocityWindow     = "VELOCITY_WINDOW"
	EnvVelocitySize       = "VELOCITY_SIZE"
	EnvStreamPing         = "STREAM_PING_INTERVAL"
	EnvTopFactors         = "TOP_FACTORS"
	EnvDriftWindow        = "DRIFT_WINDOW"
	EnvDriftPSIThreshold  = "DRIFT_PSI_THRESHOLD"
	EnvServerURL          = "RISKD_URL"
)

// Configuration defaults
const (
	DefaultArtifactDir        = "models"
	DefaultListenPort         = 8000
	DefaultMetricsPort        = 9090
	DefaultLogLevel           = "info"
	DefaultDecisionCut        = 0.5
	DefaultMinTrainingSamples = 1000
	DefaultCVFolds            = 5
	DefaultRandomSeed         = 42
	DefaultSMOTEThreshold     = 0.1 // apply SMOTE below a 10% positive rate
	DefaultVelocitySize       = 512
	DefaultServerURL          = "http://localhost:8000"
)

// Artifact file names inside ARTIFACT_DIR
const (
	FraudArtifactFile  = "fraud_ensemble.json"
	CreditArtifactFile = "credit_ensemble.json"
	MetadataFile       = "training_metadata.json"
)

// Validation constants
const (
	MinPort            = 1024
	MaxPort            = 65535
	MinCVFolds         = 2
	MaxCVFolds         = 20
	MinTrainingSamples = 10
	WeightTolerance    = 1e-6
)
