package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig holds build worker configuration. Values come from an optional YAML file
// (WORKER_CONFIG_FILE), then environment variables, then flags.
type WorkerConfig struct {
	ControllerURL    string        `yaml:"controller_url"`
	Token            string        `yaml:"token"`
	CACertFile       string        `yaml:"ca_cert_file"`
	CheckInterval    time.Duration `yaml:"check_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	LeaseAttempts    int           `yaml:"lease_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	AllowSourcesOnly bool          `yaml:"allow_sources_only"`
	WorkDir          string        `yaml:"work_dir"`
	DataDir          string        `yaml:"data_dir"`
	CheckoutCommand  string        `yaml:"checkout_command"`
	BuildCommand     string        `yaml:"build_command"`
	ArtifactPath     string        `yaml:"artifact_path"`
	SourcesPath      string        `yaml:"sources_path"`
	SourcesExclude   []string      `yaml:"sources_exclude"`
	LogLevel         string        `yaml:"log_level"`
}

const (
	defaultControllerURL  = "http://127.0.0.1:8080"
	defaultCheckInterval  = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultLeaseAttempts  = 5
	defaultBackoffBase    = time.Second
	defaultBackoffMax     = 60 * time.Second
	defaultWorkDir        = "data/tmp"
	defaultDataDir        = "data"
	defaultArtifactPath   = "app.apk"
	defaultSourcesPath    = "sources"
)

func defaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		ControllerURL:  defaultControllerURL,
		CheckInterval:  defaultCheckInterval,
		RequestTimeout: defaultRequestTimeout,
		LeaseAttempts:  defaultLeaseAttempts,
		BackoffBase:    defaultBackoffBase,
		BackoffMax:     defaultBackoffMax,
		WorkDir:        defaultWorkDir,
		DataDir:        defaultDataDir,
		ArtifactPath:   defaultArtifactPath,
		SourcesPath:    defaultSourcesPath,
		SourcesExclude: []string{".git"},
		LogLevel:       defaultLogLevel,
	}
}

// LoadWorker parses build worker configuration.
func LoadWorker() (*WorkerConfig, error) {
	return loadWorker(os.Args[1:], os.LookupEnv)
}

func loadWorker(args []string, lookup envLookup) (*WorkerConfig, error) {
	cfg := defaultWorkerConfig()

	if path, ok := lookup("WORKER_CONFIG_FILE"); ok && path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read worker config: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("decode worker config: %w", err)
		}
	}

	cfg.ControllerURL = getString(lookup, "WORKER_CONTROLLER_URL", cfg.ControllerURL)
	cfg.Token = getString(lookup, "WORKER_JWT", cfg.Token)
	cfg.CACertFile = getString(lookup, "WORKER_CA_CERT_FILE", cfg.CACertFile)
	cfg.CheckInterval = getDuration(lookup, "WORKER_CHECK_INTERVAL", cfg.CheckInterval)
	cfg.RequestTimeout = getDuration(lookup, "WORKER_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.LeaseAttempts = getInt(lookup, "WORKER_LEASE_ATTEMPTS", cfg.LeaseAttempts)
	cfg.AllowSourcesOnly = getBool(lookup, "ALLOW_BUILD_SOURCES_ONLY", cfg.AllowSourcesOnly)
	cfg.WorkDir = getString(lookup, "TMP_DIR", cfg.WorkDir)
	cfg.DataDir = getString(lookup, "DATA_DIR", cfg.DataDir)
	cfg.CheckoutCommand = getString(lookup, "BUILD_CHECKOUT_COMMAND", cfg.CheckoutCommand)
	cfg.BuildCommand = getString(lookup, "BUILD_COMMAND", cfg.BuildCommand)
	cfg.ArtifactPath = getString(lookup, "BUILD_ARTIFACT_PATH", cfg.ArtifactPath)
	cfg.SourcesPath = getString(lookup, "BUILD_SOURCES_PATH", cfg.SourcesPath)
	if exclude := getList(lookup, "BUILD_SOURCES_EXCLUDE"); exclude != nil {
		cfg.SourcesExclude = exclude
	}
	cfg.LogLevel = getString(lookup, "LOG_LEVEL", cfg.LogLevel)

	fs := flag.NewFlagSet("build-worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	checkStr := cfg.CheckInterval.String()
	fs.StringVar(&cfg.ControllerURL, "controller", cfg.ControllerURL, "Controller base URL")
	fs.StringVar(&checkStr, "check-interval", checkStr, "Interval between controller polls")
	fs.BoolVar(&cfg.AllowSourcesOnly, "sources-only", cfg.AllowSourcesOnly, "Also serve sources-only orders")
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Directory for per-order working trees")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error
	if cfg.CheckInterval, err = time.ParseDuration(checkStr); err != nil {
		return nil, fmt.Errorf("invalid check interval: %w", err)
	}

	if cfg.Token, err = readSecretFile(lookup, "WORKER_JWT_FILE", cfg.Token); err != nil {
		return nil, err
	}

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	if cfg.LeaseAttempts <= 0 {
		cfg.LeaseAttempts = defaultLeaseAttempts
	}

	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = defaultBackoffMax
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("worker token must be provided")
	}

	if cfg.BuildCommand == "" {
		return nil, fmt.Errorf("build command must be provided")
	}

	return cfg, nil
}
