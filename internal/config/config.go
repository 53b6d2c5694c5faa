package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Artifact backends.
const (
	ArtifactFS    = "fs"
	ArtifactMinIO = "minio"
)

// MinIOConfig describes the object storage used for build artifacts.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Config holds controller and reconciler configuration loaded from environment and flags.
type Config struct {
	RunAddress        string
	StoreDriver       string
	DatabaseURI       string
	SQLitePath        string
	JWTSecret         string
	UserIDHashSalt    string
	TrustedProxies    []string
	LogLevel          string
	ArtifactBackend   string
	ArtifactDir       string
	MinIO             MinIOConfig
	NATSURL           string
	NATSSubjectPrefix string
	MaxUploadSize     int64
	OfflineThreshold  time.Duration
	ReconcileInterval time.Duration
	StatsRetention    time.Duration
	FinishedRetention time.Duration
	ShutdownTimeout   time.Duration

	// FailedBuildsAllowed is the number of failed builds a user may have before
	// each further failure lowers the priority of new orders.
	FailedBuildsAllowed int
}

const (
	defaultRunAddress        = ":8080"
	defaultStoreDriver       = StorePostgres
	defaultSQLitePath        = "apk-customizer.db"
	defaultJWTSecret         = "change-me-in-production"
	defaultLogLevel          = "info"
	defaultArtifactBackend   = ArtifactFS
	defaultArtifactDir       = "data/artifacts"
	defaultMinIOBucket       = "apk-artifacts"
	defaultNATSSubjectPrefix = "orders.status"
	defaultMaxUploadSize     = 200 << 20
	defaultOfflineThreshold  = 60 * time.Second
	defaultReconcileInterval = 10 * time.Second
	defaultStatsRetention    = 30 * 24 * time.Hour
	defaultFinishedRetention = 7 * 24 * time.Hour
	defaultShutdownTimeout   = 10 * time.Second
	defaultFailedBuilds      = 3
)

// Load parses configuration from flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

// FromEnv parses configuration from environment variables only.
func FromEnv() (*Config, error) {
	return load(nil, os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:        getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		StoreDriver:       getString(lookup, "STORE_DRIVER", defaultStoreDriver),
		DatabaseURI:       getString(lookup, "DATABASE_URI", ""),
		SQLitePath:        getString(lookup, "SQLITE_PATH", defaultSQLitePath),
		JWTSecret:         getString(lookup, "JWT_SECRET", defaultJWTSecret),
		UserIDHashSalt:    getString(lookup, "USER_ID_HASH_SALT", ""),
		TrustedProxies:    getList(lookup, "TRUSTED_PROXIES"),
		LogLevel:          getString(lookup, "LOG_LEVEL", defaultLogLevel),
		ArtifactBackend:   getString(lookup, "ARTIFACT_BACKEND", defaultArtifactBackend),
		ArtifactDir:       getString(lookup, "ARTIFACT_DIR", defaultArtifactDir),
		NATSURL:           getString(lookup, "NATS_URL", ""),
		NATSSubjectPrefix: getString(lookup, "NATS_SUBJECT_PREFIX", defaultNATSSubjectPrefix),
		MaxUploadSize:     int64(getInt(lookup, "MAX_UPLOAD_SIZE", defaultMaxUploadSize)),
		OfflineThreshold:  getDuration(lookup, "WORKER_OFFLINE_AFTER", defaultOfflineThreshold),
		ReconcileInterval: getDuration(lookup, "RECONCILE_INTERVAL", defaultReconcileInterval),
		StatsRetention:    getDuration(lookup, "USER_BUILD_STATS_RETENTION", defaultStatsRetention),
		FinishedRetention: getDuration(lookup, "FINISHED_ORDER_RETENTION", defaultFinishedRetention),
		ShutdownTimeout:   getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		MinIO: MinIOConfig{
			Endpoint:  getString(lookup, "MINIO_ENDPOINT", ""),
			AccessKey: getString(lookup, "MINIO_ACCESS_KEY", ""),
			SecretKey: getString(lookup, "MINIO_SECRET_KEY", ""),
			Bucket:    getString(lookup, "MINIO_BUCKET", defaultMinIOBucket),
			UseSSL:    getBool(lookup, "MINIO_USE_SSL", false),
		},
	}

	cfg.FailedBuildsAllowed = getInt(lookup, "FAILED_BUILD_COUNT_ALLOWED", defaultFailedBuilds)

	fs := flag.NewFlagSet("apk-customizer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		offlineStr   = cfg.OfflineThreshold.String()
		reconcileStr = cfg.ReconcileInterval.String()
		shutdownStr  = cfg.ShutdownTimeout.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Order store driver (postgres or sqlite)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for signing bearer tokens")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.ArtifactBackend, "artifacts", cfg.ArtifactBackend, "Artifact backend (fs or minio)")
	fs.StringVar(&cfg.ArtifactDir, "artifact-dir", cfg.ArtifactDir, "Directory for build artifacts")
	fs.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL for status events")
	fs.StringVar(&offlineStr, "offline-after", offlineStr, "Worker offline threshold")
	fs.StringVar(&reconcileStr, "reconcile-interval", reconcileStr, "Interval between reconciliation passes")
	fs.StringVar(&shutdownStr, "shutdown-timeout", shutdownStr, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.OfflineThreshold, err = time.ParseDuration(offlineStr); err != nil {
		return nil, fmt.Errorf("invalid offline threshold: %w", err)
	}

	if cfg.ReconcileInterval, err = time.ParseDuration(reconcileStr); err != nil {
		return nil, fmt.Errorf("invalid reconcile interval: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if cfg.JWTSecret, err = readSecretFile(lookup, "JWT_SECRET_FILE", cfg.JWTSecret); err != nil {
		return nil, err
	}

	if cfg.UserIDHashSalt, err = readSecretFile(lookup, "USER_ID_HASH_SALT_FILE", cfg.UserIDHashSalt); err != nil {
		return nil, err
	}

	if cfg.MinIO.SecretKey, err = readSecretFile(lookup, "MINIO_SECRET_KEY_FILE", cfg.MinIO.SecretKey); err != nil {
		return nil, err
	}

	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = defaultOfflineThreshold
	}

	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}

	if cfg.StatsRetention <= 0 {
		cfg.StatsRetention = defaultStatsRetention
	}

	if cfg.FinishedRetention <= 0 {
		cfg.FinishedRetention = defaultFinishedRetention
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.FailedBuildsAllowed < 0 {
		cfg.FailedBuildsAllowed = defaultFailedBuilds
	}

	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURI == "" {
			return nil, fmt.Errorf("database URI must be provided")
		}
	case StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.ArtifactBackend {
	case ArtifactFS:
	case ArtifactMinIO:
		if cfg.MinIO.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint must be provided")
		}
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}

	return cfg, nil
}

func readSecretFile(lookup envLookup, key, current string) (string, error) {
	path, ok := lookup(key)
	if !ok || path == "" {
		return current, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(key), err)
	}
	return strings.TrimSpace(string(content)), nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(lookup envLookup, key string, def bool) bool {
	if v, ok := lookup(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getList(lookup envLookup, key string) []string {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
