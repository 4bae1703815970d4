package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "BOARDBANK"
	configName = "boardbank"
	configType = "toml"

	keyAddr          = "addr"
	keyDataDir       = "data_dir"
	keyDatabaseURL   = "database_url"
	keyStore         = "store"
	keyAuditEvery    = "audit_every"
	keyAuditRunOnce  = "audit_run_once"
	keyAuditMetrics  = "audit_metrics_addr"
	keyObserverQueue = "observer_queue"
	keyAPIURL        = "api_url"
	keyOutbox        = "outbox"
)

type StoreKind string

const (
	StoreFile     StoreKind = "file"
	StorePostgres StoreKind = "postgres"
)

type StoreConfig struct {
	Kind        StoreKind
	DataDir     string
	DatabaseURL string
}

type APIConfig struct {
	Addr          string
	Store         StoreConfig
	ObserverQueue int
}

// AuditConfig drives the audit worker. MetricsAddr is where it serves
// /metrics; empty disables the listener.
type AuditConfig struct {
	Store       StoreConfig
	Every       time.Duration
	RunOnce     bool
	MetricsAddr string
}

type CLIConfig struct {
	APIBaseURL string
	// OutboxPath is where actions that could not reach the API wait for
	// `bb sync`. Empty means the per-user default.
	OutboxPath string
}

func LoadAPI() (APIConfig, error) {
	v, err := newViper()
	if err != nil {
		return APIConfig{}, err
	}
	return apiFrom(v)
}

func LoadAudit() (AuditConfig, error) {
	v, err := newViper()
	if err != nil {
		return AuditConfig{}, err
	}
	return auditFrom(v)
}

func LoadCLI() CLIConfig {
	v, err := newViper()
	if err != nil {
		v = viper.New()
		setDefaults(v)
	}
	return CLIConfig{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString(keyAPIURL)), "/"),
		OutboxPath: strings.TrimSpace(v.GetString(keyOutbox)),
	}
}

// newViper reads .env (if present), then an optional boardbank.toml in the
// working directory, with BOARDBANK_* variables taking precedence.
func newViper() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyAddr, ":3000")
	v.SetDefault(keyDataDir, "./data")
	v.SetDefault(keyDatabaseURL, "")
	v.SetDefault(keyStore, "")
	v.SetDefault(keyAuditEvery, time.Minute)
	v.SetDefault(keyAuditRunOnce, false)
	v.SetDefault(keyAuditMetrics, ":9101")
	v.SetDefault(keyObserverQueue, 16)
	v.SetDefault(keyAPIURL, "http://localhost:3000")
	v.SetDefault(keyOutbox, "")
}

func apiFrom(v *viper.Viper) (APIConfig, error) {
	store, err := storeFrom(v)
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:          listenAddr(v),
		Store:         store,
		ObserverQueue: v.GetInt(keyObserverQueue),
	}
	if cfg.ObserverQueue <= 0 {
		return cfg, fmt.Errorf("%s_OBSERVER_QUEUE must be positive", envPrefix)
	}
	return cfg, nil
}

func auditFrom(v *viper.Viper) (AuditConfig, error) {
	store, err := storeFrom(v)
	if err != nil {
		return AuditConfig{}, err
	}
	cfg := AuditConfig{
		Store:       store,
		Every:       v.GetDuration(keyAuditEvery),
		RunOnce:     v.GetBool(keyAuditRunOnce),
		MetricsAddr: strings.TrimSpace(v.GetString(keyAuditMetrics)),
	}
	if cfg.Every <= 0 {
		return cfg, fmt.Errorf("%s_AUDIT_EVERY must be a positive duration", envPrefix)
	}
	return cfg, nil
}

func storeFrom(v *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		DataDir:     strings.TrimSpace(v.GetString(keyDataDir)),
		DatabaseURL: strings.TrimSpace(v.GetString(keyDatabaseURL)),
	}
	switch kind := StoreKind(strings.ToLower(strings.TrimSpace(v.GetString(keyStore)))); kind {
	case "":
		cfg.Kind = StoreFile
		if cfg.DatabaseURL != "" {
			cfg.Kind = StorePostgres
		}
	case StoreFile, StorePostgres:
		cfg.Kind = kind
	default:
		return cfg, fmt.Errorf("unknown store %q", kind)
	}
	if cfg.Kind == StorePostgres && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("%s_DATABASE_URL is required for the postgres store", envPrefix)
	}
	if cfg.Kind == StoreFile && cfg.DataDir == "" {
		return cfg, fmt.Errorf("%s_DATA_DIR is required for the file store", envPrefix)
	}
	return cfg, nil
}

// listenAddr honours a bare PORT the way hosting platforms set it.
func listenAddr(v *viper.Viper) string {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		return port
	}
	return v.GetString(keyAddr)
}
