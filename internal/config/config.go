// Package config assembles the runtime Config from a YAML file layered
// under environment variables, and a separate static venue→MIC reference
// table. Grounded on the teacher's internal/config/providers.go
// (YAML-plus-validate pattern, gopkg.in/yaml.v3) generalised from a
// per-provider rate/circuit table to this project's pipeline tunables.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"

	"github.com/equityagg/equityagg/internal/apperr"
)

// FailurePolicy governs what a source feed does on fatal upstream failure
// (spec.md §9's open question).
type FailurePolicy string

const (
	// FailurePolicyFatal exits the process, spec.md's default.
	FailurePolicyFatal FailurePolicy = "fatal"
	// FailurePolicyIsolate returns the error to the runner instead, isolating
	// the failure to the offending feed.
	FailurePolicyIsolate FailurePolicy = "isolate"
)

// Handle applies the configured policy to a fatal feed error.
func (p FailurePolicy) Handle(err error) error {
	if p == FailurePolicyIsolate {
		return err
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
	return nil
}

// Config is the immutable, fully-resolved runtime configuration. It is
// built once at startup by Load and passed by value to every component
// that needs it, per spec.md §9's "module-level singletons become
// explicitly constructed values" design note.
type Config struct {
	CacheDir        string
	CacheTTLMinutes int
	LogDir          string
	LogConfig       string

	DataStoreDir string // holds data_store.db and the export artifact.

	FeedConcurrency   int
	FeedFailurePolicy FailurePolicy

	EuronextBaseURL string
	LSEBaseURL      string
	XetraBaseURL    string

	RefidBaseURL     string
	RefidBatchSize   int
	RefidMaxInFlight int
	RefidAPIKey      string

	FXBaseURL string
	FXAPIKey  string

	EnrichBaseURL       string
	EnrichAuthURL       string
	EnrichTokenURL      string
	EnrichStreamCap     int
	EnrichFuzzyMinScore int

	MetricsAddr string
}

// fileConfig is the subset of Config that may be supplied by config.yaml;
// everything else is environment-only or has a fixed default.
type fileConfig struct {
	FeedConcurrency     int `yaml:"feed_concurrency"`
	RefidBatchSize      int `yaml:"refid_batch_size"`
	RefidMaxInFlight    int `yaml:"refid_max_in_flight"`
	EnrichStreamCap     int `yaml:"enrich_stream_cap"`
	EnrichFuzzyMinScore int `yaml:"enrich_fuzzy_min_score"`
}

func defaultConfig() Config {
	return Config{
		CacheDir:            "./data/cache",
		CacheTTLMinutes:     1440,
		DataStoreDir:        "./data/data_store",
		FeedConcurrency:     8,
		FeedFailurePolicy:   FailurePolicyFatal,
		EuronextBaseURL:     "https://live.euronext.com",
		LSEBaseURL:          "https://www.londonstockexchange.com",
		XetraBaseURL:        "https://www.xetra.com",
		RefidBaseURL:        "https://api.openfigi.com",
		RefidBatchSize:      100,
		RefidMaxInFlight:    10,
		FXBaseURL:           "https://api.exchangerate.host",
		EnrichBaseURL:       "https://query1.finance.yahoo.com",
		EnrichAuthURL:       "https://query2.finance.yahoo.com",
		EnrichTokenURL:      "https://fc.yahoo.com",
		EnrichStreamCap:     100,
		EnrichFuzzyMinScore: 150,
	}
}

// Load resolves a Config from an optional YAML file (configPath; ignored
// if empty or absent) layered under environment variables, which always
// win, matching spec.md §6's env contract.
func Load(configPath string) (Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, apperr.NewConfigError("config_yaml", err.Error())
			}
			if fc.FeedConcurrency > 0 {
				cfg.FeedConcurrency = fc.FeedConcurrency
			}
			if fc.RefidBatchSize > 0 {
				cfg.RefidBatchSize = fc.RefidBatchSize
			}
			if fc.RefidMaxInFlight > 0 {
				cfg.RefidMaxInFlight = fc.RefidMaxInFlight
			}
			if fc.EnrichStreamCap > 0 {
				cfg.EnrichStreamCap = fc.EnrichStreamCap
			}
			if fc.EnrichFuzzyMinScore > 0 {
				cfg.EnrichFuzzyMinScore = fc.EnrichFuzzyMinScore
			}
		} else if !os.IsNotExist(err) {
			return Config{}, apperr.NewConfigError("config_yaml", err.Error())
		}
	}

	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("CACHE_TTL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, apperr.NewConfigError("CACHE_TTL_MINUTES", "not an integer")
		}
		if n < 0 {
			return Config{}, apperr.NewConfigError("CACHE_TTL_MINUTES", "must be >= 0")
		}
		cfg.CacheTTLMinutes = n
	}
	cfg.LogDir = os.Getenv("LOG_DIR")
	cfg.LogConfig = os.Getenv("LOG_CONFIG")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("FEED_FAILURE_POLICY"); v != "" {
		switch FailurePolicy(v) {
		case FailurePolicyFatal, FailurePolicyIsolate:
			cfg.FeedFailurePolicy = FailurePolicy(v)
		default:
			return Config{}, apperr.NewConfigError("FEED_FAILURE_POLICY", "must be 'fatal' or 'isolate'")
		}
	}

	if v := os.Getenv("EURONEXT_BASE_URL"); v != "" {
		cfg.EuronextBaseURL = v
	}
	if v := os.Getenv("LSE_BASE_URL"); v != "" {
		cfg.LSEBaseURL = v
	}
	if v := os.Getenv("XETRA_BASE_URL"); v != "" {
		cfg.XetraBaseURL = v
	}
	if v := os.Getenv("REFID_BASE_URL"); v != "" {
		cfg.RefidBaseURL = v
	}
	if v := os.Getenv("FX_BASE_URL"); v != "" {
		cfg.FXBaseURL = v
	}
	if v := os.Getenv("ENRICH_BASE_URL"); v != "" {
		cfg.EnrichBaseURL = v
	}
	if v := os.Getenv("ENRICH_AUTH_URL"); v != "" {
		cfg.EnrichAuthURL = v
	}
	if v := os.Getenv("ENRICH_TOKEN_URL"); v != "" {
		cfg.EnrichTokenURL = v
	}

	cfg.RefidAPIKey = os.Getenv("REFID_API_KEY")
	cfg.FXAPIKey = os.Getenv("FX_API_KEY")

	if cfg.RefidAPIKey == "" {
		return Config{}, apperr.NewConfigError("REFID_API_KEY", "required")
	}
	if cfg.FXAPIKey == "" {
		return Config{}, apperr.NewConfigError("FX_API_KEY", "required")
	}

	return cfg, nil
}
