package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Matching  MatchingConfig  `yaml:"matching" mapstructure:"matching"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DataConfig locates the metadata file and the input/output directories.
type DataConfig struct {
	MetadataPath    string `yaml:"metadata_path" mapstructure:"metadata_path"`
	DeclarationsDir string `yaml:"declarations_dir" mapstructure:"declarations_dir"`
	ResultsDir      string `yaml:"results_dir" mapstructure:"results_dir"`
	DownloadDir     string `yaml:"download_dir" mapstructure:"download_dir"`
}

// MatchingConfig configures transformation tables and mapping resolution.
type MatchingConfig struct {
	TieBreak string `yaml:"tie_break" mapstructure:"tie_break"`
	Workers  int    `yaml:"workers" mapstructure:"workers"`
}

// ReconcileConfig bounds the internal eras external datasets may match.
type ReconcileConfig struct {
	ProvinceMinYear int `yaml:"province_min_year" mapstructure:"province_min_year"`
	CountyMinYear   int `yaml:"county_min_year" mapstructure:"county_min_year"`
}

// ExportConfig configures result files.
type ExportConfig struct {
	// SkipYears is the number of leading division years left out of the
	// mapping table.
	SkipYears int `yaml:"skip_years" mapstructure:"skip_years"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// RateLimit is the sustained request rate per second; Burst the
	// bucket size. A zero rate disables limiting.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TieBreakPolicies lists the accepted matching.tie_break values.
var TieBreakPolicies = []string{"smallest_old_code", "largest_old_code"}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GDIVIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gdivir.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.metadata_path", "metadata.yaml")
	v.SetDefault("data.declarations_dir", "declarations")
	v.SetDefault("data.results_dir", "results")
	v.SetDefault("data.download_dir", "data/original")
	v.SetDefault("matching.tie_break", "smallest_old_code")
	v.SetDefault("matching.workers", 4)
	v.SetDefault("reconcile.province_min_year", 0)
	v.SetDefault("reconcile.county_min_year", 1363)
	v.SetDefault("export.skip_years", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.burst", 20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. Mode is
// one of "import", "fetch", "match", "reconcile", "versions", "export",
// "serve" or "status".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "status", "versions":
	case "import":
		if c.Data.MetadataPath == "" {
			problems = append(problems, "data.metadata_path is required")
		}
	case "fetch":
		if c.Data.MetadataPath == "" {
			problems = append(problems, "data.metadata_path is required")
		}
		if c.Data.DownloadDir == "" {
			problems = append(problems, "data.download_dir is required")
		}
	case "match":
		problems = append(problems, c.validateMatching()...)
	case "reconcile":
		if c.Data.DeclarationsDir == "" {
			problems = append(problems, "data.declarations_dir is required")
		}
		if c.Reconcile.ProvinceMinYear < 0 || c.Reconcile.CountyMinYear < 0 {
			problems = append(problems, "reconcile min years must be >= 0")
		}
		problems = append(problems, c.validateMatching()...)
	case "export":
		if c.Data.ResultsDir == "" {
			problems = append(problems, "data.results_dir is required")
		}
		if c.Export.SkipYears < 0 {
			problems = append(problems, "export.skip_years must be >= 0")
		}
		problems = append(problems, c.validateMatching()...)
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.Burst < 1) {
			problems = append(problems, "server.rate_limit must be >= 0 with a positive server.burst")
		}
		problems = append(problems, c.validateMatching()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateMatching() []string {
	var problems []string
	if !slices.Contains(TieBreakPolicies, c.Matching.TieBreak) {
		problems = append(problems, fmt.Sprintf("matching.tie_break must be one of %s", strings.Join(TieBreakPolicies, ", ")))
	}
	if c.Matching.Workers < 1 || c.Matching.Workers > 32 {
		problems = append(problems, "matching.workers must be between 1 and 32")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
