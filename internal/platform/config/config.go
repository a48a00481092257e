package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lendledger-backend/internal/platform/db"
)

const (
	ModeDev     = "dev"
	ModeRelease = "release"
)

type Config struct {
	Version  string            `yaml:"version" toml:"version"`
	Mode     string            `yaml:"mode" toml:"mode"`
	HTTP     HTTPConfig        `yaml:"http" toml:"http"`
	DB       db.DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig        `yaml:"auth" toml:"auth"`
	Ledger   LedgerConfig      `yaml:"ledger" toml:"ledger"`
	Sweeper  SweeperConfig     `yaml:"sweeper" toml:"sweeper"`
	Redis    RedisConfig       `yaml:"redis" toml:"redis"`
	LogLevel string            `yaml:"log_level" toml:"log_level"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr" toml:"addr"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LedgerConfig selects the on-chain registry backend.
// Type "evm" needs RPCURL and RegistryAddress; "memory" needs nothing.
type LedgerConfig struct {
	Type            string   `yaml:"type" toml:"type"`
	RPCURL          string   `yaml:"rpc_url" toml:"rpc_url"`
	RegistryAddress string   `yaml:"registry_address" toml:"registry_address"`
	ApproveTimeout  Duration `yaml:"approve_timeout" toml:"approve_timeout"`
}

type SweeperConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Interval      Duration `yaml:"interval" toml:"interval"`
	PassTimeout   Duration `yaml:"pass_timeout" toml:"pass_timeout"`
	DriftGrace    Duration `yaml:"drift_grace" toml:"drift_grace"`
	Concurrency   int      `yaml:"concurrency" toml:"concurrency"`
	RatePerSecond float64  `yaml:"rate_per_second" toml:"rate_per_second"`
	Retries       int      `yaml:"retries" toml:"retries"`
}

// RedisConfig is optional; an empty Addr keeps the sweeper lease process-local.
type RedisConfig struct {
	Addr     string   `yaml:"addr" toml:"addr"`
	Password string   `yaml:"password" toml:"password"`
	DB       int      `yaml:"db" toml:"db"`
	LockTTL  Duration `yaml:"lock_ttl" toml:"lock_ttl"`
}

// Duration decodes "30s" style strings from both YAML and TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	return &Config{
		Mode: ModeDev,
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		DB: db.DatabaseConfig{
			Driver: string(db.MySQL),
			Host:   "127.0.0.1",
			Port:   3306,
		},
		Ledger: LedgerConfig{
			Type:           "memory",
			ApproveTimeout: Duration{5 * time.Second},
		},
		Sweeper: SweeperConfig{
			Enabled:       true,
			Interval:      Duration{5 * time.Minute},
			PassTimeout:   Duration{2 * time.Minute},
			DriftGrace:    Duration{15 * time.Minute},
			Concurrency:   4,
			RatePerSecond: 10,
			Retries:       3,
		},
		Redis:    RedisConfig{LockTTL: Duration{5 * time.Minute}},
		LogLevel: "info",
	}
}

// Load reads path (.yaml/.yml or .toml) over Default(), loads a sibling .env file
// if present, then applies LENDING_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(buf), cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
		}
	default:
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
		}
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LENDING_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("LENDING_DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("LENDING_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LENDING_LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("LENDING_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LENDING_SWEEPER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse LENDING_SWEEPER_ENABLED: %w", err)
		}
		cfg.Sweeper.Enabled = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode)
	}
	if c.Mode == ModeRelease && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in release mode")
	}
	switch c.Ledger.Type {
	case "memory":
	case "evm":
		if c.Ledger.RPCURL == "" || c.Ledger.RegistryAddress == "" {
			return fmt.Errorf("ledger.rpc_url and ledger.registry_address are required for type evm")
		}
	default:
		return fmt.Errorf("unknown ledger type %q", c.Ledger.Type)
	}
	if c.Ledger.ApproveTimeout.Duration <= 0 {
		return fmt.Errorf("ledger.approve_timeout must be positive")
	}
	if c.Sweeper.Concurrency <= 0 {
		return fmt.Errorf("sweeper.concurrency must be positive")
	}
	if c.Sweeper.Interval.Duration <= 0 || c.Sweeper.PassTimeout.Duration <= 0 {
		return fmt.Errorf("sweeper.interval and sweeper.pass_timeout must be positive")
	}
	return nil
}
