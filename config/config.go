package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	EnvHMACSecret         = "OTCD_HMAC_SECRET"
	EnvIndexerDSN         = "OTCD_INDEXER_DSN"
	EnvKeystorePassphrase = "OTCD_KEYSTORE_PASSPHRASE"
	EnvEnvironment        = "OTCD_ENV"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders        = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure       = "OTEL_EXPORTER_OTLP_INSECURE"
)

type Config struct {
	ListenAddress     string   `toml:"ListenAddress"`
	MaxConnections    int      `toml:"MaxConnections"`
	DataDir           string   `toml:"DataDir"`
	Environment       string   `toml:"Environment"`
	AdminKeystorePath string   `toml:"AdminKeystorePath"`
	RequireWhitelist  bool     `toml:"RequireWhitelist"`
	Mints             []string `toml:"Mints"`
	Pauses            []string `toml:"Pauses"`

	Fee          Fee              `toml:"fee"`
	VaultDeposit VaultDeposit     `toml:"vault_deposit"`
	Genesis      []GenesisBalance `toml:"genesis"`
	Auth         Auth             `toml:"auth"`
	RateLimit    RateLimit        `toml:"rate_limit"`
	Indexer      Indexer          `toml:"indexer"`
	Recon        Recon            `toml:"recon"`
	Sweeper      Sweeper          `toml:"sweeper"`
	Idempotency  Idempotency      `toml:"idempotency"`
	MakerQuota   MakerQuota       `toml:"maker_quota"`
	Logging      Logging          `toml:"logging"`
	Telemetry    Telemetry        `toml:"telemetry"`

	// KeystorePassphrase is only ever read from the environment.
	KeystorePassphrase string `toml:"-"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Secrets may be supplied through the environment
// instead of the file.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, Default(filepath.Dir(path))); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	cfg := Default(filepath.Dir(path))
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if strings.TrimSpace(cfg.AdminKeystorePath) == "" {
		cfg.AdminKeystorePath = filepath.Join(cfg.DataDir, "admin.keystore")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default(baseDir string) *Config {
	if baseDir == "" {
		baseDir = "."
	}
	dataDir := filepath.Join(baseDir, "otc-data")
	return &Config{
		ListenAddress:  ":8080",
		MaxConnections: 1024,
		DataDir:        dataDir,
		Environment:    "local",
		Mints:          []string{},
		Pauses:         []string{},
		Fee:            Fee{Percentage: 30},
		RateLimit:      RateLimit{RequestsPerMinute: 600, Burst: 60},
		Indexer:        Indexer{DSN: filepath.Join(dataDir, "indexer.db")},
		Recon:          Recon{OutputDir: filepath.Join(dataDir, "recon"), RunHour: 1},
		Sweeper:        Sweeper{Enabled: true, IntervalSeconds: 60, BatchSize: 100},
		Idempotency:    Idempotency{Path: filepath.Join(dataDir, "idempotency.db"), TTLSeconds: 86400},
		MakerQuota:     MakerQuota{EpochSeconds: 3600},
		Logging:        Logging{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30, Compress: true},
		Auth:           Auth{ClockSkewSeconds: 120},
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvHMACSecret)); v != "" {
		cfg.Auth.HMACSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIndexerDSN)); v != "" {
		cfg.Indexer.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnvironment)); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPHeaders)); v != "" {
		cfg.Telemetry.Headers = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPInsecure)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Insecure = parsed
		}
	}
	cfg.KeystorePassphrase = os.Getenv(EnvKeystorePassphrase)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
