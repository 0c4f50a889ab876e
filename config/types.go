package config

// Fee holds the protocol fee applied when the admin is bootstrapped.
type Fee struct {
	Percentage uint64 `toml:"Percentage"`
	Wallet     string `toml:"Wallet"`
}

// VaultDeposit is the storage deposit charged to makers per open vault.
type VaultDeposit struct {
	Asset  string `toml:"Asset"`
	Amount uint64 `toml:"Amount"`
}

// GenesisBalance funds an account when the ledger is first created.
type GenesisBalance struct {
	Account string `toml:"Account"`
	Asset   string `toml:"Asset"`
	Amount  uint64 `toml:"Amount"`
}

// Auth configures bearer token verification on the HTTP API.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecret       string `toml:"HMACSecret"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
}

// RateLimit bounds per-client request throughput.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Indexer configures the relational event store. A DSN starting with
// postgres:// selects Postgres; anything else is treated as a SQLite path.
type Indexer struct {
	DSN string `toml:"DSN"`
}

// Recon configures the nightly fill reports.
type Recon struct {
	Enabled   bool   `toml:"Enabled"`
	OutputDir string `toml:"OutputDir"`
	RunHour   int    `toml:"RunHour"`
	RunMinute int    `toml:"RunMinute"`
}

// Sweeper configures the periodic expiry job.
type Sweeper struct {
	Enabled         bool `toml:"Enabled"`
	IntervalSeconds int  `toml:"IntervalSeconds"`
	BatchSize       int  `toml:"BatchSize"`
}

// Logging configures the optional rotating log file.
type Logging struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Idempotency configures replay of signed requests carrying an
// Idempotency-Key header. An empty Path disables the cache.
type Idempotency struct {
	Path       string `toml:"Path"`
	TTLSeconds int    `toml:"TTLSeconds"`
}

// MakerQuota limits offer creation per maker within a rolling epoch. Zero
// limits disable the check.
type MakerQuota struct {
	MaxOffersPerEpoch uint32 `toml:"MaxOffersPerEpoch"`
	MaxVolumePerEpoch uint64 `toml:"MaxVolumePerEpoch"`
	EpochSeconds      uint32 `toml:"EpochSeconds"`
}
