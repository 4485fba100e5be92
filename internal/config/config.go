// Package config loads and validates the radar configuration from a YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pumpswap-radar/internal/solana"
)

// Config is the full radar configuration.
type Config struct {
	Geyser  GeyserConfig  `mapstructure:"geyser"`
	AMM     AMMConfig     `mapstructure:"amm"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Holders HoldersConfig `mapstructure:"holders"`
	Storage StorageConfig `mapstructure:"storage"`
	Trading TradingConfig `mapstructure:"trading"`

	// MetricsAddr is the listen address of the /metrics and /health server.
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
}

// GeyserConfig configures the transaction stream transport.
type GeyserConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Token          string        `mapstructure:"token"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	Buffer         int           `mapstructure:"buffer"`
	DedupWindow    int           `mapstructure:"dedup_window"`
}

// AMMConfig identifies the program whose transactions are streamed.
type AMMConfig struct {
	ProgramID  string `mapstructure:"program_id"`
	Commitment string `mapstructure:"commitment"`
}

// TrackerConfig holds the analytics parameters.
type TrackerConfig struct {
	Window            time.Duration `mapstructure:"window"`
	WhaleMinBuy       float64       `mapstructure:"whale_min_buy"`
	WhaleExitBalance  float64       `mapstructure:"whale_exit_balance"`
	MaxPriceJump      float64       `mapstructure:"max_price_jump"`
	TokenSupply       float64       `mapstructure:"token_supply"`
	SOLPriceUSD       float64       `mapstructure:"sol_price_usd"`
	McapFloor         float64       `mapstructure:"mcap_floor"`
	MaxHistory        int           `mapstructure:"max_history"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// HoldersConfig configures the holder snapshot service client.
type HoldersConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects and configures the metrics history backend.
type StorageConfig struct {
	// Backend is one of "file", "postgres", "clickhouse".
	Backend       string `mapstructure:"backend"`
	Dir           string `mapstructure:"dir"`
	PostgresURL   string `mapstructure:"postgres_url"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// TradingConfig configures the optional order submission client.
type TradingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Wallet      string  `mapstructure:"wallet"`
	Amount      float64 `mapstructure:"amount"`
	Slippage    float64 `mapstructure:"slippage"`
	PriorityFee float64 `mapstructure:"priority_fee"`
	TipAmount   float64 `mapstructure:"tip_amount"`
	Unit        string  `mapstructure:"unit"`
}

// DefaultProgramID is the PumpSwap AMM program.
const DefaultProgramID = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"

// LoadConfig reads the config file at path, applies defaults and environment
// overrides (RADAR_ prefix, dots replaced with underscores), and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"geyser.ping_interval":       "15s",
		"geyser.idle_timeout":        "600s",
		"geyser.reconnect_delay":     "5s",
		"geyser.buffer":              1024,
		"geyser.dedup_window":        8192,
		"amm.program_id":             DefaultProgramID,
		"amm.commitment":             "confirmed",
		"tracker.window":             "60s",
		"tracker.whale_min_buy":      3.0,
		"tracker.whale_exit_balance": 1.0,
		"tracker.max_price_jump":     0.2,
		"tracker.token_supply":       1e9,
		"tracker.sol_price_usd":      176.0,
		"tracker.mcap_floor":         30.0,
		"tracker.max_history":        1000,
		"tracker.reconcile_interval": "20s",
		"holders.timeout":            "10s",
		"storage.backend":            "file",
		"storage.dir":                "data",
		"trading.enabled":            false,
		"trading.amount":             0.01,
		"trading.slippage":           10.0,
		"trading.unit":               "sol",
		"metrics_addr":               ":9090",
		"log_level":                  "info",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.Geyser.Endpoint == "" {
		return errors.New("missing geyser endpoint")
	}
	if err := validateURL(cfg.Geyser.Endpoint, "ws"); err != nil {
		return fmt.Errorf("geyser endpoint: %w", err)
	}
	if cfg.Geyser.PingInterval <= 0 || cfg.Geyser.IdleTimeout <= 0 || cfg.Geyser.ReconnectDelay <= 0 {
		return errors.New("geyser intervals must be positive")
	}
	if cfg.Geyser.Buffer <= 0 || cfg.Geyser.DedupWindow <= 0 {
		return errors.New("geyser buffer sizes must be positive")
	}
	if cfg.AMM.ProgramID == "" {
		return errors.New("missing amm program_id")
	}
	if err := validateTracker(&cfg.Tracker); err != nil {
		return err
	}
	if cfg.Holders.Endpoint != "" {
		if err := validateURL(cfg.Holders.Endpoint, "http"); err != nil {
			return fmt.Errorf("holders endpoint: %w", err)
		}
	}
	switch cfg.Storage.Backend {
	case "file":
		if cfg.Storage.Dir == "" {
			return errors.New("missing storage dir for file backend")
		}
	case "postgres":
		if cfg.Storage.PostgresURL == "" {
			return errors.New("missing postgres_url for postgres backend")
		}
	case "clickhouse":
		if cfg.Storage.ClickHouseDSN == "" {
			return errors.New("missing clickhouse_dsn for clickhouse backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Trading.Enabled {
		if cfg.Trading.Endpoint == "" {
			return errors.New("trading enabled but endpoint is empty")
		}
		if err := validateURL(cfg.Trading.Endpoint, "http"); err != nil {
			return fmt.Errorf("trading endpoint: %w", err)
		}
		// Orders are signed by the wallet, so it must be a real keypair
		// address, not a program-derived one.
		if !solana.ValidAddress(cfg.Trading.Wallet) {
			return fmt.Errorf("trading wallet %q is not a valid address", cfg.Trading.Wallet)
		}
	}
	return nil
}

func validateTracker(t *TrackerConfig) error {
	if t.Window <= 0 {
		return errors.New("invalid tracker window")
	}
	if t.ReconcileInterval <= 0 {
		return errors.New("invalid reconcile_interval")
	}
	if t.MaxPriceJump <= 0 {
		return errors.New("invalid max_price_jump")
	}
	if t.TokenSupply <= 0 || t.SOLPriceUSD <= 0 {
		return errors.New("token_supply and sol_price_usd must be positive")
	}
	if t.MaxHistory <= 0 {
		return errors.New("invalid max_history")
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return fmt.Errorf("URL scheme must be %s", protocol)
	}
	return nil
}
