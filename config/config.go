package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	LogPath       string `toml:"LogPath"`
	Environment   string `toml:"Environment"`

	// Authority is the principal allowed to create and reconfigure banks.
	Authority string `toml:"Authority"`
	// ProtocolFee is the fraction of borrow interest withheld from
	// depositors, e.g. "0.05".
	ProtocolFee string `toml:"ProtocolFee"`
	// OracleMaxAge is the default staleness budget for price feeds.
	OracleMaxAge Duration `toml:"OracleMaxAge"`
	// VenueReceiptAsset enables the external liquidity venue and names the
	// receipt asset it mints. Empty disables external deposits.
	VenueReceiptAsset string `toml:"VenueReceiptAsset"`

	Banks  []BankSeed  `toml:"bank"`
	Prices []PriceSeed `toml:"price"`
}

// BankSeed declares a bank the node creates at startup if missing.
type BankSeed struct {
	AssetID              string   `toml:"AssetID"`
	PriceFeedRef         string   `toml:"PriceFeedRef"`
	AssetWeightInit      string   `toml:"AssetWeightInit"`
	AssetWeightMaint     string   `toml:"AssetWeightMaint"`
	LiabilityWeightInit  string   `toml:"LiabilityWeightInit"`
	LiabilityWeightMaint string   `toml:"LiabilityWeightMaint"`
	OptimalUtilization   string   `toml:"OptimalUtilization"`
	PlateauRate          string   `toml:"PlateauRate"`
	MaxRate              string   `toml:"MaxRate"`
	LiquidationBonus     string   `toml:"LiquidationBonus"`
	OracleMaxAge         Duration `toml:"OracleMaxAge"`
	// VenueRate is the receipt tokens minted per unit routed to the external
	// venue. Empty means the venue does not accept this asset.
	VenueRate string `toml:"VenueRate"`
}

// PriceSeed publishes a static price at startup, used for local development.
type PriceSeed struct {
	FeedRef string `toml:"FeedRef"`
	Value   string `toml:"Value"`
}

// Duration wraps time.Duration so TOML accepts "30s" style values.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "0.0.0.0:8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.ProtocolFee) == "" {
		c.ProtocolFee = "0"
	}
	if c.OracleMaxAge.Duration <= 0 {
		c.OracleMaxAge.Duration = time.Minute
	}
}

// Validate checks the fields the node cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Authority) == "" {
		return fmt.Errorf("config: Authority must be set")
	}
	fee, err := decimal.NewFromString(c.ProtocolFee)
	if err != nil {
		return fmt.Errorf("config: ProtocolFee: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: ProtocolFee must be in [0, 1)")
	}
	seen := make(map[string]struct{}, len(c.Banks))
	for i, seed := range c.Banks {
		id := strings.TrimSpace(seed.AssetID)
		if id == "" {
			return fmt.Errorf("config: bank %d: AssetID must be set", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: bank %s declared twice", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(seed.PriceFeedRef) == "" {
			return fmt.Errorf("config: bank %s: PriceFeedRef must be set", id)
		}
	}
	return nil
}

// ProtocolFeeDecimal parses the configured fee. Validate must have passed.
func (c *Config) ProtocolFeeDecimal() decimal.Decimal {
	fee, err := decimal.NewFromString(c.ProtocolFee)
	if err != nil {
		return decimal.Zero
	}
	return fee
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: "0.0.0.0:8545",
		DataDir:       "./data",
		Environment:   "dev",
		Authority:     "authority",
		ProtocolFee:   "0",
		OracleMaxAge:  Duration{Duration: time.Minute},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
