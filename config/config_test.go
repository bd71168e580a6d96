package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = "127.0.0.1:9000"
DataDir = "/tmp/orbitlen"
Authority = "admin"
ProtocolFee = "0.05"
OracleMaxAge = "45s"

[[bank]]
AssetID = "SOL"
PriceFeedRef = "SOL/USD"
AssetWeightInit = "0.8"
AssetWeightMaint = "0.9"
LiabilityWeightInit = "1.25"
LiabilityWeightMaint = "1.1"
OptimalUtilization = "0.8"
PlateauRate = "0.10"
MaxRate = "0.50"
LiquidationBonus = "0.05"

[[price]]
FeedRef = "SOL/USD"
Value = "150"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "admin", cfg.Authority)
	require.Equal(t, 45*time.Second, cfg.OracleMaxAge.Duration)
	require.Equal(t, "0.05", cfg.ProtocolFeeDecimal().String())
	require.Len(t, cfg.Banks, 1)
	require.Equal(t, "SOL", cfg.Banks[0].AssetID)
	require.Len(t, cfg.Prices, 1)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `Authority = "admin"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8545", cfg.ListenAddress)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, time.Minute, cfg.OracleMaxAge.Duration)
	require.True(t, cfg.ProtocolFeeDecimal().IsZero())
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing authority": ``,
		"bad fee":           "Authority = \"a\"\nProtocolFee = \"1.5\"",
		"duplicate bank": `Authority = "a"
[[bank]]
AssetID = "SOL"
PriceFeedRef = "SOL/USD"
[[bank]]
AssetID = "SOL"
PriceFeedRef = "SOL/USD"
`,
		"bank without feed": `Authority = "a"
[[bank]]
AssetID = "SOL"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "authority", cfg.Authority)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Reloading the generated file round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, again.ListenAddress)
}
