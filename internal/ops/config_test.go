package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model/enum"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"engine": {"simulation": true, "symbols": ["BTCUSDT"]},
		"symbols": [{"name": "BTCUSDT", "qtyDecimals": 4, "minQty": 0.0001}]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, enum.ExecutionPaper, loaded.Mode)
	assert.Equal(t, "5", loaded.Engine.Interval)
	assert.Equal(t, 200, loaded.Engine.WarmupBars)
	assert.Equal(t, 1024, loaded.Engine.BusCapacity)
	assert.Equal(t, 0.50, loaded.Risk.EmergencyRatio)
	assert.Equal(t, 0.80, loaded.Risk.RecoveryRatio)
	assert.Equal(t, 0.85, loaded.Risk.RecoveryExitRatio)
	assert.Equal(t, 0.20, loaded.Risk.RecoveryCapPct)
	assert.Equal(t, 300, loaded.Risk.TrailingDelaySec)
	assert.Equal(t, "https://api.bybit.com", loaded.Exchange.BaseURL)
	assert.Equal(t, 5000, loaded.Exchange.RecvWindowMs)

	spec, ok := loaded.Symbols["BTCUSDT"]
	require.True(t, ok)
	assert.Equal(t, 4, spec.QtyDecimals)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		desc string
		body string
	}{
		{
			"no engine symbols",
			`{"engine": {"simulation": true}, "symbols": [{"name": "BTCUSDT"}]}`,
		},
		{
			"engine symbol without spec",
			`{"engine": {"simulation": true, "symbols": ["ETHUSDT"]}, "symbols": [{"name": "BTCUSDT"}]}`,
		},
		{
			"unnamed symbol spec",
			`{"engine": {"simulation": true, "symbols": ["BTCUSDT"]}, "symbols": [{"name": ""}]}`,
		},
		{
			"single-member correlation group",
			`{"engine": {"simulation": true, "symbols": ["BTCUSDT"]},
			  "symbols": [{"name": "BTCUSDT"}],
			  "risk": {"correlationGroups": [["BTCUSDT"]]}}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLiveModeRequiresCredentials(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")
	path := writeConfig(t, `{
		"engine": {"simulation": false, "symbols": ["BTCUSDT"]},
		"symbols": [{"name": "BTCUSDT"}]
	}`)

	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, enum.ExecutionReal, loaded.Mode)
	assert.Equal(t, "key", loaded.Credentials.APIKey)
}
