package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
symbols:
  - "005930"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DRY_RUN", cfg.Mode)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://openapi.koreainvestment.com:9443", cfg.Broker.BaseURL)
	assert.Equal(t, "ws://ops.koreainvestment.com:21000", cfg.Broker.WsURL)
	assert.Equal(t, "01", cfg.Broker.ProductCode)
	assert.Equal(t, 100000.0, cfg.Account.InitialBalance)
	assert.Equal(t, 1000000.0, cfg.Risk.MaxSingleTradeAmount)
	assert.Equal(t, 0.1, cfg.Risk.PositionSizeRatio)
	assert.Equal(t, 0.02, cfg.Risk.StopLossRatio)
	assert.Equal(t, 0.05, cfg.Risk.TakeProfitRatio)
	assert.Equal(t, 5, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, "00:00", cfg.Risk.DailyReset)
	assert.Equal(t, 3, cfg.Strategy.ShortPeriod)
	assert.Equal(t, 10, cfg.Strategy.LongPeriod)
	assert.Equal(t, 0.01, cfg.Strategy.MinChangeRatio)
	assert.Equal(t, "common", cfg.Screener.Preset)
	assert.Equal(t, "logs", cfg.Tradelog.Dir)
	assert.Equal(t, 7, cfg.Tradelog.RetentionDays)
}

func TestLoadConfigExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
mode: DRY_RUN
symbols: ["000660"]
account:
  initial_balance: 5000000
risk:
  max_daily_trades: 3
  daily_reset: "09:00"
strategy:
  short_period: 5
  long_period: 20
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5000000.0, cfg.Account.InitialBalance)
	assert.Equal(t, 3, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, "09:00", cfg.Risk.DailyReset)
	assert.Equal(t, 5, cfg.Strategy.ShortPeriod)
	assert.Equal(t, 20, cfg.Strategy.LongPeriod)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad mode",
			yaml:    "mode: PAPER\nsymbols: [\"005930\"]\n",
			wantErr: "invalid mode",
		},
		{
			name:    "no symbols",
			yaml:    "mode: DRY_RUN\n",
			wantErr: "symbols cannot be empty",
		},
		{
			name:    "live without account",
			yaml:    "mode: LIVE\nsymbols: [\"005930\"]\n",
			wantErr: "account_no is required",
		},
		{
			name:    "short period too small",
			yaml:    "symbols: [\"005930\"]\nstrategy:\n  short_period: 1\n  long_period: 10\n",
			wantErr: "short_period",
		},
		{
			name:    "short not below long",
			yaml:    "symbols: [\"005930\"]\nstrategy:\n  short_period: 10\n  long_period: 10\n",
			wantErr: "less than long_period",
		},
		{
			name:    "position ratio out of range",
			yaml:    "symbols: [\"005930\"]\nrisk:\n  position_size_ratio: 1.5\n",
			wantErr: "position_size_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
