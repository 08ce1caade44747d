package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/strategy"
)

func validTradingConfig() TradingConfig {
	return TradingConfig{
		Symbol:            "133690",
		TotalInvestment:   decimal.NewFromInt(10000000),
		NumSplits:         40,
		ProfitTarget:      decimal.RequireFromString("1.10"),
		EmergencySellMode: strategy.EmergencyQuarter,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "133690", cfg.Trading.Symbol)
	assert.True(t, decimal.NewFromInt(10000000).Equal(cfg.Trading.TotalInvestment))
	assert.Equal(t, 40, cfg.Trading.NumSplits)
	assert.True(t, decimal.RequireFromString("1.10").Equal(cfg.Trading.ProfitTarget))
	assert.Equal(t, strategy.EmergencyQuarter, cfg.Trading.EmergencySellMode)
	assert.Equal(t, "https://mockapi.kiwoom.com", cfg.Kiwoom.BaseURL())
}

func TestValidate(t *testing.T) {
	t.Run("accepts both emergency modes", func(t *testing.T) {
		for _, mode := range []strategy.EmergencyMode{strategy.EmergencyQuarter, strategy.EmergencyWait} {
			cfg := &Config{Trading: validTradingConfig()}
			cfg.Trading.EmergencySellMode = mode
			assert.NoError(t, cfg.Validate())
		}
	})

	t.Run("rejects unknown emergency mode", func(t *testing.T) {
		cfg := &Config{Trading: validTradingConfig()}
		cfg.Trading.EmergencySellMode = "half"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EMERGENCY_SELL_MODE")
	})

	t.Run("rejects unknown mode from environment", func(t *testing.T) {
		t.Setenv("EMERGENCY_SELL_MODE", "liquidate")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("rejects non-positive splits", func(t *testing.T) {
		cfg := &Config{Trading: validTradingConfig()}
		cfg.Trading.NumSplits = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects profit target at or below 1", func(t *testing.T) {
		cfg := &Config{Trading: validTradingConfig()}
		cfg.Trading.ProfitTarget = decimal.NewFromInt(1)
		require.Error(t, cfg.Validate())
	})
}
