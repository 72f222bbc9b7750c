package screener

import (
	"fmt"
	"sort"
)

// Criteria is one set of stock-selection filters.
type Criteria struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	MinChangeRatio    float64 `json:"min_price_change_ratio"`
	MaxChangeRatio    float64 `json:"max_price_change_ratio"`
	MinPrice          float64 `json:"min_price"`
	MaxPrice          float64 `json:"max_price"`
	MinVolume         float64 `json:"min_volume"`
	MinTradeAmount    float64 `json:"min_trade_amount"`
	MaxStocks         int     `json:"max_stocks"`
	ExcludeRiskStocks bool    `json:"exclude_risk_stocks"`
}

var presets = map[string]Criteria{
	"common": {
		Name:              "common",
		Description:       "momentum plus liquidity, the widely used defaults",
		MinChangeRatio:    0.02,
		MaxChangeRatio:    0.12,
		MinPrice:          1000,
		MaxPrice:          100000,
		MinVolume:         100000,
		MinTradeAmount:    2000000000,
		MaxStocks:         10,
		ExcludeRiskStocks: true,
	},
	"conservative": {
		Name:              "conservative",
		Description:       "minimizes fill, slippage and gap risk",
		MinChangeRatio:    0.005,
		MaxChangeRatio:    0.06,
		MinPrice:          5000,
		MaxPrice:          50000,
		MinVolume:         200000,
		MinTradeAmount:    5000000000,
		MaxStocks:         5,
		ExcludeRiskStocks: true,
	},
	"aggressive": {
		Name:              "aggressive",
		Description:       "chases returns, accepts higher risk",
		MinChangeRatio:    0.03,
		MaxChangeRatio:    0.20,
		MinPrice:          1000,
		MaxPrice:          200000,
		MinVolume:         50000,
		MinTradeAmount:    1000000000,
		MaxStocks:         15,
		ExcludeRiskStocks: false,
	},
	"beginner": {
		Name:              "beginner",
		Description:       "lowest risk, large caps only",
		MinChangeRatio:    0,
		MaxChangeRatio:    0.05,
		MinPrice:          10000,
		MaxPrice:          200000,
		MinVolume:         500000,
		MinTradeAmount:    10000000000,
		MaxStocks:         3,
		ExcludeRiskStocks: true,
	},
}

// Preset returns a named filter preset.
func Preset(name string) (Criteria, error) {
	preset, ok := presets[name]
	if !ok {
		return Criteria{}, fmt.Errorf("unknown preset %q, available: %v", name, PresetNames())
	}
	return preset, nil
}

// PresetNames lists the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns every preset keyed by name.
func Presets() map[string]Criteria {
	out := make(map[string]Criteria, len(presets))
	for name, preset := range presets {
		out[name] = preset
	}
	return out
}
