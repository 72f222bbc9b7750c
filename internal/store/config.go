package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskConfig is the hot-reloadable subset of risk limits.
type RiskConfig struct {
	MaxSingleTradeAmount float64 `yaml:"max_single_trade_amount" json:"max_single_trade_amount"`
	PositionSizeRatio    float64 `yaml:"position_size_ratio" json:"position_size_ratio"`
	StopLossRatio        float64 `yaml:"stop_loss_ratio" json:"stop_loss_ratio"`
	TakeProfitRatio      float64 `yaml:"take_profit_ratio" json:"take_profit_ratio"`
	DailyLossLimit       float64 `yaml:"daily_loss_limit" json:"daily_loss_limit"`
	MaxDailyTrades       int     `yaml:"max_daily_trades" json:"max_daily_trades"`
}

func (r *RiskConfig) Validate() error {
	if r.MaxSingleTradeAmount <= 0 {
		return fmt.Errorf("risk.max_single_trade_amount must be positive, got %.2f", r.MaxSingleTradeAmount)
	}
	if r.PositionSizeRatio <= 0 || r.PositionSizeRatio > 1 {
		return fmt.Errorf("risk.position_size_ratio must be in (0,1], got %.4f", r.PositionSizeRatio)
	}
	if r.StopLossRatio <= 0 || r.StopLossRatio >= 1 {
		return fmt.Errorf("risk.stop_loss_ratio must be in (0,1), got %.4f", r.StopLossRatio)
	}
	if r.TakeProfitRatio <= 0 {
		return fmt.Errorf("risk.take_profit_ratio must be positive, got %.4f", r.TakeProfitRatio)
	}
	if r.DailyLossLimit <= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be positive, got %.2f", r.DailyLossLimit)
	}
	if r.MaxDailyTrades <= 0 {
		return fmt.Errorf("risk.max_daily_trades must be positive, got %d", r.MaxDailyTrades)
	}
	return nil
}

// StrategyConfig is the hot-reloadable subset of strategy parameters.
type StrategyConfig struct {
	ShortPeriod    int     `yaml:"short_period" json:"short_period"`
	LongPeriod     int     `yaml:"long_period" json:"long_period"`
	MinChangeRatio float64 `yaml:"min_change_ratio" json:"min_change_ratio"`
}

func (s *StrategyConfig) Validate() error {
	if s.ShortPeriod < 2 {
		return fmt.Errorf("strategy.short_period must be >= 2, got %d", s.ShortPeriod)
	}
	if s.LongPeriod < 3 {
		return fmt.Errorf("strategy.long_period must be >= 3, got %d", s.LongPeriod)
	}
	if s.ShortPeriod >= s.LongPeriod {
		return fmt.Errorf("strategy.short_period (%d) must be less than long_period (%d)", s.ShortPeriod, s.LongPeriod)
	}
	return nil
}

type Config struct {
	Mode    string   `yaml:"mode"` // DRY_RUN or LIVE
	Symbols []string `yaml:"symbols"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Broker struct {
		BaseURL     string `yaml:"base_url"`
		WsURL       string `yaml:"ws_url"`
		AccountNo   string `yaml:"account_no"`
		ProductCode string `yaml:"product_code"`
	} `yaml:"broker"`

	Account struct {
		InitialBalance float64 `yaml:"initial_balance"`
	} `yaml:"account"`

	Risk struct {
		RiskConfig `yaml:",inline"`
		DailyReset string `yaml:"daily_reset"` // "HH:MM" KST, empty disables
	} `yaml:"risk"`

	Strategy StrategyConfig `yaml:"strategy"`

	Screener struct {
		Preset  string `yaml:"preset"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"screener"`

	Tradelog struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"tradelog"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive, got %.2f", c.Account.InitialBalance)
	}
	if err := c.Risk.RiskConfig.Validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.Mode == "LIVE" && c.Broker.AccountNo == "" {
		return errors.New("broker.account_no is required in LIVE mode")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://openapi.koreainvestment.com:9443"
	}
	if c.Broker.WsURL == "" {
		c.Broker.WsURL = "ws://ops.koreainvestment.com:21000"
	}
	if c.Broker.ProductCode == "" {
		c.Broker.ProductCode = "01"
	}
	if c.Account.InitialBalance == 0 {
		c.Account.InitialBalance = 100000
	}
	if c.Risk.MaxSingleTradeAmount == 0 {
		c.Risk.MaxSingleTradeAmount = 1000000
	}
	if c.Risk.PositionSizeRatio == 0 {
		c.Risk.PositionSizeRatio = 0.1
	}
	if c.Risk.StopLossRatio == 0 {
		c.Risk.StopLossRatio = 0.02
	}
	if c.Risk.TakeProfitRatio == 0 {
		c.Risk.TakeProfitRatio = 0.05
	}
	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = 500000
	}
	if c.Risk.MaxDailyTrades == 0 {
		c.Risk.MaxDailyTrades = 5
	}
	if c.Risk.DailyReset == "" {
		c.Risk.DailyReset = "00:00"
	}
	if c.Strategy.ShortPeriod == 0 {
		c.Strategy.ShortPeriod = 3
	}
	if c.Strategy.LongPeriod == 0 {
		c.Strategy.LongPeriod = 10
	}
	if c.Strategy.MinChangeRatio == 0 {
		c.Strategy.MinChangeRatio = 0.01
	}
	if c.Screener.Preset == "" {
		c.Screener.Preset = "common"
	}
	if c.Tradelog.Dir == "" {
		c.Tradelog.Dir = "logs"
	}
	if c.Tradelog.RetentionDays == 0 {
		c.Tradelog.RetentionDays = 7
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
