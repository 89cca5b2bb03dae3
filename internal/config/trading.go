package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hedger/internal/models"
)

// TradingConfig - торговые определения, загружаемые из YAML
//
// Аккаунты и пары задаются декларативно и после старта не меняются.
// Ошибка валидации здесь фатальна: процесс не должен торговать
// с неполной или противоречивой конфигурацией.
type TradingConfig struct {
	Accounts []AccountConfig `yaml:"accounts"`
	Pairs    []PairConfig    `yaml:"pairs"`
	Risk     RiskConfig      `yaml:"risk"`
}

// AccountConfig - торговый аккаунт из YAML
type AccountConfig struct {
	Address             string  `yaml:"address"`
	Index               int     `yaml:"index"`
	EncryptedPrivateKey string  `yaml:"encrypted_private_key"`
	InitialBalance      float64 `yaml:"initial_balance"`
	MinBalance          float64 `yaml:"min_balance"`
	MaxDailyTrades      int     `yaml:"max_daily_trades"`
}

// PairConfig - торговая пара из YAML
type PairConfig struct {
	ID               string               `yaml:"id"`
	Name             string               `yaml:"name"`
	Market           string               `yaml:"market"`
	BaseAmount       float64              `yaml:"base_amount"`
	MaxPositions     int                  `yaml:"max_positions"`
	CooldownMinutes  int                  `yaml:"cooldown_minutes"`
	AccountAddresses []string             `yaml:"account_addresses"`
	Enabled          bool                 `yaml:"enabled"`
	TakeProfit       float64              `yaml:"take_profit"`
	StopLoss         float64              `yaml:"stop_loss"`
	MaxDailyLoss     float64              `yaml:"max_daily_loss"`
	MaxPositionSize  float64              `yaml:"max_position_size"`
	Conditions       MarketConditionsYAML `yaml:"conditions"`
}

// MarketConditionsYAML - пороги рыночных условий из YAML
type MarketConditionsYAML struct {
	MaxSpreadPct     float64 `yaml:"max_spread_pct"`
	MaxVolatilityPct float64 `yaml:"max_volatility_pct"`
	MinLiquidity     float64 `yaml:"min_liquidity"`
	MaxPriceAgeSec   int     `yaml:"max_price_age_sec"`
}

// RiskConfig - лимиты рисков из YAML
type RiskConfig struct {
	GlobalMaxDailyLoss  float64 `yaml:"global_max_daily_loss"`
	AccountMaxDailyLoss float64 `yaml:"account_max_daily_loss"`
}

// LoadTrading загружает и валидирует торговую конфигурацию из YAML файла
func LoadTrading(path string) (*TradingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trading config %s: %w", path, err)
	}

	var cfg TradingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse trading config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trading config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate проверяет согласованность торговой конфигурации
func (c *TradingConfig) Validate() error {
	if len(c.Accounts) < models.RequiredAccounts {
		return fmt.Errorf("at least %d accounts are required, got %d",
			models.RequiredAccounts, len(c.Accounts))
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, acc := range c.Accounts {
		if acc.Address == "" {
			return fmt.Errorf("account %d: address is required", i)
		}
		if seen[acc.Address] {
			return fmt.Errorf("account %d: duplicate address %s", i, acc.Address)
		}
		seen[acc.Address] = true
		if acc.EncryptedPrivateKey == "" {
			return fmt.Errorf("account %s: encrypted_private_key is required", acc.Address)
		}
		if acc.InitialBalance < 0 {
			return fmt.Errorf("account %s: initial_balance cannot be negative", acc.Address)
		}
		if acc.MinBalance < 0 {
			return fmt.Errorf("account %s: min_balance cannot be negative", acc.Address)
		}
		if acc.MaxDailyTrades < 0 {
			return fmt.Errorf("account %s: max_daily_trades cannot be negative", acc.Address)
		}
	}

	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one trading pair is required")
	}

	pairIDs := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.ID == "" {
			return fmt.Errorf("pair %d: id is required", i)
		}
		if pairIDs[p.ID] {
			return fmt.Errorf("pair %d: duplicate id %s", i, p.ID)
		}
		pairIDs[p.ID] = true

		if p.Market == "" {
			return fmt.Errorf("pair %s: market is required", p.ID)
		}
		if p.BaseAmount <= 0 {
			return fmt.Errorf("pair %s: base_amount must be positive, got %v", p.ID, p.BaseAmount)
		}
		if p.MaxPositions < 0 {
			return fmt.Errorf("pair %s: max_positions cannot be negative, got %d", p.ID, p.MaxPositions)
		}
		if p.CooldownMinutes < 0 {
			return fmt.Errorf("pair %s: cooldown_minutes cannot be negative, got %d", p.ID, p.CooldownMinutes)
		}
		if len(p.AccountAddresses) < models.RequiredAccounts {
			return fmt.Errorf("pair %s: at least %d account addresses are required, got %d",
				p.ID, models.RequiredAccounts, len(p.AccountAddresses))
		}
		for _, addr := range p.AccountAddresses {
			if !seen[addr] {
				return fmt.Errorf("pair %s: account %s is not declared in accounts", p.ID, addr)
			}
		}
		if p.MaxDailyLoss < 0 {
			return fmt.Errorf("pair %s: max_daily_loss cannot be negative, got %v", p.ID, p.MaxDailyLoss)
		}
		if p.MaxPositionSize < 0 {
			return fmt.Errorf("pair %s: max_position_size cannot be negative, got %v", p.ID, p.MaxPositionSize)
		}
		if p.Conditions.MaxSpreadPct < 0 || p.Conditions.MaxVolatilityPct < 0 ||
			p.Conditions.MinLiquidity < 0 || p.Conditions.MaxPriceAgeSec < 0 {
			return fmt.Errorf("pair %s: market condition thresholds cannot be negative", p.ID)
		}
	}

	if c.Risk.GlobalMaxDailyLoss < 0 {
		return fmt.Errorf("risk: global_max_daily_loss cannot be negative, got %v", c.Risk.GlobalMaxDailyLoss)
	}
	if c.Risk.AccountMaxDailyLoss < 0 {
		return fmt.Errorf("risk: account_max_daily_loss cannot be negative, got %v", c.Risk.AccountMaxDailyLoss)
	}

	return nil
}

// ToModel конвертирует YAML пару в модель торговой пары
func (p PairConfig) ToModel() models.PairConfig {
	return models.PairConfig{
		ID:               p.ID,
		Name:             p.Name,
		Market:           p.Market,
		BaseAmount:       p.BaseAmount,
		MaxPositions:     p.MaxPositions,
		CooldownMinutes:  p.CooldownMinutes,
		AccountAddresses: append([]string(nil), p.AccountAddresses...),
		Enabled:          p.Enabled,
		TakeProfit:       p.TakeProfit,
		StopLoss:         p.StopLoss,
		MaxDailyLoss:     p.MaxDailyLoss,
		MaxPositionSize:  p.MaxPositionSize,
		Conditions: models.MarketConditions{
			MaxSpreadPct:     p.Conditions.MaxSpreadPct,
			MaxVolatilityPct: p.Conditions.MaxVolatilityPct,
			MinLiquidity:     p.Conditions.MinLiquidity,
			MaxPriceAge:      time.Duration(p.Conditions.MaxPriceAgeSec) * time.Second,
		},
	}
}

// PairModels возвращает все пары как модели
func (c *TradingConfig) PairModels() []models.PairConfig {
	out := make([]models.PairConfig, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, p.ToModel())
	}
	return out
}
