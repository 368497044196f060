package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every parameter the trading core reads at startup.
// It is treated as immutable for the process lifetime.
type Config struct {
	DataFeedURL string `json:"dataFeedUrl"`

	MaxPositionSize        float64 `json:"maxPositionSize"`
	RiskPerTrade           float64 `json:"riskPerTrade"`
	MaxDailyDrawdown       float64 `json:"maxDailyDrawdown"`
	MaxConcurrentPositions int     `json:"maxConcurrentPositions"`

	EmergencyStopLoss float64       `json:"emergencyStopLoss"`
	PositionTimeout   time.Duration `json:"positionTimeout"`

	AllowedSymbols []string           `json:"allowedSymbols"`
	BasePrices     map[string]float64 `json:"basePrices"`

	TickInterval time.Duration `json:"tickInterval"`

	AuditDir        string   `json:"auditDir"`
	ReportDir       string   `json:"reportDir"`
	StopProcesses   []string `json:"stopProcesses"`
	ProcStopTimeout time.Duration `json:"procStopTimeout"`
}

// fileConfig mirrors the JSON config layout. Durations are in seconds,
// zero values fall back to defaults.
type fileConfig struct {
	DataFeedURL            string             `json:"dataFeedUrl"`
	MaxPositionSize        float64            `json:"maxPositionSize"`
	RiskPerTrade           float64            `json:"riskPerTrade"`
	MaxDailyDrawdown       float64            `json:"maxDailyDrawdown"`
	MaxConcurrentPositions int                `json:"maxConcurrentPositions"`
	EmergencyStopLoss      float64            `json:"emergencyStopLoss"`
	PositionTimeoutSec     int                `json:"positionTimeoutSec"`
	AllowedSymbols         []string           `json:"allowedSymbols"`
	BasePrices             map[string]float64 `json:"basePrices"`
	TickIntervalMs         int                `json:"tickIntervalMs"`
	AuditDir               string             `json:"auditDir"`
	ReportDir              string             `json:"reportDir"`
	StopProcesses          []string           `json:"stopProcesses"`
	ProcStopTimeoutSec     int                `json:"procStopTimeoutSec"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataFeedURL:            "wss://stream.tradier.com/v1/markets/events",
		MaxPositionSize:        100000.0,
		RiskPerTrade:           0.02,
		MaxDailyDrawdown:       0.05,
		MaxConcurrentPositions: 10,
		EmergencyStopLoss:      0.10,
		PositionTimeout:        24 * time.Hour,
		AllowedSymbols: []string{
			"ES", "NQ", "YM", "RTY",
			"CL", "NG", "GC", "SI",
			"ZN", "ZB", "ZF", "ZT",
		},
		BasePrices: map[string]float64{
			"ES":  4485.25,
			"NQ":  15847.50,
			"CL":  82.45,
			"GC":  2045.20,
			"YM":  34567.80,
			"RTY": 2089.45,
		},
		TickInterval:    100 * time.Millisecond,
		AuditDir:        "logs",
		ReportDir:       "reports",
		StopProcesses:   []string{"automated_trading_engine"},
		ProcStopTimeout: 10 * time.Second,
	}
}

// Load reads a JSON config file over the defaults, then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return Config{}, err
		}
		cfg.apply(fc)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(fc fileConfig) {
	if fc.DataFeedURL != "" {
		c.DataFeedURL = fc.DataFeedURL
	}
	if fc.MaxPositionSize > 0 {
		c.MaxPositionSize = fc.MaxPositionSize
	}
	if fc.RiskPerTrade > 0 {
		c.RiskPerTrade = fc.RiskPerTrade
	}
	if fc.MaxDailyDrawdown > 0 {
		c.MaxDailyDrawdown = fc.MaxDailyDrawdown
	}
	if fc.MaxConcurrentPositions > 0 {
		c.MaxConcurrentPositions = fc.MaxConcurrentPositions
	}
	if fc.EmergencyStopLoss > 0 {
		c.EmergencyStopLoss = fc.EmergencyStopLoss
	}
	if fc.PositionTimeoutSec > 0 {
		c.PositionTimeout = time.Duration(fc.PositionTimeoutSec) * time.Second
	}
	if len(fc.AllowedSymbols) > 0 {
		c.AllowedSymbols = fc.AllowedSymbols
	}
	if len(fc.BasePrices) > 0 {
		c.BasePrices = fc.BasePrices
	}
	if fc.TickIntervalMs > 0 {
		c.TickInterval = time.Duration(fc.TickIntervalMs) * time.Millisecond
	}
	if fc.AuditDir != "" {
		c.AuditDir = fc.AuditDir
	}
	if fc.ReportDir != "" {
		c.ReportDir = fc.ReportDir
	}
	if len(fc.StopProcesses) > 0 {
		c.StopProcesses = fc.StopProcesses
	}
	if fc.ProcStopTimeoutSec > 0 {
		c.ProcStopTimeout = time.Duration(fc.ProcStopTimeoutSec) * time.Second
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_FEED_URL"); v != "" {
		c.DataFeedURL = v
	}
	if v, ok := envFloat("MAX_POSITION_SIZE"); ok {
		c.MaxPositionSize = v
	}
	if v, ok := envFloat("RISK_PER_TRADE"); ok {
		c.RiskPerTrade = v
	}
	if v, ok := envFloat("MAX_DAILY_DRAWDOWN"); ok {
		c.MaxDailyDrawdown = v
	}
	if v, ok := envInt("MAX_CONCURRENT_POSITIONS"); ok {
		c.MaxConcurrentPositions = v
	}
	if v, ok := envFloat("EMERGENCY_STOP_LOSS"); ok {
		c.EmergencyStopLoss = v
	}
	if v := os.Getenv("ALLOWED_SYMBOLS"); v != "" {
		parts := strings.Split(v, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			c.AllowedSymbols = symbols
		}
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("maxPositionSize must be > 0")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		return fmt.Errorf("riskPerTrade must be between 0 and 1")
	}
	if c.MaxDailyDrawdown <= 0 || c.MaxDailyDrawdown >= 1 {
		return fmt.Errorf("maxDailyDrawdown must be between 0 and 1")
	}
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("maxConcurrentPositions must be > 0")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tickInterval must be > 0")
	}
	if len(c.AllowedSymbols) == 0 {
		return fmt.Errorf("allowedSymbols must not be empty")
	}
	return nil
}

// Allowed reports whether symbol is in the configured allowlist.
func (c Config) Allowed(symbol string) bool {
	for _, s := range c.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
