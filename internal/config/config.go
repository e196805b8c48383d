package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode         string `yaml:"mode"`
	CycleMinutes int    `yaml:"cycle_minutes"`

	Universe struct {
		Stocks        []string `yaml:"stocks"`
		Crypto        []string `yaml:"crypto"`
		International []string `yaml:"international"`
		Benchmark     string   `yaml:"benchmark"`
	} `yaml:"universe"`

	Thresholds struct {
		LongEntry  float64 `yaml:"long_entry"`
		LongExit   float64 `yaml:"long_exit"`
		ShortEntry float64 `yaml:"short_entry"`
		ShortExit  float64 `yaml:"short_exit"`
		// Cheap screen applied before the weighted short scorer runs.
		ShortPrefilter  float64 `yaml:"short_prefilter"`
		ShortConfidence float64 `yaml:"short_confidence"`
	} `yaml:"thresholds"`

	Risk struct {
		MaxShortPositions    int     `yaml:"max_short_positions"`
		ShortExposureFrac    float64 `yaml:"short_exposure_frac"`
		CryptoCapital        float64 `yaml:"crypto_capital"`
		StockCapital         float64 `yaml:"stock_capital"`
		UptrendGuardPct      float64 `yaml:"uptrend_guard_pct"`
		EmergencyLossPct     float64 `yaml:"emergency_loss_pct"`
		EmergencyMinBreaches int     `yaml:"emergency_min_breaches"`
		PositionNotional     float64 `yaml:"position_notional"`
		// Minimum 24h volume for a crypto symbol to be shortable.
		ShortMinVolume float64 `yaml:"short_min_volume"`
		// Cycles of benchmark history behind the uptrend guard.
		UptrendLookback int `yaml:"uptrend_lookback"`
	} `yaml:"risk"`

	Stops struct {
		CryptoShort StopPair `yaml:"crypto_short"`
		CryptoLong  StopPair `yaml:"crypto_long"`
		StockLong   StopPair `yaml:"stock_long"`
	} `yaml:"stops"`

	Scan struct {
		BatchSize      int     `yaml:"batch_size"`
		PerMinute      int     `yaml:"per_minute"`
		PerHour        int     `yaml:"per_hour"`
		FetchRetries   int     `yaml:"fetch_retries"`
		FetchWorkers   int     `yaml:"fetch_workers"`
		Tier1ChangePct float64 `yaml:"tier1_change_pct"`
		// How long one lower-tier batch may wait on the rate budget
		// before its symbols are deferred to the next cycle.
		BatchWaitSec int `yaml:"batch_wait_sec"`
		// Consecutive fetch failures on an open position before a
		// HIGH alert is raised.
		StaleAlertCycles int `yaml:"stale_alert_cycles"`
	} `yaml:"scan"`

	Sentiment struct {
		Enabled bool     `yaml:"enabled"`
		Sources []string `yaml:"sources"`
	} `yaml:"sentiment"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	TxLog struct {
		Dir            string `yaml:"dir"`
		CompressAfterD int    `yaml:"compress_after_days"`
	} `yaml:"txlog"`
}

// StopPair is the stop-loss / take-profit percentage pair for one
// (instrument type, side) combination. Both are positive magnitudes;
// direction is derived from the side.
type StopPair struct {
	StopPct float64 `yaml:"stop_pct"`
	TakePct float64 `yaml:"take_pct"`
}

func (c *Config) Validate() error {
	if c.Mode != "PAPER" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if len(c.Universe.Stocks) == 0 && len(c.Universe.Crypto) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.Thresholds.LongEntry <= c.Thresholds.LongExit {
		return fmt.Errorf("thresholds: long_entry (%.1f) must exceed long_exit (%.1f)",
			c.Thresholds.LongEntry, c.Thresholds.LongExit)
	}
	if c.Thresholds.ShortEntry >= c.Thresholds.ShortExit {
		return fmt.Errorf("thresholds: short_entry (%.1f) must be below short_exit (%.1f)",
			c.Thresholds.ShortEntry, c.Thresholds.ShortExit)
	}
	if c.Thresholds.ShortConfidence < 0 || c.Thresholds.ShortConfidence > 1 {
		return fmt.Errorf("thresholds: short_confidence must be in [0,1], got %.2f", c.Thresholds.ShortConfidence)
	}
	if c.Risk.MaxShortPositions <= 0 {
		return fmt.Errorf("risk: max_short_positions must be positive, got %d", c.Risk.MaxShortPositions)
	}
	if c.Risk.ShortExposureFrac <= 0 || c.Risk.ShortExposureFrac > 1 {
		return fmt.Errorf("risk: short_exposure_frac must be in (0,1], got %.2f", c.Risk.ShortExposureFrac)
	}
	for name, sp := range map[string]StopPair{
		"crypto_short": c.Stops.CryptoShort,
		"crypto_long":  c.Stops.CryptoLong,
		"stock_long":   c.Stops.StockLong,
	} {
		if sp.StopPct <= 0 || sp.TakePct <= 0 {
			return fmt.Errorf("stops.%s: stop_pct and take_pct must be positive", name)
		}
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan: batch_size must be positive, got %d", c.Scan.BatchSize)
	}
	if c.Scan.PerMinute <= 0 || c.Scan.PerHour <= 0 {
		return errors.New("scan: per_minute and per_hour budgets must be positive")
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
	ApplyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// ApplyDefaults fills the documented default for every tunable left unset.
func ApplyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "PAPER"
	}
	if c.CycleMinutes == 0 {
		c.CycleMinutes = 30
	}
	if c.Universe.Benchmark == "" {
		c.Universe.Benchmark = "BTC-USD"
	}
	if c.Thresholds.LongEntry == 0 {
		c.Thresholds.LongEntry = 8.0
	}
	if c.Thresholds.LongExit == 0 {
		c.Thresholds.LongExit = 4.0
	}
	if c.Thresholds.ShortEntry == 0 {
		c.Thresholds.ShortEntry = 2.0
	}
	if c.Thresholds.ShortExit == 0 {
		c.Thresholds.ShortExit = 3.0
	}
	if c.Thresholds.ShortPrefilter == 0 {
		c.Thresholds.ShortPrefilter = 3.5
	}
	if c.Thresholds.ShortConfidence == 0 {
		c.Thresholds.ShortConfidence = 0.70
	}
	if c.Risk.MaxShortPositions == 0 {
		c.Risk.MaxShortPositions = 3
	}
	if c.Risk.ShortExposureFrac == 0 {
		c.Risk.ShortExposureFrac = 0.15
	}
	if c.Risk.CryptoCapital == 0 {
		c.Risk.CryptoCapital = 100000
	}
	if c.Risk.StockCapital == 0 {
		c.Risk.StockCapital = 100000
	}
	if c.Risk.UptrendGuardPct == 0 {
		c.Risk.UptrendGuardPct = 2.0
	}
	if c.Risk.EmergencyLossPct == 0 {
		c.Risk.EmergencyLossPct = 3.0
	}
	if c.Risk.EmergencyMinBreaches == 0 {
		c.Risk.EmergencyMinBreaches = 2
	}
	if c.Risk.PositionNotional == 0 {
		c.Risk.PositionNotional = 5000
	}
	if c.Risk.ShortMinVolume == 0 {
		c.Risk.ShortMinVolume = 10_000_000
	}
	if c.Risk.UptrendLookback == 0 {
		c.Risk.UptrendLookback = 48
	}
	if c.Stops.CryptoShort == (StopPair{}) {
		c.Stops.CryptoShort = StopPair{StopPct: 8, TakePct: 5}
	}
	if c.Stops.CryptoLong == (StopPair{}) {
		c.Stops.CryptoLong = StopPair{StopPct: 7, TakePct: 15}
	}
	if c.Stops.StockLong == (StopPair{}) {
		c.Stops.StockLong = StopPair{StopPct: 5, TakePct: 12}
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = 8
	}
	if c.Scan.PerMinute == 0 {
		c.Scan.PerMinute = 60
	}
	if c.Scan.PerHour == 0 {
		c.Scan.PerHour = 1200
	}
	if c.Scan.FetchRetries == 0 {
		c.Scan.FetchRetries = 2
	}
	if c.Scan.FetchWorkers == 0 {
		c.Scan.FetchWorkers = 4
	}
	if c.Scan.Tier1ChangePct == 0 {
		c.Scan.Tier1ChangePct = 5.0
	}
	if c.Scan.BatchWaitSec == 0 {
		c.Scan.BatchWaitSec = 10
	}
	if c.Scan.StaleAlertCycles == 0 {
		c.Scan.StaleAlertCycles = 3
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.TxLog.Dir == "" {
		c.TxLog.Dir = "txlog"
	}
	if c.TxLog.CompressAfterD == 0 {
		c.TxLog.CompressAfterD = 7
	}
}

// Default returns a fully-defaulted Config with a minimal universe,
// useful for tests and for running without a config file.
func Default() *Config {
	var c Config
	c.Universe.Stocks = []string{"AAPL"}
	c.Universe.Crypto = []string{"BTC-USD"}
	ApplyDefaults(&c)
	return &c
}
