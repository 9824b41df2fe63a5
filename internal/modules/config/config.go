package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	oracleAPIKeyENV   = "ORACLE_API_KEY"
)

// Config ...
type Config struct {
	Service struct {
		Name     string `yaml:"name"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	DB      string `yaml:"db_dsn"`
	Storage struct {
		Driver     string `yaml:"driver"` // postgres | sqlite | memory
		SQLitePath string `yaml:"sqlite_path"`
		MaxConns   int32  `yaml:"max_conns"`
	} `yaml:"storage"`

	Binance struct {
		WSURL      string   `yaml:"ws_url"`
		RESTURL    string   `yaml:"rest_url"`
		Symbols    []string `yaml:"symbols"`
		Timeframes []string `yaml:"timeframes"`
		Warmup     bool     `yaml:"warmup"`
		Funding    bool     `yaml:"funding"`
	} `yaml:"binance"`

	Cache struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"cache"`

	Scheduler struct {
		DetectEvery  time.Duration `yaml:"detect_every"`
		CloseEvery   time.Duration `yaml:"close_every"`
		CycleTimeout time.Duration `yaml:"cycle_timeout"`
	} `yaml:"scheduler"`

	Signals struct {
		MinCandles       int           `yaml:"min_candles"`
		DedupWindow      time.Duration `yaml:"dedup_window"`
		DedupPct         float64       `yaml:"dedup_pct"`
		DefaultNextCheck time.Duration `yaml:"default_next_check"`
		ClosureTimeframe string        `yaml:"closure_timeframe"`
		TiePolicy        string        `yaml:"tie_policy"` // stop_first | target_first
	} `yaml:"signals"`

	Oracle struct {
		Provider         string        `yaml:"provider"` // rules | openai
		BaseURL          string        `yaml:"base_url"`
		APIKey           string        `yaml:"api_key"`
		Model            string        `yaml:"model"`
		Timeout          time.Duration `yaml:"timeout"`
		MaxRetries       int           `yaml:"max_retries"`
		RatePerMinute    int           `yaml:"rate_per_minute"`
		BreakerThreshold int           `yaml:"breaker_threshold"`
		BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
		StopPct          float64       `yaml:"stop_pct"`
		RewardRisk       float64       `yaml:"reward_risk"`
	} `yaml:"oracle"`

	Health struct {
		Addr string `yaml:"addr"`
	} `yaml:"health"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`
}

// Default: значения, поверх которых декодируется yaml.
func Default() Config {
	var c Config
	c.Service.Name = "signal_engine"
	c.Service.LogLevel = "info"

	c.Storage.Driver = "postgres"
	c.Storage.SQLitePath = "data/signals.db"
	c.Storage.MaxConns = 8

	c.Binance.WSURL = "wss://fstream.binance.com/stream"
	c.Binance.RESTURL = "https://fapi.binance.com"
	c.Binance.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	c.Binance.Timeframes = []string{"5m", "15m", "1h", "4h"}
	c.Binance.Warmup = true
	c.Binance.Funding = true

	c.Cache.Capacity = 100

	c.Scheduler.DetectEvery = 30 * time.Second
	c.Scheduler.CloseEvery = 60 * time.Second
	c.Scheduler.CycleTimeout = 2 * time.Minute

	c.Signals.MinCandles = 10
	c.Signals.DedupWindow = 5 * time.Minute
	c.Signals.DedupPct = 0.2
	c.Signals.DefaultNextCheck = 60 * time.Minute
	c.Signals.ClosureTimeframe = "5m"
	c.Signals.TiePolicy = "stop_first"

	c.Oracle.Provider = "rules"
	c.Oracle.BaseURL = "https://api.openai.com/v1"
	c.Oracle.Model = "gpt-4o-mini"
	c.Oracle.Timeout = 60 * time.Second
	c.Oracle.MaxRetries = 2
	c.Oracle.RatePerMinute = 30
	c.Oracle.BreakerThreshold = 3
	c.Oracle.BreakerTimeout = 2 * time.Minute
	c.Oracle.StopPct = 1.0
	c.Oracle.RewardRisk = 2.0

	c.Health.Addr = ":8080"

	c.Tracing.Enabled = false
	c.Tracing.Host = "localhost"
	c.Tracing.Port = 6831
	return c
}

// applyEnv: переменные окружения перекрывают и дефолты, и файл.
func (c *Config) applyEnv() {
	c.Service.LogLevel = getenvDefault("LOG_LEVEL", c.Service.LogLevel)

	c.Storage.Driver = getenvDefault("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getenvDefault("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MaxConns = int32(intFromEnv("DB_MAX_CONNS", int(c.Storage.MaxConns)))

	c.Binance.WSURL = getenvDefault("BINANCE_WS_URL", c.Binance.WSURL)
	c.Binance.RESTURL = getenvDefault("BINANCE_REST_URL", c.Binance.RESTURL)
	c.Binance.Symbols = listFromEnv("SYMBOLS", c.Binance.Symbols)
	c.Binance.Timeframes = listFromEnv("TIMEFRAMES", c.Binance.Timeframes)
	c.Binance.Warmup = boolFromEnv("WARMUP", c.Binance.Warmup)
	c.Binance.Funding = boolFromEnv("FUNDING_CONTEXT", c.Binance.Funding)

	c.Cache.Capacity = intFromEnv("CACHE_CAPACITY", c.Cache.Capacity)

	c.Scheduler.DetectEvery = durationFromEnv("DETECT_EVERY", c.Scheduler.DetectEvery)
	c.Scheduler.CloseEvery = durationFromEnv("CLOSE_EVERY", c.Scheduler.CloseEvery)
	c.Scheduler.CycleTimeout = durationFromEnv("CYCLE_TIMEOUT", c.Scheduler.CycleTimeout)

	c.Signals.MinCandles = intFromEnv("MIN_CANDLES", c.Signals.MinCandles)
	c.Signals.DedupWindow = durationFromEnv("DEDUP_WINDOW", c.Signals.DedupWindow)
	c.Signals.DedupPct = floatFromEnv("DEDUP_PCT", c.Signals.DedupPct)
	c.Signals.DefaultNextCheck = durationFromEnv("DEFAULT_NEXT_CHECK", c.Signals.DefaultNextCheck)
	c.Signals.ClosureTimeframe = getenvDefault("CLOSURE_TIMEFRAME", c.Signals.ClosureTimeframe)
	c.Signals.TiePolicy = getenvDefault("TIE_POLICY", c.Signals.TiePolicy)

	c.Oracle.Provider = getenvDefault("ORACLE_PROVIDER", c.Oracle.Provider)
	c.Oracle.BaseURL = getenvDefault("ORACLE_BASE_URL", c.Oracle.BaseURL)
	c.Oracle.Model = getenvDefault("ORACLE_MODEL", c.Oracle.Model)
	c.Oracle.Timeout = durationFromEnv("ORACLE_TIMEOUT", c.Oracle.Timeout)
	c.Oracle.MaxRetries = intFromEnv("ORACLE_MAX_RETRIES", c.Oracle.MaxRetries)
	c.Oracle.RatePerMinute = intFromEnv("ORACLE_RATE_PER_MINUTE", c.Oracle.RatePerMinute)
	c.Oracle.BreakerThreshold = intFromEnv("ORACLE_BREAKER_THRESHOLD", c.Oracle.BreakerThreshold)
	c.Oracle.BreakerTimeout = durationFromEnv("ORACLE_BREAKER_TIMEOUT", c.Oracle.BreakerTimeout)
	c.Oracle.StopPct = floatFromEnv("ORACLE_STOP_PCT", c.Oracle.StopPct)
	c.Oracle.RewardRisk = floatFromEnv("ORACLE_REWARD_RISK", c.Oracle.RewardRisk)

	c.Health.Addr = getenvDefault("HEALTH_ADDR", c.Health.Addr)

	c.Tracing.Enabled = boolFromEnv("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Host = getenvDefault("JAEGER_HOST", c.Tracing.Host)
	c.Tracing.Port = intFromEnv("JAEGER_PORT", c.Tracing.Port)
}

func NewConfig() (*Config, error) {
	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	dir := getenvDefault(configDirENV, "configs")

	config := Default()
	file, err := os.Open(dir + "/" + configFileName)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// без файла работаем на дефолтах + env
	default:
		return nil, fmt.Errorf("open config file: %w", err)
	}
	config.applyEnv()

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if key := os.Getenv(oracleAPIKeyENV); key != "" {
		config.Oracle.APIKey = key
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) normalize() {
	for i, s := range c.Binance.Symbols {
		c.Binance.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i, tf := range c.Binance.Timeframes {
		c.Binance.Timeframes[i] = strings.ToLower(strings.TrimSpace(tf))
	}
	c.Signals.ClosureTimeframe = strings.ToLower(strings.TrimSpace(c.Signals.ClosureTimeframe))
}

// Validate отсекает конфиги, с которыми движок работать не сможет.
func (c *Config) Validate() error {
	if len(c.Binance.Symbols) == 0 {
		return errors.New("config: binance.symbols is empty")
	}
	if len(c.Binance.Timeframes) == 0 {
		return errors.New("config: binance.timeframes is empty")
	}
	if c.Cache.Capacity < 10 {
		return fmt.Errorf("config: cache.capacity must be >= 10, got %d", c.Cache.Capacity)
	}
	if c.Scheduler.DetectEvery <= 0 || c.Scheduler.CloseEvery <= 0 {
		return errors.New("config: scheduler intervals must be positive")
	}
	if c.Signals.ClosureTimeframe == "" {
		return errors.New("config: signals.closure_timeframe is empty")
	}
	switch c.Signals.TiePolicy {
	case "stop_first", "target_first":
	default:
		return fmt.Errorf("config: unknown signals.tie_policy %q", c.Signals.TiePolicy)
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}

// StreamTimeframes возвращает таймфреймы для подписки: детекция + таймфрейм закрытия.
func (c *Config) StreamTimeframes() []string {
	out := append([]string(nil), c.Binance.Timeframes...)
	for _, tf := range out {
		if tf == c.Signals.ClosureTimeframe {
			return out
		}
	}
	return append(out, c.Signals.ClosureTimeframe)
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func listFromEnv(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
