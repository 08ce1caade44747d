package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/strategy"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Kiwoom   KiwoomConfig
	Telegram TelegramConfig
	Trading  TradingConfig
	Schedule ScheduleConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka configuration for trade events
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// RedisConfig holds quote cache configuration; empty Addr disables the cache
type RedisConfig struct {
	Addr       string
	TTLSeconds int
}

// KiwoomConfig holds Kiwoom REST API credentials
type KiwoomConfig struct {
	AppKey    string
	AppSecret string
	AccountNo string
	Mock      bool
}

// BaseURL returns the Kiwoom REST API base URL
func (k *KiwoomConfig) BaseURL() string {
	if k.Mock {
		return "https://mockapi.kiwoom.com"
	}
	return "https://api.kiwoom.com"
}

// TelegramConfig holds notification bot configuration; empty token disables it
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// TradingConfig holds the infinite-buying strategy parameters
type TradingConfig struct {
	Symbol            string
	TotalInvestment   decimal.Decimal
	NumSplits         int
	ProfitTarget      decimal.Decimal
	EmergencySellMode strategy.EmergencyMode
}

// ScheduleConfig holds cron specs for the three daily phases (Asia/Seoul)
type ScheduleConfig struct {
	SellArm        string
	BuyOrEmergency string
	Reconcile      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	totalInvestment, err := getDecimal("TOTAL_INVESTMENT", "10000000")
	if err != nil {
		return nil, err
	}
	profitTarget, err := getDecimal("PROFIT_TARGET", "1.10")
	if err != nil {
		return nil, err
	}
	numSplits, err := getInt("NUM_SPLITS", 40)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getInt("REDIS_QUOTE_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	chatID, err := getInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "infinitebuy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Topic:   getEnv("KAFKA_TOPIC", "trade-events"),
			Enabled: getEnv("KAFKA_ENABLED", "false") == "true",
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			TTLSeconds: cacheTTL,
		},
		Kiwoom: KiwoomConfig{
			AppKey:    getEnv("KIWOOM_APP_KEY", ""),
			AppSecret: getEnv("KIWOOM_APP_SECRET", ""),
			AccountNo: getEnv("KIWOOM_ACCOUNT_NO", ""),
			Mock:      getEnv("KIWOOM_IS_MOCK", "true") == "true",
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
		},
		Trading: TradingConfig{
			Symbol:            getEnv("TRADING_SYMBOL", "133690"),
			TotalInvestment:   totalInvestment,
			NumSplits:         numSplits,
			ProfitTarget:      profitTarget,
			EmergencySellMode: strategy.EmergencyMode(getEnv("EMERGENCY_SELL_MODE", string(strategy.EmergencyQuarter))),
		},
		Schedule: ScheduleConfig{
			SellArm:        getEnv("SCHEDULE_SELL_ARM", "0 9 * * MON-FRI"),
			BuyOrEmergency: getEnv("SCHEDULE_BUY", "30 14 * * MON-FRI"),
			Reconcile:      getEnv("SCHEDULE_RECONCILE", "40 15 * * MON-FRI"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the trading parameters for values that would make the
// strategy meaningless or dangerous
func (c *Config) Validate() error {
	t := &c.Trading
	if t.Symbol == "" {
		return fmt.Errorf("TRADING_SYMBOL must not be empty")
	}
	if t.NumSplits <= 0 {
		return fmt.Errorf("NUM_SPLITS must be positive, got %d", t.NumSplits)
	}
	if !t.TotalInvestment.IsPositive() {
		return fmt.Errorf("TOTAL_INVESTMENT must be positive, got %s", t.TotalInvestment)
	}
	if !t.ProfitTarget.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PROFIT_TARGET must be greater than 1, got %s", t.ProfitTarget)
	}
	if t.EmergencySellMode != strategy.EmergencyQuarter && t.EmergencySellMode != strategy.EmergencyWait {
		return fmt.Errorf("EMERGENCY_SELL_MODE must be %q or %q, got %q",
			strategy.EmergencyQuarter, strategy.EmergencyWait, t.EmergencySellMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
