package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию процесса
//
// Процессная конфигурация (сервер, БД, тайминги движка) читается из
// переменных окружения; торговые определения (аккаунты, пары) — из
// отдельного YAML файла, см. trading.go.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Engine   EngineConfig
	Exchange ExchangeConfig
	Logging  LoggingConfig

	// Путь к YAML с аккаунтами и торговыми парами
	TradingConfigPath string
}

// ServerConfig - настройки HTTP сервера (status/control API)
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string

	// AllowedOrigins - CORS origins дашборда, помимо локальных dev-адресов
	AllowedOrigins []string
}

// DatabaseConfig - настройки подключения к БД (аудит-журнал)
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	APIToken      string // bearer token для control API
	EncryptionKey string // AES-256 ключ для приватных ключей аккаунтов
}

// EngineConfig - тайминги и лимиты торгового ядра
type EngineConfig struct {
	// Основной цикл мониторинга
	MonitoringInterval time.Duration // интервал оценки гейта по всем парам
	RiskCheckInterval  time.Duration // периодическая страховочная проверка рисков

	// Ордера
	OrderTimeout time.Duration // горизонт ожидания заполнения ноги
	CloseTimeout time.Duration // таймаут операций закрытия/разворота

	// Retry при развороте (unwind) — ограниченное число попыток,
	// после исчерпания аккаунт блокируется до ручного вмешательства
	MaxUnwindRetries int

	// Глобальный дневной лимит убытка (условие emergency-stop)
	GlobalMaxDailyLoss float64
}

// ExchangeConfig - подключение к бирже
//
// Mode "paper" запускает локальную симуляцию без биржи; "live"
// требует BaseURL и WSURL.
type ExchangeConfig struct {
	Mode    string // paper, live
	BaseURL string
	WSURL   string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),

			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "hedger"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APIToken:      getEnv("API_TOKEN", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Engine: EngineConfig{
			MonitoringInterval: getEnvAsDuration("MONITORING_INTERVAL", 5*time.Second),
			RiskCheckInterval:  getEnvAsDuration("RISK_CHECK_INTERVAL", 10*time.Second),
			OrderTimeout:       getEnvAsDuration("ORDER_TIMEOUT", 30*time.Second),
			CloseTimeout:       getEnvAsDuration("CLOSE_TIMEOUT", 30*time.Second),
			MaxUnwindRetries:   getEnvAsInt("MAX_UNWIND_RETRIES", 4),
			GlobalMaxDailyLoss: getEnvAsFloat("GLOBAL_MAX_DAILY_LOSS", 5000),
		},
		Exchange: ExchangeConfig{
			Mode:    getEnv("EXCHANGE_MODE", "paper"),
			BaseURL: getEnv("EXCHANGE_BASE_URL", ""),
			WSURL:   getEnv("EXCHANGE_WS_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
		TradingConfigPath: getEnv("TRADING_CONFIG", "config/trading.yaml"),
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен: приватные ключи аккаунтов хранятся зашифрованными
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for decrypting account private keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Security.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required for the control API")
	}

	if len(c.Security.APIToken) < 16 {
		return fmt.Errorf("API_TOKEN must be at least 16 characters")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Engine.MonitoringInterval <= 0 {
		return fmt.Errorf("MONITORING_INTERVAL must be positive, got %v", c.Engine.MonitoringInterval)
	}

	if c.Engine.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Engine.OrderTimeout)
	}

	if c.Engine.CloseTimeout <= 0 {
		return fmt.Errorf("CLOSE_TIMEOUT must be positive, got %v", c.Engine.CloseTimeout)
	}

	if c.Engine.MaxUnwindRetries < 1 {
		return fmt.Errorf("MAX_UNWIND_RETRIES must be at least 1, got %d", c.Engine.MaxUnwindRetries)
	}

	if c.Engine.MaxUnwindRetries > 10 {
		return fmt.Errorf("MAX_UNWIND_RETRIES should not exceed 10, got %d", c.Engine.MaxUnwindRetries)
	}

	if c.Engine.GlobalMaxDailyLoss <= 0 {
		return fmt.Errorf("GLOBAL_MAX_DAILY_LOSS must be positive, got %v", c.Engine.GlobalMaxDailyLoss)
	}

	switch c.Exchange.Mode {
	case "paper":
	case "live":
		if c.Exchange.BaseURL == "" || c.Exchange.WSURL == "" {
			return fmt.Errorf("EXCHANGE_BASE_URL and EXCHANGE_WS_URL are required in live mode")
		}
	default:
		return fmt.Errorf("EXCHANGE_MODE must be paper or live, got %q", c.Exchange.Mode)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice читает список значений через запятую
func getEnvAsSlice(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
