package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации движка целостности.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки admin HTTP API.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCConfig — порт gRPC health сервиса
type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"` // Создать таблицы движка при старте
}

// RedisConfig описывает подключение к Redis (лок прогона и события).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — публичный RSA ключ для проверки JWT admin API.
// Выпуск токенов — зона внешнего identity провайдера.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// EngineConfig содержит настройки прогона и надежности уведомлений.
type EngineConfig struct {
	AgentName        string        `mapstructure:"agent_name"`
	TenantTimeout    time.Duration `mapstructure:"tenant_timeout"`
	TopAlerts        int           `mapstructure:"top_alerts"`
	DescriptionLimit int           `mapstructure:"description_limit"`
	RunLockTTL       time.Duration `mapstructure:"run_lock_ttl"`

	AuditBatchSize int `mapstructure:"audit_batch_size"` // Строк agent_findings на один INSERT

	// Настройки Circuit Breaker для каналов уведомлений
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	NotifyRate     float64       `mapstructure:"notify_rate"` // Отправок в секунду на канал
	NotifyAttempts uint          `mapstructure:"notify_attempts"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

type NotifyConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
}

// EmailConfig — SMTP релей. Пустой Host означает "канал не настроен".
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// WhatsAppConfig — HTTP API провайдера сообщений
type WhatsAppConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	Token      string        `mapstructure:"token"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (c WhatsAppConfig) Configured() bool {
	return c.APIURL != "" && c.Token != "" && len(c.Recipients) > 0
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Переменные окружения: DATABASE_URL перекроет database.url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. PEM-ключ либо прямо в ENV (Docker/K8s), либо файлом по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute) // Ручной прогон отвечает синхронно
	v.SetDefault("grpc.port", 9091)
	v.SetDefault("metrics.addr", ":9090")
	// Ключи без дефолта AutomaticEnv не видит при Unmarshal
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.agent_name", "integrity-agent")
	v.SetDefault("engine.tenant_timeout", 2*time.Minute)
	v.SetDefault("engine.top_alerts", 20)
	v.SetDefault("engine.description_limit", 220)
	v.SetDefault("engine.run_lock_ttl", 30*time.Minute)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.cb_max_requests", 1)
	v.SetDefault("engine.cb_interval", time.Minute)
	v.SetDefault("engine.cb_timeout", 5*time.Minute)
	v.SetDefault("engine.notify_rate", 1.0)
	v.SetDefault("engine.notify_attempts", 3)
	v.SetDefault("engine.send_timeout", 10*time.Second)

	v.SetDefault("notify.email.host", "")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.whatsapp.api_url", "")
	v.SetDefault("notify.whatsapp.token", "")
	v.SetDefault("notify.whatsapp.timeout", 10*time.Second)
}

// Validate отсекает конфигурацию, с которой движок заведомо не сможет работать
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Engine.TenantTimeout <= 0 {
		errs = append(errs, errors.New("engine.tenant_timeout must be positive"))
	}
	if c.Engine.TopAlerts <= 0 {
		errs = append(errs, errors.New("engine.top_alerts must be positive"))
	}
	if c.Engine.DescriptionLimit <= 0 {
		errs = append(errs, errors.New("engine.description_limit must be positive"))
	}
	if c.Engine.AuditBatchSize <= 0 {
		errs = append(errs, errors.New("engine.audit_batch_size must be positive"))
	}
	if c.Engine.NotifyRate <= 0 {
		errs = append(errs, errors.New("engine.notify_rate must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// loadKeyResource — ключ из ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
