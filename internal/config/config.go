package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	JWT      JWTConfig
	Wechat   WechatConfig
	Order    OrderConfig

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

type DBConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DSN      string `env:"DB_DSN"`
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"campus_takeout"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"20"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	// DetailTTL bounds how long a cached order detail may be served.
	DetailTTL time.Duration `env:"ORDER_DETAIL_CACHE_TTL" envDefault:"30s"`
}

type RabbitMQConfig struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"order.exchange"`
}

type JWTConfig struct {
	Secret string        `env:"JWT_SECRET,notEmpty"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`
}

type WechatConfig struct {
	AppID     string `env:"WECHAT_APP_ID"`
	MchID     string `env:"WECHAT_MCH_ID"`
	APIKey    string `env:"WECHAT_API_KEY"`
	NotifyURL string `env:"WECHAT_NOTIFY_URL"`
	// BaseURL is empty in development; the client then returns local prepay ids.
	BaseURL string        `env:"WECHAT_BASE_URL"`
	Timeout time.Duration `env:"WECHAT_TIMEOUT" envDefault:"5s"`
}

type OrderConfig struct {
	PaymentWindow    time.Duration `env:"ORDER_PAYMENT_WINDOW" envDefault:"15m"`
	SweepInterval    time.Duration `env:"ORDER_SWEEP_INTERVAL" envDefault:"60s"`
	SweepBatchSize   int           `env:"ORDER_SWEEP_BATCH_SIZE" envDefault:"200"`
	SweepConcurrency int           `env:"ORDER_SWEEP_CONCURRENCY" envDefault:"8"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Wechat.BaseURL != "" && c.Wechat.APIKey == "" {
		return fmt.Errorf("WECHAT_API_KEY is required when WECHAT_BASE_URL is set")
	}
	if c.Order.PaymentWindow <= 0 {
		return fmt.Errorf("ORDER_PAYMENT_WINDOW must be positive")
	}
	if c.Order.SweepInterval <= 0 {
		return fmt.Errorf("ORDER_SWEEP_INTERVAL must be positive")
	}
	if c.Order.SweepBatchSize <= 0 {
		return fmt.Errorf("ORDER_SWEEP_BATCH_SIZE must be positive")
	}
	if c.Order.SweepConcurrency <= 0 {
		c.Order.SweepConcurrency = 1
	}
	return nil
}
