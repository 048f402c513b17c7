// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	GRPCServer              `yaml:"grpc_server"`
	JWTToken                `yaml:"jwttoken"`
	Gateway                 `yaml:"gateway"`
	Scheduler               `yaml:"scheduler"`
	Sync                    `yaml:"sync"`
	Notifier                `yaml:"notifier"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// GRPCServer настройки grpc health-сервера
type GRPCServer struct {
	AddressGRPC string `yaml:"addressgrpc" env:"GRPC_ADDRESS" env-default:"0.0.0.0:50051"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ настройки очереди реактивации
type RabbitMQ struct {
	URL          string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries      int           `yaml:"retries" env-default:"10"`
	RetryDelay   time.Duration `yaml:"retry_delay" env-default:"3s"`
	Exchange     string        `yaml:"exchange" env-default:"teleguard"`
	Queue        string        `yaml:"queue" env-default:"teleguard.reactivation"`
	RoutingKey   string        `yaml:"routing_key" env-default:"reactivation"`
	Concurrency  int           `yaml:"concurrency" env-default:"10"`
	QueueInvites bool          `yaml:"queue_invites" env:"QUEUE_INVITES"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Gateway настройки доступа к группе
type Gateway struct {
	Kind            string        `yaml:"kind" env:"GATEWAY_KIND"` // telegram | http, пусто - без шлюза
	BotToken        string        `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	GroupID         int64         `yaml:"group_id" env:"TELEGRAM_GROUP_ID"`
	SidecarURL      string        `yaml:"sidecar_url" env:"GATEWAY_SIDECAR_URL"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env-default:"10s"`
	RateLimit       float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst       int           `yaml:"rate_burst" env-default:"1"`
	RestrictionWait time.Duration `yaml:"restriction_wait" env-default:"2s"`
	RestrictionTTL  time.Duration `yaml:"restriction_ttl" env-default:"60s"`
	InitRetries     int           `yaml:"init_retries" env-default:"5"`
	InitRetryDelay  time.Duration `yaml:"init_retry_delay" env-default:"5s"`
	Breaker         `yaml:"breaker"`
}

// Breaker параметры circuit breaker для шлюза
type Breaker struct {
	MaxRequests      uint32        `yaml:"max_requests" env-default:"1"`
	Interval         time.Duration `yaml:"interval" env-default:"60s"`
	Timeout          time.Duration `yaml:"timeout" env-default:"30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" env-default:"5"`
}

// Scheduler настройки периодической сверки
type Scheduler struct {
	IntervalHours   int           `yaml:"interval_hours" env-default:"6"`
	StartupDelay    time.Duration `yaml:"startup_delay" env-default:"5s"`
	LockTTL         time.Duration `yaml:"lock_ttl" env-default:"30m"`
	DedupeReminders bool          `yaml:"dedupe_reminders" env:"DEDUPE_REMINDERS"`
}

// Sync настройки синхронизации с участниками группы
type Sync struct {
	DefaultDurationDays int `yaml:"default_duration_days" env-default:"30"`
}

// Notifier настройки воркера приглашений
type Notifier struct {
	MetricsAddress string `yaml:"metrics_address" env:"NOTIFIER_METRICS_ADDRESS" env-default:"0.0.0.0:9091"`
}

// Interval период запуска сверки
func (s Scheduler) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// MustLoad функция для загрузки конфига из CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Load читает конфиг по пути, переменные окружения перекрывают значения из файла
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"  Exchange: %s\n"+
			"  Queue: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  APIKey: %s\n"+
			"GRPCServer:\n"+
			"  Address: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n"+
			"Gateway:\n"+
			"  Kind: %s\n"+
			"  BotToken: %s\n"+
			"  GroupID: %d\n"+
			"  SidecarURL: %s\n"+
			"  RestrictionWait: %s\n"+
			"Scheduler:\n"+
			"  IntervalHours: %d\n"+
			"  StartupDelay: %s\n"+
			"  DedupeReminders: %t\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.MigrationsPath,
		c.AddressRedis,
		mask(c.RedisConnection.Password),
		c.DB,
		mask(c.RabbitMQ.URL),
		c.Exchange,
		c.Queue,
		c.AddressHTTP,
		c.TimeoutHTTP,
		mask(c.APIKey),
		c.AddressGRPC,
		mask(c.JWTSecretKey),
		c.TokenTTL,
		c.Kind,
		mask(c.BotToken),
		c.GroupID,
		c.SidecarURL,
		c.RestrictionWait,
		c.IntervalHours,
		c.StartupDelay,
		c.DedupeReminders,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
