package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	JWT struct {
		Secret string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Seed struct {
		TenantName string `env:"TENANT_NAME" envDefault:"演示门店"`
		Workers    int    `env:"WORKERS" envDefault:"20"`
	} `envPrefix:"SEED_"`
	Email struct {
		UserDomain      string `env:"USER_DOMAIN" envDefault:"example.com"`
		DisplayTimezone string `env:"DISPLAY_TIMEZONE" envDefault:"Asia/Shanghai"`
		SMTP            struct {
			Username    string `env:"USERNAME"`
			Password    string `env:"PASSWORD"`
			Host        string `env:"HOST"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		Queue          string `env:"QUEUE" envDefault:"shift_notification_queue"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
		LocationCacheTTL    int    `env:"LOCATION_CACHE_TTL" envDefault:"600"` // 10 分钟
	} `envPrefix:"REDIS_"`
	Schedule struct {
		RateLimitWindow       int     `env:"RATE_LIMIT_WINDOW" envDefault:"60"`
		RateLimitMax          int     `env:"RATE_LIMIT_MAX" envDefault:"10"`
		IdempotencyTTL        int     `env:"IDEMPOTENCY_TTL" envDefault:"604800"`      // 7 天
		GracePeriod           int     `env:"GRACE_PERIOD" envDefault:"5"`              // 分钟
		OvertimeNoteThreshold int     `env:"OVERTIME_NOTE_THRESHOLD" envDefault:"15"`  // 分钟
		DefaultGeofenceRadius float64 `env:"DEFAULT_GEOFENCE_RADIUS" envDefault:"150"` // 米
		MaxRecurrenceDates    int     `env:"MAX_RECURRENCE_DATES" envDefault:"365"`
	} `envPrefix:"SCHEDULE_"`
	Punch struct {
		RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"2"`
		Burst             int     `env:"BURST" envDefault:"5"`
	} `envPrefix:"PUNCH_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	return cfg, nil
}
