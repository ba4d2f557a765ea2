package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the reminder service.
type Config struct {
	Server    Server         `mapstructure:"server"`
	Database  Database       `mapstructure:"database"`
	Redis     Redis          `mapstructure:"redis"`
	Email     Email          `mapstructure:"email"`
	SMS       SMS            `mapstructure:"sms"`
	WhatsApp  WhatsApp       `mapstructure:"whatsapp"`
	Scheduler Scheduler      `mapstructure:"scheduler"`
	Delivery  Delivery       `mapstructure:"delivery"`
	Retry     retry.Strategy `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port" validate:"required"` // HTTP port to listen on
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Redis holds Redis connection parameters.
type Redis struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Email holds SMTP configuration for sending reminder emails.
type Email struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SMS holds configuration for the SMS gateway.
type SMS struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

// WhatsApp holds configuration for the WhatsApp Business API.
type WhatsApp struct {
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

// Scheduler holds the dispatch-cycle and send-time configuration.
type Scheduler struct {
	Interval     time.Duration `mapstructure:"interval"      validate:"required"`     // dispatch tick period
	BatchSize    int           `mapstructure:"batch_size"    validate:"min=1"`        // max reminders claimed per tick
	ClaimTimeout time.Duration `mapstructure:"claim_timeout" validate:"required"`     // claims older than this count as abandoned
	SendHour     int           `mapstructure:"send_hour"     validate:"min=0,max=23"` // local hour reminders go out at
	LeadDays     int           `mapstructure:"lead_days"     validate:"min=1"`        // days before the appointment
	Timezone     string        `mapstructure:"timezone"      validate:"required"`     // clinic timezone, e.g. "Europe/Berlin"
}

// Delivery holds per-record retry configuration for the delivery worker.
type Delivery struct {
	Attempts  int           `mapstructure:"attempts"   validate:"min=1"`
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"required"`
	MaxDelay  time.Duration `mapstructure:"max_delay"  validate:"required"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Location resolves the clinic timezone.
func (s Scheduler) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}

	return loc, nil
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",

		"redis.address":  "REDIS_ADDRESS",
		"redis.password": "REDIS_PASSWORD",
		"redis.database": "REDIS_DATABASE",

		"email.smtp_host": "SMTP_HOST",
		"email.smtp_port": "SMTP_PORT",
		"email.username":  "SMTP_USER",
		"email.password":  "SMTP_PASS",
		"email.from":      "SMTP_FROM",

		"sms.api_url": "SMS_API_URL",
		"sms.api_key": "SMS_API_KEY",
		"sms.from":    "SMS_FROM",

		"whatsapp.api_url": "WHATSAPP_API_URL",
		"whatsapp.token":   "WHATSAPP_TOKEN",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// Must loads and validates the configuration from file and environment
// variables.
//
// It panics if configuration cannot be read, unmarshalled or validated.
func Must() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msg("invalid config")
	}

	return &cfg
}
