package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Reservation ReservationConfig `yaml:"reservation"`
	Worker      WorkerConfig      `yaml:"worker"`
	Log         LogConfig         `yaml:"log"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type HTTPConfig struct {
	Address           string  `yaml:"address"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// ProviderCacheSeconds bounds how stale cached provider settings may get.
	ProviderCacheSeconds int `yaml:"provider_cache_seconds"`
	EventMarkerHours     int `yaml:"event_marker_hours"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	ReservationsTopic  string   `yaml:"reservations_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type ReservationConfig struct {
	ImmediateThresholdHours int `yaml:"immediate_threshold_hours"`
	ImmediateTTLMinutes     int `yaml:"immediate_ttl_minutes"`
	DelayedTTLHours         int `yaml:"delayed_ttl_hours"`
}

func (r ReservationConfig) ImmediateThreshold() time.Duration {
	return time.Duration(r.ImmediateThresholdHours) * time.Hour
}

func (r ReservationConfig) ImmediateTTL() time.Duration {
	return time.Duration(r.ImmediateTTLMinutes) * time.Minute
}

func (r ReservationConfig) DelayedTTL() time.Duration {
	return time.Duration(r.DelayedTTLHours) * time.Hour
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the
// environment so secrets stay out of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RequestsPerSecond == 0 {
		c.HTTP.RequestsPerSecond = 50
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 100
	}
	if c.Redis.ProviderCacheSeconds == 0 {
		c.Redis.ProviderCacheSeconds = 60
	}
	if c.Redis.EventMarkerHours == 0 {
		c.Redis.EventMarkerHours = 72
	}
	if c.Reservation.ImmediateThresholdHours == 0 {
		c.Reservation.ImmediateThresholdHours = 72
	}
	if c.Reservation.ImmediateTTLMinutes == 0 {
		c.Reservation.ImmediateTTLMinutes = 30
	}
	if c.Reservation.DelayedTTLHours == 0 {
		c.Reservation.DelayedTTLHours = 24
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 15
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "slotbooking"
	}
}
