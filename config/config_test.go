package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_STRIPE_KEY", "sk_test_123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
http:
  address: ":9090"
database:
  host: localhost
  port: 5432
  user: app
  password: secret
  name: slots
  ssl_mode: disable
kafka:
  brokers: ["localhost:9092"]
  notifications_topic: notifications
stripe:
  secret_key: ${TEST_STRIPE_KEY}
reservation:
  delayed_ttl_hours: 12
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "host=localhost port=5432 user=app password=secret dbname=slots sslmode=disable", cfg.Database.DSN())

	assert.Equal(t, 12*time.Hour, cfg.Reservation.DelayedTTL())
	assert.Equal(t, 72*time.Hour, cfg.Reservation.ImmediateThreshold())
	assert.Equal(t, 30*time.Minute, cfg.Reservation.ImmediateTTL())
	assert.Equal(t, 15, cfg.Worker.ExpirationSweepMinutes)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}
