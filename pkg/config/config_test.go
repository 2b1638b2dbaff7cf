package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9090", cfg.Server.BaseURL)
	assert.Equal(t, 2, cfg.Moderation.AutoSuspendThreshold)
	assert.Equal(t, time.Hour, cfg.Storage.AttachmentTTL)
	assert.Equal(t, 15*time.Minute, cfg.Storage.CommunityTTL)
	assert.True(t, cfg.MercadoPago.IsSandbox())
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("PRESENCE_TTL", "30s")
	t.Setenv("MERCADOPAGO_SANDBOX_ACCESS_TOKEN", "TEST-token")
	t.Setenv("BASE_URL", "https://arrienda.example/")
	t.Setenv("BLOCKED_FILE_HASHES", "ABC123, def456")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, logger.Silent, cfg.DB.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Presence.TTL)
	assert.Equal(t, "TEST-token", cfg.MercadoPago.AccessToken())
	assert.Equal(t, "https://arrienda.example", cfg.Server.BaseURL)
	assert.Equal(t, []string{"ABC123", "def456"}, cfg.Storage.BlockedHashes)
}

func TestLoadRejectsDefaultKeyInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SIGNING_KEY", defaultSigningKey)

	_, err := Load()
	assert.Error(t, err)
}

func TestMercadoPagoProductionCredentials(t *testing.T) {
	mp := MercadoPagoConfig{
		Environment:           "production",
		SandboxAccessToken:    "TEST-1",
		ProductionAccessToken: "APP_USR-1",
		ProductionPublicKey:   "APP_USR-pk",
	}
	assert.False(t, mp.IsSandbox())
	assert.Equal(t, "APP_USR-1", mp.AccessToken())
	assert.Equal(t, "APP_USR-pk", mp.PublicKey())
}

func TestGetDSN(t *testing.T) {
	db := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", db.GetDSN())
}
