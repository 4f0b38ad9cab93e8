package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "REDIS_ADDR", "KAFKA_BROKERS", "STORAGE", "BROADCAST_BUS",
		"TAX_RATE", "SHIPPING_FEE_CENTS", "LIFECYCLE_INTERVAL", "PAYMENT_SECRETS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, BusLocal, cfg.BroadcastBus)
	assert.Equal(t, "0.05", cfg.TaxRate)
	assert.Equal(t, int64(0), cfg.ShippingFeeCents)
	assert.Equal(t, 5*time.Second, cfg.LifecycleInterval)
	assert.Empty(t, cfg.PaymentSecrets)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SHIPPING_FEE_CENTS", "250")
	t.Setenv("LIFECYCLE_INTERVAL", "750ms")
	t.Setenv("PAYMENT_SECRETS", "DummyPay=s1, stripe = s2,broken")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(250), cfg.ShippingFeeCents)
	assert.Equal(t, 750*time.Millisecond, cfg.LifecycleInterval)
	assert.Equal(t, map[string]string{"dummypay": "s1", "stripe": "s2"}, cfg.PaymentSecrets)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("SHIPPING_FEE_CENTS", "abc")
	t.Setenv("LIFECYCLE_INTERVAL", "-3s")

	cfg := Load()
	assert.Equal(t, int64(0), cfg.ShippingFeeCents)
	assert.Equal(t, 5*time.Second, cfg.LifecycleInterval)
}
