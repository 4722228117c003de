package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "FRESHNESS_WINDOW", "QUEUE_BACKEND", "REGISTRY_BACKEND", "CORS_ORIGINS", "APP_ENV", "JWT_SIGNING_KEY"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FRESHNESS_WINDOW", "90s")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("ACCESS_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.FreshnessWindow)
	assert.False(t, cfg.FaceSkip)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
}

func TestValidate(t *testing.T) {
	base := App{Env: "dev", JWTSigningKey: "k", FreshnessWindow: time.Minute, QueueBackend: "memory", RegistryBackend: "redis"}
	require.NoError(t, base.Validate())

	prod := base
	prod.Env = "prod"
	prod.JWTSigningKey = "dev-signing-secret-change"
	assert.Error(t, prod.Validate())

	bad := base
	bad.QueueBackend = "kafka"
	assert.Error(t, bad.Validate())

	bad = base
	bad.FreshnessWindow = 0
	assert.Error(t, bad.Validate())
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KIOSK_EMAIL=student@kampus.ac.id\nKIOSK_API_URL=http://override\n"), 0o600))
	t.Setenv("KIOSK_EMAIL", "")
	t.Setenv("KIOSK_API_URL", "http://from-env")
	// godotenv.Load does not override variables that are already set, even empty ones.
	require.NoError(t, os.Unsetenv("KIOSK_EMAIL"))

	LoadDotenv(path, filepath.Join(dir, "missing.env"))
	k := LoadKiosk()
	assert.Equal(t, "student@kampus.ac.id", k.Email)
	assert.Equal(t, "http://from-env", k.APIURL)
	require.NoError(t, os.Unsetenv("KIOSK_EMAIL"))
}
