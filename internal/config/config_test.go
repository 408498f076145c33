package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofold/corner/internal/apperr"
)

func setStorageEnv(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "corner-media")
	t.Setenv("STORAGE_ACCESS_KEY", "GOOGHMACKEY")
	t.Setenv("STORAGE_SECRET_KEY", "secret")
	t.Setenv("STORAGE_PROJECT_ID", "corner-prod")
}

func TestLoad_Defaults(t *testing.T) {
	setStorageEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.UploadURLTTL)
	assert.Equal(t, time.Hour, cfg.DownloadURLTTL)
	assert.Equal(t, ProtocolResumable, cfg.Storage.Protocol)
	assert.Equal(t, "https://storage.googleapis.com/corner-media", cfg.Storage.PublicBase)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_MissingBucketIsConfigurationError(t *testing.T) {
	setStorageEnv(t)
	t.Setenv("STORAGE_BUCKET", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Contains(t, err.Error(), "Bucket")
}

func TestLoad_ProjectIDOnlyRequiredForResumable(t *testing.T) {
	setStorageEnv(t)
	t.Setenv("STORAGE_PROJECT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProjectID")

	t.Setenv("STORAGE_PROTOCOL", ProtocolSingle)
	t.Setenv("STORAGE_ENDPOINT", "localhost:9000")
	t.Setenv("STORAGE_USE_SSL", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/corner-media", cfg.Storage.PublicBase)
}

func TestLoad_Overrides(t *testing.T) {
	setStorageEnv(t)
	t.Setenv("UPLOAD_URL_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.UploadURLTTL)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.True(t, cfg.IsProduction())
}
