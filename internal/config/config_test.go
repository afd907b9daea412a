package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
content_store:
  url: http://content-store:8080
media:
  base_url: https://app.example.com
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/media/proxy", cfg.Media.ProxyPath)
	assert.Equal(t, int64(50<<20), cfg.Media.MaxDownloadBytes)
	assert.Equal(t, 3*time.Second, cfg.Generation.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Generation.PollBudget)
	assert.Equal(t, "https://queue.fal.run", cfg.Generation.FalBaseURL)
	assert.Equal(t, 2, cfg.Resilience.MaxRetries)
	assert.Equal(t, 3, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.BreakerTimeout)

	// Destination table defaults carry each platform's documented limits.
	require.Contains(t, cfg.Destinations, "telegram")
	tg := cfg.Destinations["telegram"]
	assert.Equal(t, 4096, tg.MaxLength)
	assert.Equal(t, 1024, tg.CaptionLimit)
	assert.True(t, tg.ChatIDFallback)
	assert.Equal(t, 2200, cfg.Destinations["instagram"].MaxLength)
}

func TestLoad_ExplicitDestinationOverrides(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig+`
destinations:
  telegram:
    enabled: true
    max_length: 4096
    caption_limit: 500
`))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Destinations["telegram"].CaptionLimit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONTENT_STORE_URL", "http://other-store:9090")
	t.Setenv("FAL_API_KEY", "key-from-env")
	t.Setenv("APP_DEBUG", "true")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://other-store:9090", cfg.ContentStore.URL)
	assert.Equal(t, "key-from-env", cfg.Generation.FalAPIKey)
	assert.True(t, cfg.Debug)
}

func TestLoad_ValidationFailures(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing content store url",
			content: "media:\n  base_url: https://app.example.com\n",
			wantErr: "content_store.url is required",
		},
		{
			name:    "missing base url",
			content: "content_store:\n  url: http://cs:8080\n",
			wantErr: "media.base_url is required",
		},
		{
			name: "auth enabled without secret",
			content: minimalConfig + `
auth:
  enabled: true
`,
			wantErr: "jwt_secret",
		},
		{
			name: "caption limit above max length",
			content: minimalConfig + `
destinations:
  telegram:
    max_length: 100
    caption_limit: 200
`,
			wantErr: "caption_limit exceeds max_length",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
