package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9090/data/manifest.json", cfg.ManifestURL)
	assert.Equal(t, "http://localhost:9090/", cfg.AssetBaseURL)
	assert.Equal(t, 5*time.Second, cfg.ItemTimeout)
	assert.Equal(t, 0, cfg.MaxConcurrency)
	assert.True(t, cfg.Serve)
	assert.Equal(t, []string{"test-image-local", "test-image-remote", "config"}, cfg.ExpectedAssetIDs)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("MANIFEST_URL", "https://cdn.example.com/site/data/manifest.json")
	t.Setenv("PRELOAD_ITEM_TIMEOUT", "0s")
	t.Setenv("PRELOAD_MAX_CONCURRENCY", "4")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/", cfg.AssetBaseURL)
	assert.Equal(t, time.Duration(0), cfg.ItemTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowOrigins)
}

func TestParseRejectsNegativeValues(t *testing.T) {
	t.Setenv("PRELOAD_ITEM_TIMEOUT", "-1s")
	_, err := Parse()
	assert.Error(t, err)
}

func TestParseRejectsMalformedDuration(t *testing.T) {
	t.Setenv("HTTP_CLIENT_TIMEOUT", "soon")
	_, err := Parse()
	assert.Error(t, err)
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nPRELOADER_TEST_A=from-file\nPRELOADER_TEST_B=\"quoted\"\nnot a pair\n"), 0644))

	t.Setenv("PRELOADER_TEST_A", "from-env")
	t.Setenv("PRELOADER_TEST_B", "")

	loadEnvFileFrom(path)

	assert.Equal(t, "from-env", os.Getenv("PRELOADER_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("PRELOADER_TEST_B"))
}
