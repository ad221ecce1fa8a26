package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultAcademicYear, cfg.AcademicYear)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadPartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "listen: 0.0.0.0:9000\nacademic_year: 2025\ncatalog:\n  timeout: 3s\n  page_size: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, 2025, cfg.AcademicYear)
	assert.Equal(t, 3*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, 10, cfg.Catalog.PageSize)
	assert.Equal(t, DefaultCatalogURL, cfg.Catalog.URL)
	assert.Equal(t, "*/10 * * * *", cfg.SessionSweep)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	t.Setenv("COURSEPLAN_LISTEN", "127.0.0.1:7777")
	t.Setenv("COURSEPLAN_CATALOG_URL", "http://catalog.local/q")
	t.Setenv("COURSEPLAN_ACADEMIC_YEAR", "2026")
	t.Setenv("COURSEPLAN_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.Listen)
	assert.Equal(t, "http://catalog.local/q", cfg.Catalog.URL)
	assert.Equal(t, 2026, cfg.AcademicYear)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	cfg.Calendar.WeekendsVisible = true
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got.BasicAuth)
	assert.Equal(t, "u", got.BasicAuth.Username)
	assert.True(t, got.Calendar.WeekendsVisible)
	assert.Equal(t, cfg.SessionIdle, got.SessionIdle)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save("x.yaml", nil))
}
