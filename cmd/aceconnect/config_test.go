package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aceconnect "github.com/Zainktk/ace-connect-web"
)

func TestSetConfigValue(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, setConfigValue(cfg, "default.base_url", "http://example.test/api"))
	require.NoError(t, setConfigValue(cfg, "default.environment", "development"))
	assert.Equal(t, "http://example.test/api", cfg.Default.BaseURL)
	assert.Equal(t, "development", cfg.Default.Environment)

	assert.Error(t, setConfigValue(cfg, "base_url", "x"))
	assert.Error(t, setConfigValue(cfg, "default.api_key", "x"))
	assert.Error(t, setConfigValue(cfg, "auth.token", "x"))
	assert.Error(t, setConfigValue(cfg, "default.environment", "staging"))
	assert.Error(t, setConfigValue(cfg, "default.base_url", "localhost:3000"))
	assert.Error(t, setConfigValue(cfg, "default.base_url", "ftp://example.test"))
	assert.Equal(t, "http://example.test/api", cfg.Default.BaseURL, "rejected values leave the field alone")

	require.NoError(t, setConfigValue(cfg, "default.base_url", "https://example.test/api/"))
	assert.Equal(t, "https://example.test/api", cfg.Default.BaseURL)

	require.NoError(t, setConfigValue(cfg, "default.base_url", ""))
	require.NoError(t, setConfigValue(cfg, "default.environment", ""))
	assert.Equal(t, ConfigDefault{}, cfg.Default)
}

func TestBaseURLSource(t *testing.T) {
	t.Setenv("ACECONNECT_BASE_URL", "")

	u, src := baseURLSource(&Config{})
	assert.Equal(t, aceconnect.DefaultBaseURL, u)
	assert.Equal(t, "built-in default", src)

	_, src = baseURLSource(&Config{Default: ConfigDefault{Environment: "development"}})
	assert.Equal(t, "environment development", src)

	_, src = baseURLSource(&Config{Default: ConfigDefault{BaseURL: "http://override/api"}})
	assert.Equal(t, "default.base_url", src)

	t.Setenv("ACECONNECT_BASE_URL", "http://env/api")
	_, src = baseURLSource(&Config{Default: ConfigDefault{BaseURL: "http://override/api"}})
	assert.Equal(t, "ACECONNECT_BASE_URL", src)
}

func TestResolveBaseURL(t *testing.T) {
	t.Setenv("ACECONNECT_BASE_URL", "")

	assert.Equal(t, aceconnect.DefaultBaseURL, resolveBaseURL(&Config{}))
	assert.Equal(t, "http://localhost:3000/api", resolveBaseURL(&Config{Default: ConfigDefault{Environment: "development"}}))
	assert.Equal(t, "http://override/api", resolveBaseURL(&Config{Default: ConfigDefault{Environment: "development", BaseURL: "http://override/api"}}))

	t.Setenv("ACECONNECT_BASE_URL", "http://env/api")
	assert.Equal(t, "http://env/api", resolveBaseURL(&Config{Default: ConfigDefault{BaseURL: "http://override/api"}}))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, in := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(in)
		assert.Error(t, err, in)
	}
}

func TestClock(t *testing.T) {
	assert.Equal(t, "yesterday", clock("yesterday"))
	assert.Len(t, clock("2026-01-01T10:00:00Z"), 5)
}
