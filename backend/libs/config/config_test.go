package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Device struct {
		DialTimeout time.Duration `yaml:"dialTimeout"`
		Buffer      int           `yaml:"buffer"`
	} `yaml:"device"`
	Rate    float64 `yaml:"rate"`
	Verbose bool    `yaml:"verbose"`
	Secret  string  `yaml:"secret" env:"-"`
}

type validatedConfig struct {
	Name string `yaml:"name" env:"VALIDATED_NAME"`
}

func (c *validatedConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name required")
	}
	return nil
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	require.Error(t, LoadConfig(nil))
	require.Error(t, LoadConfig(sampleConfig{}))
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("http:\n  port: \"9000\"\ndevice:\n  dialTimeout: 3s\n  buffer: 8\nrate: 0.2\nsecret: from-file\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("SAMPLE_HTTP_PORT", "9100")
	t.Setenv("DEVICE_DIALTIMEOUT", "750ms")
	t.Setenv("VERBOSE", "true")
	t.Setenv("SECRET", "ignored")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9100", cfg.HTTP.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.Device.DialTimeout)
	assert.Equal(t, 8, cfg.Device.Buffer)
	assert.InDelta(t, 0.2, cfg.Rate, 1e-9)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "from-file", cfg.Secret)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	cfg := sampleConfig{Rate: 0.12}
	require.NoError(t, LoadConfig(&cfg))
	assert.InDelta(t, 0.12, cfg.Rate, 1e-9)
}

func TestLoadConfigReportsBadValue(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("DEVICE_BUFFER", "lots")
	var cfg sampleConfig
	err := LoadConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVICE_BUFFER")
}

func TestLoadConfigRunsValidator(t *testing.T) {
	t.Setenv(FileEnv, "")
	var cfg validatedConfig
	require.Error(t, LoadConfig(&cfg))

	t.Setenv("VALIDATED_NAME", "console")
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "console", cfg.Name)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VALIDATED_NAME=from-dotenv\n"), 0o600))
	t.Setenv(DotEnvFileEnv, path)
	t.Setenv(FileEnv, "")
	t.Setenv("VALIDATED_NAME", "")
	require.NoError(t, os.Unsetenv("VALIDATED_NAME"))

	var cfg validatedConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "from-dotenv", cfg.Name)
}

func TestLoadConfigIgnoresMissingDotEnv(t *testing.T) {
	t.Setenv(DotEnvFileEnv, filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv(FileEnv, "")
	t.Setenv("VALIDATED_NAME", "set")

	var cfg validatedConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "set", cfg.Name)
}
