package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)
	assert.Equal(t, 10*time.Second, cfg.ScanInterval)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenValidityDuration)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.NotEmpty(t, cfg.ImportDir)
	assert.NotEmpty(t, cfg.S3Bucket)
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-a", ":9999", "-i", "5", "-t", "30", "-s", "k"}

	cfg := LoadConfig()
	assert.Equal(t, ":9999", cfg.EndpointAddrHTTP)
	assert.Equal(t, 5*time.Second, cfg.ScanInterval)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, "k", cfg.SecretKey)
}
