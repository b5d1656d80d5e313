package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "passvault.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, "passwords", cfg.Collection)
	assert.Equal(t, "aes-256-gcm", cfg.CipherAlgorithm)
	assert.Equal(t, []string{"http://localhost:5173", "https://password-manager-eseh.onrender.com"}, cfg.AllowedOrigins)
	assert.Zero(t, cfg.DeleteMissLimit, "delete limiting is opt-in")
	assert.Equal(t, 15*time.Minute, cfg.DeleteMissWindow)
	assert.Equal(t, 5*time.Second, cfg.StoreConnectTimeout)
	assert.Empty(t, cfg.GRPCHealthAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
http_addr: ":8080"
collection: vault
cipher_algorithm: xchacha20-poly1305
store_connect_timeout: 2s
allowed_origins: ["https://a.example"]
delete_miss_limit: 3
`)
	cfg, err := Load(path, envOf(map[string]string{
		"PV_COLLECTION":      "vault_env",
		"PV_HEALTH_INTERVAL": "1m",
		"PV_ALLOWED_ORIGINS": " https://b.example , ,https://c.example",
		"PV_DEV":             "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "vault_env", cfg.Collection)
	assert.Equal(t, "xchacha20-poly1305", cfg.CipherAlgorithm)
	assert.Equal(t, 2*time.Second, cfg.StoreConnectTimeout)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.DeleteMissLimit)
	assert.True(t, cfg.Dev)
}

func TestLoad_PortAndAddrPrecedence(t *testing.T) {
	cfg, err := Load("", envOf(map[string]string{"PORT": "4000"}))
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.HTTPAddr)

	cfg, err = Load("", envOf(map[string]string{"PORT": "4000", "PV_HTTP_ADDR": "127.0.0.1:9000"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envOf(nil))
	require.Error(t, err)

	_, err = Load(writeFile(t, "no_such_key: 1\n"), envOf(nil))
	require.Error(t, err)

	_, err = Load("", envOf(map[string]string{"PV_HEALTH_INTERVAL": "soon"}))
	require.ErrorContains(t, err, "PV_HEALTH_INTERVAL")

	_, err = Load("", envOf(map[string]string{"PV_DELETE_MISS_LIMIT": "many"}))
	require.ErrorContains(t, err, "PV_DELETE_MISS_LIMIT")

	_, err = Load("", envOf(map[string]string{"PV_DEV": "maybe"}))
	require.ErrorContains(t, err, "PV_DEV")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty addr":       func(c *Config) { c.HTTPAddr = "" },
		"empty dsn":        func(c *Config) { c.DSN = "" },
		"bad collection":   func(c *Config) { c.Collection = `pass"words` },
		"upper collection": func(c *Config) { c.Collection = "Passwords" },
		"bad algorithm":    func(c *Config) { c.CipherAlgorithm = "des" },
		"zero interval":    func(c *Config) { c.HealthInterval = 0 },
		"negative limit":   func(c *Config) { c.DeleteMissLimit = -1 },
		"zero window":      func(c *Config) { c.DeleteMissWindow = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}

	c := Default()
	c.DeleteMissLimit = 0
	c.DeleteMissWindow = 0
	require.NoError(t, c.Validate(), "window is irrelevant when limiting is disabled")
}

func TestCipherKeyBytes(t *testing.T) {
	c := Default()
	_, err := c.CipherKeyBytes()
	require.ErrorContains(t, err, "not set")

	c.CipherKey = "zz"
	_, err = c.CipherKeyBytes()
	require.ErrorContains(t, err, "hex")

	c.CipherKey = strings.Repeat("ab", 16)
	_, err = c.CipherKeyBytes()
	require.ErrorContains(t, err, "needs 32")

	c.CipherKey = strings.Repeat("ab", 32) + "\n"
	key, err := c.CipherKeyBytes()
	require.NoError(t, err)
	require.Len(t, key, 32)

	c.CipherAlgorithm = "aes-128-cbc"
	c.CipherKey = strings.Repeat("01", 16)
	key, err = c.CipherKeyBytes()
	require.NoError(t, err)
	require.Len(t, key, 16)
}
