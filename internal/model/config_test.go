package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".config"))
	require.NoError(t, err)

	assert.Equal(t, ProviderNylas, cfg.Provider.Type)
	assert.Equal(t, DefaultNylasAPIURI, cfg.Nylas.APIURI)
	assert.Empty(t, cfg.Nylas.ClientSecret)
	assert.Equal(t, 60, cfg.Resolver.TimeoutSec)
	assert.Equal(t, 2, cfg.Resolver.IntervalSec)
	assert.Equal(t, 60, cfg.Resolver.LookbackSec)
	assert.Equal(t, 20, cfg.Resolver.PageSize)
}

func TestLoadConfig_DotConfigIsINI(t *testing.T) {
	path := writeConfig(t, ".config", `
[nylas]
client_secret = nyk_secret

[resolver]
timeout_sec = 30
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nyk_secret", cfg.Nylas.ClientSecret)
	assert.Equal(t, DefaultNylasAPIURI, cfg.Nylas.APIURI)
	assert.Equal(t, 30, cfg.Resolver.TimeoutSec)
	assert.Equal(t, 2, cfg.Resolver.IntervalSec)
	assert.Equal(t, 30*time.Second, cfg.Resolver.Timeout())
}

func TestLoadConfig_QuotedValuesInINI(t *testing.T) {
	path := writeConfig(t, ".config", `
[provider]
type = "imap" # nylas | imap | log

[imap]
host = "imap.example.com"
tls = false
append_sent = true

[smtp]
host = smtp.example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderIMAP, cfg.Provider.Type)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	assert.False(t, cfg.IMAP.TLS)
	assert.True(t, cfg.IMAP.AppendSent)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestLoadConfig_TOMLByExtension(t *testing.T) {
	path := writeConfig(t, "mailscript.toml", `
[nylas]
client_secret = "nyk_secret"

[resolver]
page_size = 5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nyk_secret", cfg.Nylas.ClientSecret)
	assert.Equal(t, 5, cfg.Resolver.PageSize)
}

func TestINICodec_Decode(t *testing.T) {
	v := map[string]any{}
	require.NoError(t, iniCodec{}.Decode([]byte("top = 1\n[nylas]\nclient_secret = abc\n"), v))
	assert.Equal(t, "1", v["top"])
	assert.Equal(t, map[string]any{"client_secret": "abc"}, v["nylas"])
}

func TestLoadConfig_YAMLByExtension(t *testing.T) {
	path := writeConfig(t, "mailscript.yaml", `
provider:
  type: IMAP
imap:
  host: imap.example.com
smtp:
  host: smtp.example.com
  port: "587"
  tls: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderIMAP, cfg.Provider.Type)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	assert.Equal(t, "993", cfg.IMAP.Port)
	assert.True(t, cfg.IMAP.TLS)
	assert.Equal(t, "Sent", cfg.IMAP.SentMailbox)
	assert.Equal(t, "587", cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.TLS)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "[provider]\ntype = \"carrier-pigeon\"\n"},
		{"zero timeout", "[resolver]\ntimeout_sec = 0\n"},
		{"imap without host", "[provider]\ntype = \"imap\"\n"},
		{"malformed", "[nylas\nclient_secret = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, ".config", tt.body))
			assert.Error(t, err)
		})
	}
}
