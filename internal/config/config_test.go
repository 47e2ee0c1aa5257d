package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEISMIC_PROXY_UPSTREAM", "http://127.0.0.1:8545")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8546", cfg.ListenAddr)
	require.Equal(t, "127.0.0.1:8545", cfg.Upstream.Host)
	require.Equal(t, ModeAll, cfg.Mode)
	require.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	require.True(t, cfg.MetricsEnabled)
	require.False(t, cfg.HasSigner())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEISMIC_PROXY_UPSTREAM", "https://node.example:8545")
	t.Setenv("SEISMIC_PROXY_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("SEISMIC_PROXY_MODE", "call_only")
	t.Setenv("SEISMIC_PROXY_UPSTREAM_TIMEOUT", "5s")
	t.Setenv("SEISMIC_PROXY_MAX_BODY_BYTES", "1024")
	t.Setenv("SEISMIC_PROXY_METRICS_ENABLED", "false")
	t.Setenv("SEISMIC_PROXY_PRIVATE_KEY", "0xabc")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	require.Equal(t, "https", cfg.Upstream.Scheme)
	require.Equal(t, ModeCallOnly, cfg.Mode)
	require.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, int64(1024), cfg.MaxBodyBytes)
	require.False(t, cfg.MetricsEnabled)
	require.True(t, cfg.HasSigner())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream: http://10.0.0.1:8545\nmode: \"off\"\n"), 0o600))
	t.Setenv("SEISMIC_PROXY_LISTEN_ADDR", "127.0.0.1:7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:8545", cfg.Upstream.Host)
	require.Equal(t, ModeOff, cfg.Mode)
	require.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing upstream", map[string]string{}},
		{"bad scheme", map[string]string{"SEISMIC_PROXY_UPSTREAM": "ws://127.0.0.1:8546"}},
		{"bad mode", map[string]string{"SEISMIC_PROXY_UPSTREAM": "http://x", "SEISMIC_PROXY_MODE": "sometimes"}},
		{"zero timeout", map[string]string{"SEISMIC_PROXY_UPSTREAM": "http://x", "SEISMIC_PROXY_UPSTREAM_TIMEOUT": "0s"}},
		{"negative body limit", map[string]string{"SEISMIC_PROXY_UPSTREAM": "http://x", "SEISMIC_PROXY_MAX_BODY_BYTES": "-1"}},
		{"two signers", map[string]string{
			"SEISMIC_PROXY_UPSTREAM":    "http://x",
			"SEISMIC_PROXY_PRIVATE_KEY": "0x01",
			"SEISMIC_PROXY_MNEMONIC":    "abandon",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SEISMIC_PROXY_UPSTREAM", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestEncrypts(t *testing.T) {
	all := &Config{Mode: ModeAll}
	require.True(t, all.Encrypts("eth_call"))
	require.True(t, all.Encrypts("eth_sendTransaction"))
	require.False(t, all.Encrypts("eth_sendRawTransaction"))

	callOnly := &Config{Mode: ModeCallOnly}
	require.True(t, callOnly.Encrypts("eth_call"))
	require.False(t, callOnly.Encrypts("eth_sendTransaction"))

	off := &Config{Mode: ModeOff}
	require.False(t, off.Encrypts("eth_call"))
}
