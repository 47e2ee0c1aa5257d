package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	// ModeOff forwards every request verbatim.
	ModeOff Mode = "off"
	// ModeCallOnly encrypts eth_call and forwards sends verbatim.
	ModeCallOnly Mode = "call_only"
	// ModeAll encrypts eth_call and eth_sendTransaction.
	ModeAll Mode = "all"
)

const EnvPrefix = "SEISMIC_PROXY"

const (
	keyListenAddr      = "listen_addr"
	keyUpstream        = "upstream"
	keyMode            = "mode"
	keyPrivateKey      = "private_key"
	keyMnemonic        = "mnemonic"
	keyUpstreamTimeout = "upstream_timeout"
	keyMaxBodyBytes    = "max_body_bytes"
	keyMetricsEnabled  = "metrics_enabled"
	keyDebug           = "debug"
)

type Config struct {
	ListenAddr string
	Upstream   *url.URL

	Mode Mode

	// PrivateKey and Mnemonic select the local signer. At most one may be
	// set; with neither, sends go to the node's eth_sendTransaction.
	PrivateKey string
	Mnemonic   string

	UpstreamTimeout time.Duration
	MaxBodyBytes    int64

	MetricsEnabled bool
	Debug          bool
}

// HasSigner reports whether a local signing key is configured.
func (c *Config) HasSigner() bool {
	return c.PrivateKey != "" || c.Mnemonic != ""
}

// Encrypts reports whether method is routed through the confidential
// transport in the configured mode.
func (c *Config) Encrypts(method string) bool {
	switch c.Mode {
	case ModeAll:
		return method == "eth_call" || method == "eth_sendTransaction"
	case ModeCallOnly:
		return method == "eth_call"
	default:
		return false
	}
}

// NewViper returns a viper instance reading SEISMIC_PROXY_* variables and,
// when configFile is non-empty, that file.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", configFile)
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyListenAddr, "127.0.0.1:8546")
	v.SetDefault(keyUpstream, "")
	v.SetDefault(keyMode, string(ModeAll))
	v.SetDefault(keyPrivateKey, "")
	v.SetDefault(keyMnemonic, "")
	v.SetDefault(keyUpstreamTimeout, "30s")
	v.SetDefault(keyMaxBodyBytes, 10<<20)
	v.SetDefault(keyMetricsEnabled, true)
	v.SetDefault(keyDebug, false)
}

// Load reads the environment and optional configFile and validates them.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:      strings.TrimSpace(v.GetString(keyListenAddr)),
		Mode:            Mode(strings.TrimSpace(v.GetString(keyMode))),
		PrivateKey:      strings.TrimSpace(v.GetString(keyPrivateKey)),
		Mnemonic:        strings.TrimSpace(v.GetString(keyMnemonic)),
		UpstreamTimeout: v.GetDuration(keyUpstreamTimeout),
		MaxBodyBytes:    v.GetInt64(keyMaxBodyBytes),
		MetricsEnabled:  v.GetBool(keyMetricsEnabled),
		Debug:           v.GetBool(keyDebug),
	}

	upstreamRaw := strings.TrimSpace(v.GetString(keyUpstream))
	if upstreamRaw == "" {
		return nil, fmt.Errorf("%s_UPSTREAM is required (e.g. http://127.0.0.1:8545)", EnvPrefix)
	}
	u, err := url.Parse(upstreamRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s_UPSTREAM: %w", EnvPrefix, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s_UPSTREAM must be http(s), got %q", EnvPrefix, u.Scheme)
	}
	cfg.Upstream = u

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("%s_LISTEN_ADDR cannot be empty", EnvPrefix)
	}
	switch cfg.Mode {
	case ModeOff, ModeCallOnly, ModeAll:
	default:
		return nil, fmt.Errorf("invalid %s_MODE %q (expected off|call_only|all)", EnvPrefix, cfg.Mode)
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("%s_UPSTREAM_TIMEOUT must be positive, got %q", EnvPrefix, v.GetString(keyUpstreamTimeout))
	}
	if cfg.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("%s_MAX_BODY_BYTES must be positive, got %d", EnvPrefix, cfg.MaxBodyBytes)
	}
	if cfg.PrivateKey != "" && cfg.Mnemonic != "" {
		return nil, fmt.Errorf("%s_PRIVATE_KEY and %s_MNEMONIC are mutually exclusive", EnvPrefix, EnvPrefix)
	}
	return cfg, nil
}
