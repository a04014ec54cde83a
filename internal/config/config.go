// Package config loads nassync settings from an optional TOML file with
// environment overrides on top. Environment always wins, so a deployment can
// keep credentials out of the file entirely.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"

	"github.com/avlasov/nassync/internal/dialer"
	"github.com/avlasov/nassync/internal/routeros"
)

// addressPlaceholder is the unconfigured marker some deployments ship in
// their config template; it is rejected like an empty address.
const addressPlaceholder = "<NAS IP>"

type Config struct {
	NAS  NASConfig
	Sync SyncConfig
}

// NASConfig describes the device endpoint and credentials.
type NASConfig struct {
	Address        string        `env:"NASSYNC_NAS_ADDRESS"`
	Port           int           `env:"NASSYNC_NAS_PORT"`
	Username       string        `env:"NASSYNC_NAS_USERNAME"`
	Password       string        `env:"NASSYNC_NAS_PASSWORD"`
	ConnectTimeout time.Duration `env:"NASSYNC_CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `env:"NASSYNC_READ_TIMEOUT"`
	WriteTimeout   time.Duration `env:"NASSYNC_WRITE_TIMEOUT"`
}

// SyncConfig tunes the synchronization behavior around the session.
type SyncConfig struct {
	AllowList    string        `env:"NASSYNC_ALLOW_LIST"`
	ProbeCount   int           `env:"NASSYNC_PROBE_COUNT"`
	ProbeTimeout time.Duration `env:"NASSYNC_PROBE_TIMEOUT"`
}

func Default() Config {
	return Config{
		NAS: NASConfig{
			Port: routeros.DefaultPort,
		},
		Sync: SyncConfig{
			AllowList:  routeros.DefaultAllowList,
			ProbeCount: 3,
		},
	}
}

type fileConfig struct {
	NAS struct {
		Address        string `toml:"address"`
		Port           int    `toml:"port"`
		Username       string `toml:"username"`
		Password       string `toml:"password"`
		ConnectTimeout string `toml:"connect_timeout"`
		ReadTimeout    string `toml:"read_timeout"`
		WriteTimeout   string `toml:"write_timeout"`
	} `toml:"nas"`
	Sync struct {
		AllowList    string `toml:"allow_list"`
		ProbeCount   int    `toml:"probe_count"`
		ProbeTimeout string `toml:"probe_timeout"`
	} `toml:"sync"`
}

// Load builds the effective configuration: defaults, then the TOML file when
// path is non-empty, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := applyFile(&cfg, raw, meta); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg.NAS); err != nil {
		return Config{}, fmt.Errorf("parsing nas env config: %w", err)
	}
	if err := env.Parse(&cfg.Sync); err != nil {
		return Config{}, fmt.Errorf("parsing sync env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("nas", "address") {
		cfg.NAS.Address = strings.TrimSpace(raw.NAS.Address)
	}
	if meta.IsDefined("nas", "port") {
		cfg.NAS.Port = raw.NAS.Port
	}
	if meta.IsDefined("nas", "username") {
		cfg.NAS.Username = raw.NAS.Username
	}
	if meta.IsDefined("nas", "password") {
		cfg.NAS.Password = raw.NAS.Password
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.NAS.ConnectTimeout, &cfg.NAS.ConnectTimeout},
		{"read_timeout", raw.NAS.ReadTimeout, &cfg.NAS.ReadTimeout},
		{"write_timeout", raw.NAS.WriteTimeout, &cfg.NAS.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("nas", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse nas.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("sync", "allow_list") {
		cfg.Sync.AllowList = raw.Sync.AllowList
	}
	if meta.IsDefined("sync", "probe_count") {
		cfg.Sync.ProbeCount = raw.Sync.ProbeCount
	}
	if meta.IsDefined("sync", "probe_timeout") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Sync.ProbeTimeout))
		if err != nil {
			return fmt.Errorf("parse sync.probe_timeout: %w", err)
		}
		cfg.Sync.ProbeTimeout = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.NAS.Address == "" || c.NAS.Address == addressPlaceholder {
		return errors.New("config: NAS address is not specified")
	}
	if c.NAS.Username == "" {
		return errors.New("config: NAS username is required")
	}
	if c.NAS.Port < 1 || c.NAS.Port > 65535 {
		return fmt.Errorf("config: invalid NAS port %d", c.NAS.Port)
	}
	if c.Sync.ProbeCount < 1 {
		return fmt.Errorf("config: invalid probe count %d", c.Sync.ProbeCount)
	}
	return nil
}

// Dialer maps the configuration onto the connect pipeline.
func (c Config) Dialer() dialer.Config {
	return dialer.Config{
		Session: routeros.Config{
			Address:        c.NAS.Address,
			Port:           c.NAS.Port,
			Username:       c.NAS.Username,
			Password:       c.NAS.Password,
			ConnectTimeout: c.NAS.ConnectTimeout,
			ReadTimeout:    c.NAS.ReadTimeout,
			WriteTimeout:   c.NAS.WriteTimeout,
		},
		AllowList:    c.Sync.AllowList,
		ProbeCount:   c.Sync.ProbeCount,
		ProbeTimeout: c.Sync.ProbeTimeout,
	}
}
