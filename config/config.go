// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package config loads the bot's YAML configuration through viper,
// with environment variable override and optional fsnotify-backed live
// reload, and decodes it into the typed Config tree the rest of the
// framework consumes.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// IRC holds everything needed to dial and register with a server.
type IRC struct {
	// Servers accepts "host", "host:port", "ssl:host", or
	// "ssl:host:port" entries; default port 6667 when omitted.
	Servers  []string `mapstructure:"servers"`
	Nick     string   `mapstructure:"nick"`
	User     string   `mapstructure:"user"`
	Realname string   `mapstructure:"realname"`
	Password string   `mapstructure:"password"`
	// AutoPing is the PING interval in seconds; 0 disables.
	AutoPing int `mapstructure:"auto_ping"`

	Proxy string `mapstructure:"proxy"` // socks5://... or socks4a://...

	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`
	TLSClientCert string `mapstructure:"tls_client_cert"`
	TLSClientKey  string `mapstructure:"tls_client_key"`

	// Encoding names a golang.org/x/text/encoding.Encoding by its
	// IANA name (e.g. "windows-1252"); empty means UTF-8 passthrough.
	Encoding string `mapstructure:"encoding"`

	SASL SASL `mapstructure:"sasl"`
}

// SASL configures IRCv3 SASL PLAIN authentication during registration.
type SASL struct {
	Mechanism string `mapstructure:"mechanism"` // "" or "PLAIN"
	Login     string `mapstructure:"login"`
	Password  string `mapstructure:"password"`
}

// Channels controls autojoin behavior and whether the joined-channel
// set persists across restarts via storage.
type Channels struct {
	Autojoin []string `mapstructure:"autojoin"`
	DB       bool     `mapstructure:"db"`
}

// Triggers controls command-word activation.
type Triggers struct {
	Prefix string `mapstructure:"prefix"` // default "!"
}

// Plugins controls plugin/component name resolution and load order.
type Plugins struct {
	// Base is decoded from "plugins.base" but nothing in this module
	// resolves plugin names against it; aibotctl looks each Load name
	// up as-is in its built-in registry.
	Base string   `mapstructure:"base"`
	Load []string `mapstructure:"load"`
}

// Components controls component load order, independent of Plugins'
// separate config namespace.
type Components struct {
	Load []string `mapstructure:"load"`
}

// DB configures the storage backend.
type DB struct {
	Backend string         `mapstructure:"backend"` // "", "memory", "sqlite"
	Driver  map[string]any `mapstructure:"driver"`
}

// Config is the root configuration tree.
type Config struct {
	IRC        IRC        `mapstructure:"irc"`
	Channels   Channels   `mapstructure:"channels"`
	Triggers   Triggers   `mapstructure:"triggers"`
	Plugins    Plugins    `mapstructure:"plugins"`
	Components Components `mapstructure:"components"`
	DB         DB         `mapstructure:"db"`
}

// Defaults mirror the framework's documented defaults, applied before
// any file or environment value is read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("irc.auto_ping", 600)
	v.SetDefault("triggers.prefix", "!")
}

// Loader owns a viper instance bound to one config file and exposes
// decode-on-demand plus optional live reload.
type Loader struct {
	v    *viper.Viper
	path string
}

// New creates a Loader. path may be empty, in which case New searches
// "./config.yaml", "$HOME/.aib/config.yaml", and "/etc/aib/config.yaml" in
// that order, matching the search order the framework documents.
func New(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aib")
		v.AddConfigPath("/etc/aib")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	return &Loader{v: v, path: v.ConfigFileUsed()}, nil
}

// Path returns the config file actually loaded.
func (l *Loader) Path() string { return l.path }

// Load decodes the current viper state into a Config, validating the
// fields the runtime requires to be non-empty.
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.IRC.Servers) == 0 {
		return fmt.Errorf("config: irc.servers must list at least one server")
	}
	if cfg.IRC.Nick == "" {
		return fmt.Errorf("config: irc.nick is required")
	}
	if cfg.Triggers.Prefix == "" {
		cfg.Triggers.Prefix = "!"
	}
	return nil
}

// Server is one resolved entry from IRC.Servers.
type Server struct {
	Host string
	Port int
	TLS  bool
}

// ParseServer parses a "host", "host:port", "ssl:host", or
// "ssl:host:port" entry, defaulting to port 6667.
func ParseServer(spec string) (Server, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	tls := false
	if rest, ok := strings.CutPrefix(s, "ssl://"); ok {
		tls, s = true, rest
	} else if rest, ok := strings.CutPrefix(s, "ssl:"); ok {
		tls, s = true, rest
	}

	host, portStr, hasPort := strings.Cut(s, ":")
	if host == "" {
		return Server{}, fmt.Errorf("config: bad server string %q", spec)
	}

	port := 6667
	if hasPort {
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 {
			return Server{}, fmt.Errorf("config: bad server string %q", spec)
		}
		port = p
	}

	return Server{Host: host, Port: port, TLS: tls}, nil
}

// Section is a Loader view scoped under one dotted key prefix (e.g.
// "plugins.karma", or a top-level component name such as "channels"),
// satisfying component.Config
// without this package needing to import component (which would create
// an import cycle, since component composes a Registrar that other
// packages depend on).
type Section struct {
	v      *viper.Viper
	prefix string
}

// Section returns a view scoped to prefix + "." + name.
func (l *Loader) Section(prefix, name string) *Section {
	key := name
	if prefix != "" {
		key = prefix + "." + name
	}
	return &Section{v: l.v, prefix: key}
}

func (s *Section) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + "." + k
}

func (s *Section) UnmarshalKey(key string, out any) error {
	return s.v.UnmarshalKey(s.key(key), out)
}

func (s *Section) GetString(key string) string        { return s.v.GetString(s.key(key)) }
func (s *Section) GetBool(key string) bool            { return s.v.GetBool(s.key(key)) }
func (s *Section) GetStringSlice(key string) []string { return s.v.GetStringSlice(s.key(key)) }

// Watch starts watching the config file for changes, invoking fn with
// the freshly decoded Config on every change. Decode errors are
// reported to fn's error parameter instead of panicking the watcher;
// the prior Config returned by Load remains in effect until a reload
// succeeds. Watch returns immediately; it does not block.
func (l *Loader) Watch(fn func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load()
		fn(cfg, err)
	})
	l.v.WatchConfig()
}
