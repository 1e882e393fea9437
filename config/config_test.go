// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyreef/aib/config"
)

const sampleYAML = `
irc:
  servers:
    - "ssl:irc.example.org:6697"
  nick: aib
  user: aib
  realname: "aib bot"
  auto_ping: 300
channels:
  autojoin:
    - "#aib"
triggers:
  prefix: "."
plugins:
  base: "aib.plugins"
  load:
    - karma
db:
  backend: sqlite
  driver:
    path: /var/lib/aib/aib.db
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDecodesAllSections(t *testing.T) {
	path := writeSample(t)
	l, err := config.New(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}

	if got := cfg.IRC.Nick; got != "aib" {
		t.Fatalf("Nick = %q", got)
	}
	if got := cfg.IRC.AutoPing; got != 300 {
		t.Fatalf("AutoPing = %d, want 300", got)
	}
	if len(cfg.Channels.Autojoin) != 1 || cfg.Channels.Autojoin[0] != "#aib" {
		t.Fatalf("Autojoin = %#v", cfg.Channels.Autojoin)
	}
	if cfg.Triggers.Prefix != "." {
		t.Fatalf("Prefix = %q", cfg.Triggers.Prefix)
	}
	if cfg.DB.Backend != "sqlite" {
		t.Fatalf("DB.Backend = %q", cfg.DB.Backend)
	}
}

func TestDefaultsApplyWhenKeysAreAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	minimal := "irc:\n  servers: [\"irc.example.org\"]\n  nick: aib\n"
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}

	l, err := config.New(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IRC.AutoPing != 600 {
		t.Fatalf("AutoPing default = %d, want 600", cfg.IRC.AutoPing)
	}
	if cfg.Triggers.Prefix != "!" {
		t.Fatalf("Prefix default = %q, want \"!\"", cfg.Triggers.Prefix)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("irc:\n  servers: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := config.New(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(); err == nil {
		t.Fatal("expected error for empty irc.servers")
	}
}

func TestEnvironmentOverridesFileValue(t *testing.T) {
	path := writeSample(t)
	t.Setenv("AIB_IRC_NICK", "envnick")

	l, err := config.New(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IRC.Nick != "envnick" {
		t.Fatalf("Nick = %q, want env override", cfg.IRC.Nick)
	}
}

func TestParseServerVariants(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		tls  bool
	}{
		{"irc.example.org", "irc.example.org", 6667, false},
		{"irc.example.org:6669", "irc.example.org", 6669, false},
		{"ssl:irc.example.org", "irc.example.org", 6667, true},
		{"ssl:irc.example.org:6697", "irc.example.org", 6697, true},
		{"ssl://irc.example.org:6697", "irc.example.org", 6697, true},
	}
	for _, c := range cases {
		got, err := config.ParseServer(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if got.Host != c.host || got.Port != c.port || got.TLS != c.tls {
			t.Fatalf("%q: got %+v, want {%s %d %v}", c.in, got, c.host, c.port, c.tls)
		}
	}
}

func TestSectionScopesLookupsUnderPrefix(t *testing.T) {
	path := writeSample(t)
	l, err := config.New(path)
	if err != nil {
		t.Fatal(err)
	}
	sec := l.Section("plugins", "karma")
	if got := sec.GetString("table"); got != "" {
		t.Fatalf("GetString(unset) = %q", got)
	}

	top := l.Section("", "plugins")
	if got := top.GetString("base"); got != "aib.plugins" {
		t.Fatalf("GetString(base) = %q, want aib.plugins", got)
	}
	if got := top.GetStringSlice("load"); len(got) != 1 || got[0] != "karma" {
		t.Fatalf("GetStringSlice(load) = %#v", got)
	}
}

func TestParseServerRejectsGarbage(t *testing.T) {
	if _, err := config.ParseServer("ssl:"); err == nil {
		t.Fatal("expected error for empty host")
	}
	if _, err := config.ParseServer("host:notaport"); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}
