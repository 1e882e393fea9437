// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package karma

import (
	"io"
	"log"
	"testing"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/config"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/trigger"
)

type fakeConfig struct{}

func (fakeConfig) UnmarshalKey(string, any) error { return nil }
func (fakeConfig) GetString(string) string        { return "" }
func (fakeConfig) GetBool(string) bool            { return false }
func (fakeConfig) GetStringSlice(string) []string { return nil }

func testClient(t *testing.T) *aib.Client {
	t.Helper()
	cfg := &config.Config{
		IRC:      config.IRC{Servers: []string{"127.0.0.1:0"}, Nick: "aib", User: "aib", Realname: "aib"},
		Triggers: config.Triggers{Prefix: "!"},
		DB:       config.DB{Backend: "memory"},
	}
	c, err := aib.NewWithConfig(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func registrarFor(c *aib.Client) *component.Registrar[*aib.Context] {
	ctx := c.Context()
	return &component.Registrar[*aib.Context]{
		Events:   ctx.Events,
		Triggers: ctx.Triggers,
		Timers:   ctx.Timers,
		Signals:  ctx.Signals,
		Parser:   ctx.Parser,
		Storage:  ctx.Storage,
	}
}

func TestScanAppliesNetChangePerLine(t *testing.T) {
	c := testClient(t)
	ctx := c.Context()
	p := New()
	if err := p.Register(ctx, fakeConfig{}, registrarFor(c)); err != nil {
		t.Fatal(err)
	}

	msg := &ircmsg.Message{
		Kind:    "PRIVMSG",
		Channel: "#chan",
		Sender:  ircmsg.Sender{Nick: "alice", User: "alice"},
		Text:    "gophers++ gophers++ rust--",
	}
	p.scan(msg)

	if got := p.get("gophers"); got != 2 {
		t.Fatalf("gophers karma = %d, want 2", got)
	}
	if got := p.get("rust"); got != -1 {
		t.Fatalf("rust karma = %d, want -1", got)
	}
}

func TestScanIgnoresSelfBump(t *testing.T) {
	c := testClient(t)
	ctx := c.Context()
	p := New()
	if err := p.Register(ctx, fakeConfig{}, registrarFor(c)); err != nil {
		t.Fatal(err)
	}

	msg := &ircmsg.Message{
		Kind:    "PRIVMSG",
		Channel: "#chan",
		Sender:  ircmsg.Sender{Nick: "alice", User: "alice"},
		Text:    "alice++",
	}
	p.scan(msg)

	if got := p.get("alice"); got != 0 {
		t.Fatalf("alice karma = %d, want 0 (self-bump should be ignored)", got)
	}
}

func TestStatsReportsCurrentKarma(t *testing.T) {
	c := testClient(t)
	ctx := c.Context()
	p := New()
	if err := p.Register(ctx, fakeConfig{}, registrarFor(c)); err != nil {
		t.Fatal(err)
	}
	p.set("bob", 5)

	var reply string
	call := &trigger.Call{
		Msg:  &ircmsg.Message{Sender: ircmsg.Sender{Nick: "alice", User: "alice"}, Reply: func(s string) { reply = s }},
		Args: []string{"bob"},
	}
	p.stats(ctx, call)

	if reply != "Karma for bob is 5" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestStatsCrushesScannerOverNineThousand(t *testing.T) {
	c := testClient(t)
	ctx := c.Context()
	p := New()
	if err := p.Register(ctx, fakeConfig{}, registrarFor(c)); err != nil {
		t.Fatal(err)
	}
	p.set("legend", 9001)

	var replies []string
	call := &trigger.Call{
		Msg:  &ircmsg.Message{Sender: ircmsg.Sender{Nick: "alice", User: "alice"}, Reply: func(s string) { replies = append(replies, s) }},
		Args: []string{"legend"},
	}
	p.stats(ctx, call)

	if !p.scannerArmed() {
		// crushed as expected
	} else {
		t.Fatal("expected scanner to be disarmed after a >9000 lookup")
	}
	if len(replies) != 3 || replies[1] != "It's Over 9000!" {
		t.Fatalf("replies = %v", replies)
	}

	// Scanner is crushed: a subsequent stats call refuses instead of
	// reporting a value.
	var reply2 string
	call2 := &trigger.Call{
		Msg: &ircmsg.Message{Sender: ircmsg.Sender{Nick: "alice", User: "alice"}, Reply: func(s string) { reply2 = s }},
	}
	p.stats(ctx, call2)
	if reply2 == "" {
		t.Fatal("expected a refusal reply while the scanner is crushed")
	}
}

func TestGiftRearmsScannerOnlyWhenCrushed(t *testing.T) {
	c := testClient(t)
	ctx := c.Context()
	p := New()
	if err := p.Register(ctx, fakeConfig{}, registrarFor(c)); err != nil {
		t.Fatal(err)
	}
	p.disarmScanner()

	var reply string
	msg := &ircmsg.Message{
		Channel: "#chan",
		Sender:  ircmsg.Sender{Nick: "alice", User: "alice"},
		Text:    "\x01ACTION gives aib a karma scanner.\x01",
		Reply:   func(s string) { reply = s },
	}
	p.maybeAcceptGift(ctx, msg)

	if !p.scannerArmed() {
		t.Fatal("expected the gift to rearm the scanner")
	}
	if reply != "Thanks alice I needed that!" {
		t.Fatalf("reply = %q", reply)
	}
}
