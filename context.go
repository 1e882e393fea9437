// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package aib wires the framework's leaf packages — socket, ircmsg,
// event, timer, trigger, signal, component, storage, and config — into a
// runnable IRC client: the connect/registration state machine, the
// built-in PING/auto-ping/nick-collision handlers, the outbound send
// helpers, and the component/plugin load sequence.
package aib

import (
	"log"
	"os"
	"sync"

	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/config"
	"github.com/tinyreef/aib/event"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/signal"
	"github.com/tinyreef/aib/socket"
	"github.com/tinyreef/aib/storage"
	"github.com/tinyreef/aib/timer"
	"github.com/tinyreef/aib/trigger"
)

// Context is the process-wide handle every observer, timer callback,
// trigger handler, and component receives as its first argument. It is
// created once by New and lives for the process lifetime; the
// connect/reconnect loop recreates only the transport underneath it.
type Context struct {
	Config *config.Config
	Log    *log.Logger

	Events     *event.Events[*Context]
	Timers     *timer.Timers[*Context]
	Triggers   *trigger.Triggers[*Context]
	Signals    *signal.Signals[*Context]
	Parser     *ircmsg.Parser
	Storage    *storage.Store
	Components *component.Manager[*Context]
	Plugins    *component.Manager[*Context]

	// installed holds components/plugins published under a name via
	// component.Installer, keyed by that name.
	installedMu sync.RWMutex
	installed   map[string]any

	mu         sync.RWMutex
	botnick    string
	botsender  ircmsg.Sender
	server     string
	registered bool
	channels   map[string]struct{}

	client *Client
}

func newContext(cfg *config.Config, logger *log.Logger, store *storage.Store) *Context {
	if logger == nil {
		logger = log.New(os.Stderr, "aib: ", log.LstdFlags)
	}

	ctx := &Context{
		Config:    cfg,
		Log:       logger,
		Events:    event.New[*Context](),
		Timers:    timer.New[*Context](),
		Signals:   signal.New[*Context](),
		Storage:   store,
		installed: make(map[string]any),
		channels:  make(map[string]struct{}),
		botnick:   cfg.IRC.Nick,
	}
	ctx.botsender = ircmsg.Sender{Nick: cfg.IRC.Nick, User: cfg.IRC.User}
	ctx.Triggers = trigger.New[*Context](cfg.Triggers.Prefix, ctx.BotNick)
	ctx.Parser = ircmsg.NewParser()
	ctx.Parser.ServerIdentity = ctx.ServerIdentity
	ctx.Parser.BotNick = ctx.BotNick
	ctx.Parser.SendReply = ctx.sendReply
	return ctx
}

// BotNick returns the bot's current nick, possibly collision-suffixed or
// updated from an observed self-NICK.
func (c *Context) BotNick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botnick
}

func (c *Context) setBotNick(nick string) {
	c.mu.Lock()
	c.botnick = nick
	c.botsender.Nick = nick
	c.mu.Unlock()
}

// BotSender returns the bot's self-observed nick!user@host, as last
// updated from a message the server addressed to or about the bot.
// Before the server ever reflects it back, only Nick and User are set.
func (c *Context) BotSender() ircmsg.Sender {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botsender
}

// ServerIdentity returns the identity string of the currently connected
// server, used as the default message prefix when a line carries none.
func (c *Context) ServerIdentity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Registered reports whether the 001 (RPL_WELCOME) reply has been seen
// on the current connection.
func (c *Context) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// Channels returns a snapshot of the currently joined channel set.
func (c *Context) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Context) addChannel(name string) {
	c.mu.Lock()
	c.channels[name] = struct{}{}
	c.mu.Unlock()
}

func (c *Context) removeChannel(name string) {
	c.mu.Lock()
	delete(c.channels, name)
	c.mu.Unlock()
}

// Installed returns the component or plugin instance published under
// name via component.Installer, or nil if nothing was published there.
func (c *Context) Installed(name string) any {
	c.installedMu.RLock()
	defer c.installedMu.RUnlock()
	return c.installed[name]
}

func (c *Context) install(name string, v any) {
	c.installedMu.Lock()
	c.installed[name] = v
	c.installedMu.Unlock()
}

func (c *Context) sendReply(target, text string) {
	c.PRIVMSG(target, text)
}

// sock returns the currently-connected transport, or nil when
// disconnected. Guarded separately from the attribute lock above since
// it's swapped out wholesale on every reconnect.
func (c *Context) sock() *socket.LineSocket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil
	}
	return c.client.currentSocket()
}
