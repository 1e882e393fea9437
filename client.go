// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package aib

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/config"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/socket"
	"github.com/tinyreef/aib/storage"
	"github.com/tinyreef/aib/storage/memdriver"
	"github.com/tinyreef/aib/storage/sqlitedriver"
)

// reconnectBackoff is how long the supervisor waits after a full pass
// through the configured server list has failed, before trying again.
const reconnectBackoff = 10 * time.Second

// Client is the outer connection supervisor: it owns the server list,
// the current transport, and the reconnect policy, and drives Context's
// dispatch tables from the bytes it reads.
type Client struct {
	loader *config.Loader
	ctx    *Context

	mu        sync.Mutex
	sock      *socket.LineSocket
	reconnect bool

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Client from a config.Loader: it decodes the configuration,
// wires a storage driver per db.backend (nil if unconfigured), and
// constructs the Component and Plugin managers with config scoped the
// way spec §4.7 describes (components read their own top-level section;
// plugins read theirs under "plugins.<name>").
func New(loader *config.Loader, logger *log.Logger) (*Client, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	driver, err := buildDriver(cfg.DB)
	if err != nil {
		return nil, err
	}
	var store *storage.Store
	if driver != nil {
		store = storage.New(driver)
	}

	ctx := newContext(cfg, logger, store)
	c := &Client{loader: loader, ctx: ctx, reconnect: true, stop: make(chan struct{})}
	ctx.client = c

	registrar := &component.Registrar[*Context]{
		Events:   ctx.Events,
		Triggers: ctx.Triggers,
		Timers:   ctx.Timers,
		Signals:  ctx.Signals,
		Parser:   ctx.Parser,
		Storage:  ctx.Storage,
	}
	ctx.Components = component.New[*Context](registrar, func(name string) component.Config {
		return loader.Section("", name)
	}, ctx.install)
	ctx.Plugins = component.New[*Context](registrar, func(name string) component.Config {
		return loader.Section("plugins", name)
	}, ctx.install)

	registerBuiltinHandlers(ctx)
	return c, nil
}

// NewWithConfig builds a Client from an already-decoded Config, with no
// backing config.Loader — component/plugin Register calls receive an
// empty Config. Meant for embedding aib in programs that assemble their
// own configuration, and for tests.
func NewWithConfig(cfg *config.Config, logger *log.Logger) (*Client, error) {
	driver, err := buildDriver(cfg.DB)
	if err != nil {
		return nil, err
	}
	var store *storage.Store
	if driver != nil {
		store = storage.New(driver)
	}

	ctx := newContext(cfg, logger, store)
	c := &Client{ctx: ctx, reconnect: true, stop: make(chan struct{})}
	ctx.client = c

	registrar := &component.Registrar[*Context]{
		Events:   ctx.Events,
		Triggers: ctx.Triggers,
		Timers:   ctx.Timers,
		Signals:  ctx.Signals,
		Parser:   ctx.Parser,
		Storage:  ctx.Storage,
	}
	ctx.Components = component.New[*Context](registrar, nil, ctx.install)
	ctx.Plugins = component.New[*Context](registrar, nil, ctx.install)

	registerBuiltinHandlers(ctx)
	return c, nil
}

func buildDriver(db config.DB) (storage.Driver, error) {
	switch db.Backend {
	case "":
		return nil, nil
	case "memory":
		return memdriver.New(), nil
	case "sqlite":
		path, _ := db.Driver["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("aib: db.driver.path is required for the sqlite backend")
		}
		return sqlitedriver.Open(path)
	default:
		return nil, fmt.Errorf("aib: unknown db.backend %q", db.Backend)
	}
}

// Context returns the Client's process-wide handle. Components and
// plugins never need this directly — they receive it as their Register
// and handler argument — but embedding programs do, e.g. to publish
// their own events before Run starts.
func (c *Client) Context() *Context { return c.ctx }

// Run dials the configured server list in order, performing registration
// on each successful connect, and keeps running until stdctx is
// cancelled or Close/Die is called. After a full pass through the server
// list fails, it waits reconnectBackoff before trying again.
func (c *Client) Run(stdctx context.Context) error {
	go c.ctx.Timers.Run(c.ctx, c.stop)

	servers := c.ctx.Config.IRC.Servers
	if len(servers) == 0 {
		return fmt.Errorf("aib: irc.servers is empty")
	}

	idx := 0
	for {
		select {
		case <-c.stop:
			return nil
		case <-stdctx.Done():
			c.shutdown("Received a ctrl+c exiting")
			return stdctx.Err()
		default:
		}

		spec := servers[idx]
		idx = (idx + 1) % len(servers)

		err := c.connectOnce(stdctx, spec)
		if err != nil {
			c.ctx.Log.Printf("aib: connection to %s: %v", spec, err)
		}

		c.mu.Lock()
		reconnect := c.reconnect
		c.mu.Unlock()
		if !reconnect {
			return nil
		}

		if idx == 0 {
			select {
			case <-time.After(reconnectBackoff):
			case <-c.stop:
				return nil
			case <-stdctx.Done():
				c.shutdown("Received a ctrl+c exiting")
				return stdctx.Err()
			}
		}
	}
}

func (c *Client) connectOnce(stdctx context.Context, spec string) error {
	srv, err := config.ParseServer(spec)
	if err != nil {
		return err
	}

	sockConf := socket.Config{
		Host:     srv.Host,
		Port:     srv.Port,
		TLS:      srv.TLS,
		ProxyURL: c.ctx.Config.IRC.Proxy,
	}
	if c.ctx.Config.IRC.TLSSkipVerify {
		sockConf.TLSConfig = &tls.Config{ServerName: srv.Host, InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	if name := c.ctx.Config.IRC.Encoding; name != "" {
		enc, err := resolveEncoding(name)
		if err != nil {
			return err
		}
		sockConf.Encoding = enc
	}

	sock := socket.New(sockConf)
	if err := sock.Connect(stdctx); err != nil {
		return err
	}

	c.setSocket(sock)
	defer c.setSocket(nil)

	c.ctx.mu.Lock()
	c.ctx.server = srv.Host
	c.ctx.registered = false
	c.ctx.mu.Unlock()

	c.ctx.Events.Get("IRC_SOCKET_CONNECT").Fire(c.ctx, srv.Host)

	runErr := make(chan error, 1)
	go func() { runErr <- sock.Run() }()

	if err := c.handshake(stdctx, sock); err != nil {
		sock.Close()
		<-runErr
		return err
	}

	readErr := c.readLoop(stdctx, sock)

	sock.Close()
	<-runErr
	return readErr
}

// handshake sends the initial registration lines, negotiating SASL first
// when configured. It does not wait for 001 — that transition, along
// with 433 nick-collision retry, is handled by builtin event observers
// once readLoop starts, the same dispatch path ordinary handlers use.
func (c *Client) handshake(stdctx context.Context, sock *socket.LineSocket) error {
	cfg := c.ctx.Config.IRC

	if cfg.SASL.Mechanism != "" {
		if err := c.negotiateSASL(stdctx, sock, cfg.SASL); err != nil {
			return err
		}
	}

	if cfg.Password != "" {
		sock.WriteLine("PASS " + cfg.Password)
	}
	sock.WriteLine("NICK " + c.ctx.BotNick())
	sock.WriteLine(fmt.Sprintf("USER %s 0 * :%s", cfg.User, cfg.Realname))
	return nil
}

func (c *Client) readLoop(stdctx context.Context, sock *socket.LineSocket) error {
	for {
		line, err := sock.ReadLine(stdctx)
		if err != nil {
			return err
		}
		c.ctx.Events.Get("IRC_RAW_MSG").Fire(c.ctx, line)

		msg := c.ctx.Parser.Parse(line)
		if !msg.Valid() {
			continue
		}
		c.dispatchMessage(msg)
	}
}

func (c *Client) dispatchMessage(msg *ircmsg.Message) {
	c.ctx.Events.Get("IRC_MSG_" + msg.Kind).Fire(c.ctx, msg)
	c.ctx.Events.Get("IRC_MSG").Fire(c.ctx, msg)
	if msg.Kind == "PRIVMSG" {
		c.ctx.Triggers.Dispatch(c.ctx, msg)
	}
}

func (c *Client) setSocket(s *socket.LineSocket) {
	c.mu.Lock()
	c.sock = s
	c.mu.Unlock()
}

func (c *Client) currentSocket() *socket.LineSocket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

// Close sends "QUIT :Received a ctrl+c exiting", disables reconnection,
// and lets Run fall out of the connect loop.
func (c *Client) Close() { c.shutdown("Received a ctrl+c exiting") }

// Die sends a QUIT with msg and disables reconnection.
func (c *Client) Die(msg string) { c.shutdown(msg) }

// Cycle sends "QUIT :Reconnecting" but leaves the reconnect policy in
// place, so Run dials the next server in the list; when the list wraps
// back to its first server (always, with a single server) Run waits
// reconnectBackoff first.
func (c *Client) Cycle() {
	c.quitAndClose("Reconnecting")
}

func (c *Client) shutdown(msg string) {
	c.mu.Lock()
	c.reconnect = false
	c.mu.Unlock()

	c.quitAndClose(msg)
	c.stopOnce.Do(func() { close(c.stop) })
}

// quitAndClose enqueues a QUIT line and closes the transport. WriteLine
// only enqueues onto the writer goroutine's queue, so a brief grace
// period is given for it to actually reach the wire before the
// connection is torn out from under it.
func (c *Client) quitAndClose(reason string) {
	c.ctx.RAW("QUIT :" + reason)
	s := c.currentSocket()
	if s == nil {
		return
	}
	time.Sleep(100 * time.Millisecond)
	s.Close()
}
