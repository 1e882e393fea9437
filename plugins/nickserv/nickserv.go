// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package nickserv identifies with NickServ on connect and periodically
// checks that the bot is holding its configured nick, GHOSTing and
// reclaiming it if not.
package nickserv

import (
	"fmt"
	"time"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/timer"
)

const watcherInterval = 90 * time.Second

// Plugin identifies with NickServ on IRC_ONCONNECT and watches for the
// bot running under a collision-suffixed nick, reclaiming the
// configured one via GHOST when it finds itself off-nick.
type Plugin struct {
	password string
	wantNick string
}

// New creates a nickserv plugin. The NickServ account password is read
// from the plugin's "password" config key in Register.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string     { return "nickserv" }
func (p *Plugin) InstallAs() string { return "nickserv" }

func (p *Plugin) Register(ctx *aib.Context, cfg component.Config, r *component.Registrar[*aib.Context]) error {
	p.password = cfg.GetString("password")
	p.wantNick = ctx.Config.IRC.Nick

	if p.password == "" {
		return fmt.Errorf("nickserv: password is required")
	}

	return r.Events.GetOrMake("IRC_ONCONNECT").Observe(func(ctx *aib.Context, args ...any) {
		p.identify(ctx)
		r.Timers.Clear("nickserv", p.watcher)
		_ = r.Timers.Set("nickserv", p.watcher, timer.Every(watcherInterval))
	})
}

func (p *Plugin) watcher(ctx *aib.Context, name string) {
	if ctx.BotNick() != p.wantNick {
		p.identify(ctx)
	}
}

func (p *Plugin) identify(ctx *aib.Context) {
	if ctx.BotNick() != p.wantNick {
		ctx.PRIVMSG("nickserv", fmt.Sprintf("GHOST %s %s", p.wantNick, p.password))
		ctx.NICK(p.wantNick)
	}
	ctx.PRIVMSG("nickserv", "IDENTIFY "+p.password)
}
