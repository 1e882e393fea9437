// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package aib

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/timer"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

const autoPingTimer = "auto-ping"

// registerBuiltinHandlers installs the protocol-level observers every
// Client needs regardless of which components or plugins load: PING
// keepalive, the 001/433 registration transitions, and self-NICK/JOIN/
// PART bookkeeping on Context.
func registerBuiltinHandlers(ctx *Context) {
	ctx.Events.GetOrMake("IRC_MSG_PING").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}
		ctx.RAW("PONG :" + msg.Args)
		ctx.Timers.Reset(autoPingTimer, autoPingCallback)
	})

	ctx.Events.GetOrMake("IRC_MSG_001").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}

		ctx.mu.Lock()
		ctx.server = msg.Sender.Raw
		ctx.registered = true
		ctx.mu.Unlock()

		ctx.Events.Get("IRC_ONCONNECT").Fire(ctx)

		if ap := ctx.Config.IRC.AutoPing; ap > 0 {
			_ = ctx.Timers.Set(autoPingTimer, autoPingCallback, timer.Every(time.Duration(ap)*time.Second))
		}

		// When channels.db is set, the channels plugin owns autojoin:
		// it merges the configured list with the persisted one and
		// joins itself. Without that plugin loaded, nothing joins —
		// the same tradeoff channels.db implies in spec.md §6.
		if len(ctx.Config.Channels.Autojoin) > 0 && !ctx.Config.Channels.DB {
			ctx.JOIN(ctx.Config.Channels.Autojoin...)
		}
	})

	ctx.Events.GetOrMake("IRC_MSG_433").Observe(func(ctx *Context, args ...any) {
		if ctx.Registered() {
			return
		}
		old := ctx.BotNick()
		ctx.Events.Get("IRC_NICK_INUSE").Fire(ctx, old)
		ctx.NICK(old + "_")
	})

	ctx.Events.GetOrMake("IRC_MSG_NICK").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}
		old := ctx.BotNick()
		if !strings.EqualFold(msg.Sender.Nick, old) {
			return
		}
		next := strings.TrimPrefix(msg.Args, ":")
		ctx.setBotNick(next)
		ctx.Events.Get("IRC_NICK_CHANGE").Fire(ctx, old, next)
	})

	ctx.Events.GetOrMake("IRC_MSG_JOIN").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}
		if strings.EqualFold(msg.Sender.Nick, ctx.BotNick()) {
			ctx.addChannel(msg.Channel)
			ctx.mu.Lock()
			ctx.botsender = msg.Sender
			ctx.mu.Unlock()
		}
	})

	ctx.Events.GetOrMake("IRC_MSG_PART").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}
		if strings.EqualFold(msg.Sender.Nick, ctx.BotNick()) {
			ctx.removeChannel(msg.Channel)
		}
	})

	ctx.Events.GetOrMake("IRC_MSG_KICK").Observe(func(ctx *Context, args ...any) {
		msg, ok := args[0].(*ircmsg.Message)
		if !ok {
			return
		}
		if strings.EqualFold(msg.Victim, ctx.BotNick()) {
			ctx.removeChannel(msg.Channel)
		}
	})
}

func autoPingCallback(ctx *Context, name string) {
	ctx.RAW("PING :" + ctx.ServerIdentity())
}

// resolveEncoding looks up name (an IANA MIME name such as
// "windows-1252") against golang.org/x/text's registry.
func resolveEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("aib: unknown irc.encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("aib: unknown irc.encoding %q", name)
	}
	return enc, nil
}
