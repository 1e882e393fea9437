// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package channels persists the bot's autojoin channel set to storage
// when channels.db is configured, merging the persisted set with the
// configured one on every connect and keeping it current as the bot
// joins and parts channels.
package channels

import (
	"sort"
	"strings"
	"sync"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/storage"
)

const bucketName = "channels"
const dbKey = "autojoin"

// Plugin owns autojoin and its persistence once loaded. The framework's
// own IRC_MSG_001 handler (see aib's handlers.go) joins the statically
// configured list only while channels.db is unset. It keeps its own
// membership set rather than reading Context's, since its own JOIN/PART
// observers and Context's run as independently-scheduled goroutines off
// the same event fire with no ordering guarantee between them.
type Plugin struct {
	db *storage.Bucket

	mu  sync.Mutex
	set map[string]struct{}
}

func New() *Plugin { return &Plugin{set: make(map[string]struct{})} }

func (p *Plugin) Name() string      { return "channels" }
func (p *Plugin) InstallAs() string { return "channels" }

func (p *Plugin) Register(_ *aib.Context, _ component.Config, r *component.Registrar[*aib.Context]) error {
	if r.Storage != nil {
		p.db = r.Storage.Bucket(bucketName)
	}

	if err := r.Events.GetOrMake("IRC_ONCONNECT").Observe(func(ctx *aib.Context, args ...any) {
		p.autojoin(ctx)
	}); err != nil {
		return err
	}

	if err := r.Events.GetOrMake("IRC_MSG_JOIN").Observe(func(ctx *aib.Context, args ...any) {
		if msg, ok := soleMessage(args); ok && strings.EqualFold(msg.Sender.Nick, ctx.BotNick()) {
			p.add(msg.Channel)
		}
	}); err != nil {
		return err
	}

	onLeave := func(ctx *aib.Context, args ...any) {
		if msg, ok := soleMessage(args); ok && strings.EqualFold(msg.Sender.Nick, ctx.BotNick()) {
			p.remove(msg.Channel)
		}
	}
	if err := r.Events.GetOrMake("IRC_MSG_PART").Observe(onLeave); err != nil {
		return err
	}
	return nil
}

func soleMessage(args []any) (*ircmsg.Message, bool) {
	if len(args) != 1 {
		return nil, false
	}
	msg, ok := args[0].(*ircmsg.Message)
	return msg, ok
}

func (p *Plugin) autojoin(ctx *aib.Context) {
	wanted := append([]string(nil), ctx.Config.Channels.Autojoin...)

	if ctx.Config.Channels.DB && p.db != nil {
		item, err := p.db.Get(dbKey)
		if err == nil {
			wanted = mergeUnique(wanted, toStringSlice(item.Value))
			item.Value = toAnySlice(wanted)
			_ = item.Commit()
		}
	}

	p.mu.Lock()
	p.set = make(map[string]struct{}, len(wanted))
	for _, c := range wanted {
		p.set[strings.ToLower(c)] = struct{}{}
	}
	p.mu.Unlock()

	if len(wanted) == 0 {
		return
	}
	ctx.JOIN(wanted...)
}

func (p *Plugin) add(channel string) {
	p.mu.Lock()
	p.set[strings.ToLower(channel)] = struct{}{}
	p.mu.Unlock()
	p.persist()
}

func (p *Plugin) remove(channel string) {
	p.mu.Lock()
	delete(p.set, strings.ToLower(channel))
	p.mu.Unlock()
	p.persist()
}

func (p *Plugin) persist() {
	if p.db == nil {
		return
	}
	p.mu.Lock()
	channels := make([]string, 0, len(p.set))
	for c := range p.set {
		channels = append(channels, c)
	}
	p.mu.Unlock()
	sort.Strings(channels)

	item, err := p.db.Get(dbKey)
	if err != nil {
		return
	}
	item.Value = toAnySlice(channels)
	_ = item.Commit()
}

func mergeUnique(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			key := strings.ToLower(c)
			if _, ok := set[key]; ok {
				continue
			}
			set[key] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
