// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package karma tracks a ++/-- counter per word or nick, scanning every
// channel PRIVMSG for "thing++"/"thing--" tokens (or the yoda-style
// "++thing"/"--thing"), and answers a "karma" trigger that reports a
// thing's current count.
package karma

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/ircmsg"
	"github.com/tinyreef/aib/storage"
	"github.com/tinyreef/aib/timer"
	"github.com/tinyreef/aib/trigger"
)

const bucketName = "karma"

const defaultPronoun = "her"
const defaultScannerRefresh = 12 * time.Hour

const scannerTimer = "karma-scanner"

// tokenPattern recognises a single whitespace-delimited word carrying a
// leading or trailing "++"/"--", yoda-style included: "++thing" and
// "thing++" both match, with the two modifiers captured separately so a
// word can't double-count by carrying one on each end.
var tokenPattern = regexp.MustCompile(`^(\+\+|--)?(.+?)(\+\+|--)?$`)

// giftPattern recognises someone handing the bot a replacement karma
// scanner via a CTCP ACTION.
func giftPattern(botnick string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\x01ACTION gives ` + regexp.QuoteMeta(botnick) + ` (?:a|his|her|its) karma scanner\.?!?\x01$`)
}

// Plugin implements the "over 9000" scanner gag from the reference bot:
// once a karma lookup finds a value over 9000, Plugin "crushes" its own scanner
// and stops tallying changes until it cools down (scannerRefresh later)
// or until someone gifts it a replacement.
type Plugin struct {
	db *storage.Bucket

	pronoun        string
	scannerRefresh time.Duration

	mu      sync.Mutex
	scanner bool
}

func New() *Plugin { return &Plugin{scanner: true} }

func (p *Plugin) Name() string      { return "karma" }
func (p *Plugin) InstallAs() string { return "karma" }

func (p *Plugin) Register(_ *aib.Context, cfg component.Config, r *component.Registrar[*aib.Context]) error {
	if r.Storage != nil {
		p.db = r.Storage.Bucket(bucketName)
	}

	p.pronoun = cfg.GetString("pronoun")
	if p.pronoun == "" {
		p.pronoun = defaultPronoun
	}
	p.scannerRefresh = defaultScannerRefresh
	if s := cfg.GetString("scanner_refresh"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			p.scannerRefresh = time.Duration(secs) * time.Second
		}
	}

	if err := r.Triggers.Observe("karma", p.stats, trigger.Doc("[<thing>] :: get karma for something, or your own")); err != nil {
		return err
	}

	return r.Events.GetOrMake("IRC_MSG_PRIVMSG").Observe(func(ctx *aib.Context, args ...any) {
		msg, ok := soleMessage(args)
		if !ok || msg.Channel == "" {
			return
		}
		p.maybeAcceptGift(ctx, msg)
		if p.scannerArmed() {
			p.scan(msg)
		}
	})
}

func soleMessage(args []any) (*ircmsg.Message, bool) {
	if len(args) != 1 {
		return nil, false
	}
	msg, ok := args[0].(*ircmsg.Message)
	return msg, ok
}

func (p *Plugin) stats(ctx *aib.Context, call *trigger.Call) {
	if call.Msg.Reply == nil {
		return
	}
	if !p.scannerArmed() {
		call.Msg.Reply(fmt.Sprintf("Sorry %s, I crushed my %s karma scanner.", call.Msg.Sender.Nick, p.pronoun))
		return
	}

	var who, thing string
	if len(call.Args) == 0 {
		who = call.Msg.Sender.Nick
		thing = call.Msg.Sender.User
	} else {
		who = call.Args[0]
		thing = call.Args[0]
	}

	value := p.get(thing)
	if value > 9000 {
		call.Msg.Reply(fmt.Sprintf("\x01ACTION removes %s karma scanner.\x01", p.pronoun))
		call.Msg.Reply("It's Over 9000!")
		call.Msg.Reply(fmt.Sprintf("\x01ACTION crushes the karma scanner in %s clenched fist.\x01", p.pronoun))
		p.disarmScanner()

		reply := call.Msg.Reply
		_ = ctx.Timers.Set(scannerTimer, func(ctx *aib.Context, name string) {
			p.rearmScanner(reply)
		}, timer.At(time.Now().Add(p.scannerRefresh)))
		return
	}
	call.Msg.Reply(fmt.Sprintf("Karma for %s is %d", who, value))
}

// maybeAcceptGift lets a channel member hand the bot a fresh scanner via
// a CTCP ACTION once the current one has been crushed.
func (p *Plugin) maybeAcceptGift(ctx *aib.Context, msg *ircmsg.Message) {
	if !giftPattern(ctx.BotNick()).MatchString(msg.Text) {
		return
	}
	if p.scannerArmed() {
		if msg.Reply != nil {
			msg.Reply(fmt.Sprintf("No Thanks %s I have one!", msg.Sender.Nick))
		}
		return
	}
	p.armScanner()
	if msg.Reply != nil {
		msg.Reply(fmt.Sprintf("Thanks %s I needed that!", msg.Sender.Nick))
	}
}

// scan tokenises msg.Text, collapses repeated mentions of the same thing
// into one net change, and applies the result — mirroring the reference
// plugin's dict-of-changes-then-apply pass rather than committing each
// token as it's found.
func (p *Plugin) scan(msg *ircmsg.Message) {
	changes := make(map[string]int)
	for _, word := range strings.Fields(msg.Text) {
		match := tokenPattern.FindStringSubmatch(word)
		if match == nil {
			continue
		}
		pre, thing, post := match[1], match[2], match[3]
		mod := post
		if mod == "" {
			mod = pre
		}
		switch mod {
		case "++":
			changes[thing]++
		case "--":
			changes[thing]--
		}
	}

	for thing, delta := range changes {
		if delta == 0 {
			continue
		}
		if strings.EqualFold(thing, msg.Sender.User) {
			continue // no self-bumping
		}
		p.set(thing, p.get(thing)+delta)
	}
}

func (p *Plugin) scannerArmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanner
}

func (p *Plugin) disarmScanner() {
	p.mu.Lock()
	p.scanner = false
	p.mu.Unlock()
}

func (p *Plugin) armScanner() {
	p.mu.Lock()
	p.scanner = true
	p.mu.Unlock()
}

func (p *Plugin) rearmScanner(reply func(string)) {
	if p.scannerArmed() {
		return
	}
	p.armScanner()
	reply(fmt.Sprintf("\x01ACTION receives a karma scanner and equips it over %s left eye.\x01", p.pronoun))
}

func (p *Plugin) get(thing string) int {
	if p.db == nil {
		return 0
	}
	item, err := p.db.Get(strings.ToLower(thing))
	if err != nil {
		return 0
	}
	return toInt(item.Value)
}

func (p *Plugin) set(thing string, value int) {
	if p.db == nil {
		return
	}
	item, err := p.db.Get(strings.ToLower(thing))
	if err != nil {
		return
	}
	item.Value = value
	_ = item.Commit()
}

// toInt coerces a decoded storage value back to int: JSON numbers decode
// to float64, and a never-set item decodes to nil.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
