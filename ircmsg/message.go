// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package ircmsg parses raw IRC protocol lines into structured messages and
// provides the per-command secondary parser registry that lets components
// attach additional fields to specific message kinds.
package ircmsg

import (
	"regexp"
	"strings"
	"time"
)

// ChannelPrefix records the membership-status prefix (@, %, +) stripped
// from a channel target, if any.
type ChannelPrefix int

const (
	// PrefixNone means no membership prefix was present.
	PrefixNone ChannelPrefix = iota
	// PrefixOp means the target was prefixed with '@'.
	PrefixOp
	// PrefixHalfOp means the target was prefixed with '%'.
	PrefixHalfOp
	// PrefixVoice means the target was prefixed with '+'.
	PrefixVoice
)

// primaryGrammar matches RFC 2812's `[':' prefix SPACE] command params`.
var primaryGrammar = regexp.MustCompile(`^(?:(:[^ ]+) )?([^ ]+) (.+)$`)

// leadingColon strips a single leading ':' from the start of a string.
var leadingColon = regexp.MustCompile(`^:`)

// Message is the parsed form of one inbound IRC line.
//
// Fields populated only for certain Kinds (Target, Channel, Message, ...)
// read as the empty string / PrefixNone when absent, rather than requiring
// callers to type-switch on Kind first.
type Message struct {
	Raw       string
	Sender    Sender
	Nick      string
	Kind      string // empty if Raw did not match the IRC grammar
	Args      string
	Timestamp time.Time

	Target        string
	ReplyTarget   string
	Channel       string
	RawChannel    string
	ChannelPrefix ChannelPrefix
	Text          string // message body for PRIVMSG/NOTICE/PART/KICK
	Victim        string // KICK target nick

	// Unparsed holds the raw tail of a trigger invocation, set by the
	// trigger dispatcher before a handler runs; empty otherwise.
	Unparsed string

	// Reply sends text back to whichever of channel/sender started this
	// conversation. Nil unless the message kind is PRIVMSG, NOTICE, or
	// INVITE.
	Reply func(text string)
}

// Valid reports whether Raw matched the IRC grammar. Invalid messages must
// not be dispatched to IRC_MSG_* observers.
func (m *Message) Valid() bool {
	return m != nil && m.Kind != ""
}

// ReplyFunc sends text to target, e.g. the client's PRIVMSG command.
type ReplyFunc func(target, text string)

// Parser parses raw lines into Messages and runs any registered secondary
// parser for the message's Kind. A Parser is a field on the runtime, not a
// package-level singleton: each Client owns one, installed with hooks as
// components load.
type Parser struct {
	// ServerIdentity is consulted when a line carries no prefix.
	ServerIdentity func() string
	// BotNick is consulted to decide whether a directed message targets
	// the bot directly (a private message) or a channel.
	BotNick func() string
	// SendReply implements the Reply helper attached to directed messages.
	SendReply ReplyFunc

	secondary map[string]SecondaryParser
}

// SecondaryParser attaches further fields to msg based on its Kind. It
// receives Args exactly as primary parsing produced it, before the
// leading-colon strip.
type SecondaryParser func(msg *Message)

// ChainMode controls how AddParser composes with any already-registered
// parser for the same command.
type ChainMode int

const (
	// Replace discards any existing parser for the command (default).
	Replace ChainMode = iota
	// ChainBefore runs the new parser, then the existing one.
	ChainBefore
	// ChainAfter runs the existing parser, then the new one.
	ChainAfter
)

// NewParser creates a Parser with the built-in PRIVMSG/NOTICE/INVITE/JOIN/
// PART/KICK secondary parsers already installed.
func NewParser() *Parser {
	p := &Parser{secondary: make(map[string]SecondaryParser)}
	p.AddParser("PRIVMSG", Replace, p.directed)
	p.AddParser("NOTICE", Replace, p.directed)
	p.AddParser("INVITE", Replace, p.directed)
	p.AddParser("JOIN", Replace, parseJoin)
	p.AddParser("PART", Replace, parsePart)
	p.AddParser("KICK", Replace, parseKick)
	return p
}

// AddParser installs fn as the secondary parser for kind, composing with
// any existing parser according to mode.
func (p *Parser) AddParser(kind string, mode ChainMode, fn SecondaryParser) {
	existing, ok := p.secondary[kind]
	switch {
	case !ok || mode == Replace:
		p.secondary[kind] = fn
	case mode == ChainBefore:
		p.secondary[kind] = func(msg *Message) {
			fn(msg)
			existing(msg)
		}
	case mode == ChainAfter:
		p.secondary[kind] = func(msg *Message) {
			existing(msg)
			fn(msg)
		}
	}
}

// Parse parses one raw line (CRLF already stripped) into a Message. The
// returned Message always has Raw set; Kind is empty when the line did not
// match the grammar, and such messages must be suppressed from IRC_MSG_*
// dispatch by the caller.
func (p *Parser) Parse(raw string) *Message {
	msg := &Message{Raw: raw, Timestamp: time.Now()}

	match := primaryGrammar.FindStringSubmatch(raw)
	if match == nil {
		return msg
	}

	prefix := match[1]
	if prefix == "" {
		if p.ServerIdentity != nil {
			prefix = p.ServerIdentity()
		}
	} else {
		prefix = strings.TrimPrefix(prefix, ":")
	}

	msg.Sender = ParseSender(prefix)
	msg.Nick = msg.Sender.Nick
	msg.Kind = strings.ToUpper(match[2])
	msg.Args = match[3]

	if fn, ok := p.secondary[msg.Kind]; ok {
		fn(msg)
	}

	msg.Args = leadingColon.ReplaceAllString(msg.Args, "")

	return msg
}

// directed implements the built-in PRIVMSG/NOTICE/INVITE secondary parser.
func (p *Parser) directed(msg *Message) {
	rest := msg.Args
	sp := strings.IndexByte(rest, ' ')
	var target, text string
	if sp < 0 {
		target = rest
	} else {
		target = rest[:sp]
		text = strings.TrimPrefix(strings.TrimLeft(rest[sp+1:], " "), ":")
	}
	msg.Target = target
	msg.Text = text

	botnick := ""
	if p.BotNick != nil {
		botnick = p.BotNick()
	}

	if strings.EqualFold(target, botnick) && botnick != "" {
		msg.ReplyTarget = msg.Sender.Nick
	} else {
		msg.ReplyTarget = target
		raw := target
		switch {
		case strings.HasPrefix(raw, "@"):
			msg.ChannelPrefix = PrefixOp
			raw = raw[1:]
		case strings.HasPrefix(raw, "%"):
			msg.ChannelPrefix = PrefixHalfOp
			raw = raw[1:]
		case strings.HasPrefix(raw, "+"):
			msg.ChannelPrefix = PrefixVoice
			raw = raw[1:]
		}
		msg.RawChannel = raw
		msg.Channel = strings.ToLower(raw)
	}

	replyTarget := msg.ReplyTarget
	if p.SendReply != nil {
		msg.Reply = func(text string) {
			p.SendReply(replyTarget, text)
		}
	}
}

func parseJoin(msg *Message) {
	raw := leadingColon.ReplaceAllString(strings.TrimSpace(msg.Args), "")
	msg.RawChannel = raw
	msg.Channel = strings.ToLower(raw)
}

func parsePart(msg *Message) {
	raw, rest, _ := strings.Cut(strings.TrimSpace(msg.Args), " ")
	msg.RawChannel = raw
	msg.Channel = strings.ToLower(raw)
	msg.Text = leadingColon.ReplaceAllString(rest, "")
}

func parseKick(msg *Message) {
	parts := strings.SplitN(msg.Args, " ", 3)
	if len(parts) < 2 {
		return
	}
	msg.RawChannel = parts[0]
	msg.Channel = strings.ToLower(parts[0])
	msg.Victim = parts[1]
	if len(parts) == 3 {
		msg.Text = leadingColon.ReplaceAllString(parts[2], "")
	}
}
