// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package aib

import (
	"fmt"
	"strings"
)

// maxLineBytes is the IRC protocol's 512-byte line limit, less the
// trailing CRLF the transport appends.
const maxLineBytes = 510

// RAW joins parts with single spaces, strips embedded CR/LF, expands
// tabs to four spaces, right-trims, and enqueues the result for sending
// — unless it comes out empty, in which case nothing is sent. Firing
// IRC_RAW_SEND happens only for lines actually written.
func (c *Context) RAW(parts ...string) {
	line := strings.Join(parts, " ")
	line = strings.NewReplacer("\r", "", "\n", "", "\t", "    ").Replace(line)
	line = strings.TrimRight(line, " ")
	if line == "" {
		return
	}

	s := c.sock()
	if s == nil {
		return
	}
	s.WriteLine(line)
	c.Events.Get("IRC_RAW_SEND").Fire(c, line)
}

// NICK sends a NICK change. Before registration completes, the new nick
// is adopted optimistically, since the server won't otherwise echo it
// back until 001.
func (c *Context) NICK(n string) {
	c.RAW("NICK", n)
	if !c.Registered() {
		c.setBotNick(n)
	}
}

// PRIVMSG word-wraps msg into one or more lines, each no larger than the
// 510-byte line budget minus the overhead of the bot's own hostmask and
// the "PRIVMSG <target> :" framing, and sends each as its own line.
func (c *Context) PRIVMSG(target, msg string) {
	sender := c.BotSender()
	overhead := len(sender.Raw) + 2 + len("PRIVMSG "+target+" :")
	budget := maxLineBytes - overhead
	if budget < 1 {
		budget = 1
	}
	for _, chunk := range wrapMessage(msg, budget) {
		c.RAW(fmt.Sprintf("PRIVMSG %s :%s", target, chunk))
	}
}

// JOIN batches channels into as few comma-joined JOIN lines as fit
// within the 510-byte line budget.
func (c *Context) JOIN(channels ...string) {
	budget := maxLineBytes - len("JOIN ")
	for _, batch := range batchCSV(channels, budget) {
		c.RAW("JOIN " + batch)
	}
}

// PART leaves channels, comma-joined on a single line, with an optional
// trailing ":message".
func (c *Context) PART(channels []string, message string) {
	line := "PART " + strings.Join(channels, ",")
	if message != "" {
		line += " :" + message
	}
	c.RAW(line)
}

// wrapMessage splits msg on word boundaries into chunks of at most max
// bytes, hard-splitting any single word that alone exceeds max.
// Concatenating the returned chunks with a single space between each
// reproduces msg exactly, for msg with single-space-separated words of
// at most max bytes; the pieces of a hard-split word rejoin without a
// space.
func wrapMessage(msg string, max int) []string {
	if max < 1 {
		max = 1
	}
	if len(msg) <= max {
		return []string{msg}
	}

	var lines []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}
	hardSplit := func(w string) string {
		for len(w) > max {
			lines = append(lines, w[:max])
			w = w[max:]
		}
		return w
	}

	for _, w := range strings.Split(msg, " ") {
		if cur.Len() == 0 {
			cur.WriteString(hardSplit(w))
			continue
		}
		if cur.Len()+1+len(w) > max {
			flush()
			cur.WriteString(hardSplit(w))
			continue
		}
		cur.WriteByte(' ')
		cur.WriteString(w)
	}
	flush()
	return lines
}

// batchCSV groups names into comma-joined strings, each at most max
// bytes, without splitting any single name across batches.
func batchCSV(names []string, max int) []string {
	if max < 1 {
		max = 1
	}
	var batches []string
	var cur []string
	size := 0

	flush := func() {
		if len(cur) > 0 {
			batches = append(batches, strings.Join(cur, ","))
			cur = nil
			size = 0
		}
	}

	for _, n := range names {
		add := len(n)
		if len(cur) > 0 {
			add++ // comma
		}
		if size+add > max {
			flush()
			add = len(n)
		}
		cur = append(cur, n)
		size += add
	}
	flush()
	return batches
}
