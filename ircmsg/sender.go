// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package ircmsg

import "strings"

// Sender represents the parsed prefix of an inbound line: either a bare
// server name, or a full nick!user@host hostmask. See RFC 2812 section 2.3.1.
type Sender struct {
	// Raw is the prefix exactly as it appeared on the wire (without the
	// leading ':').
	Raw string
	// Nick is empty when the prefix is a server name rather than a
	// nick!user@host hostmask.
	Nick string
	// User is the ident/username, with a leading '~' stripped.
	User string
	// Hostname is the hostname or IP of the sender.
	Hostname string
}

// ParseSender parses a raw IRC prefix into a Sender. A bare server name
// (no '!') produces a Sender with an empty Nick.
func ParseSender(raw string) Sender {
	s := Sender{Raw: raw}

	bang := strings.IndexByte(raw, '!')
	if bang < 0 {
		return s
	}

	s.Nick = raw[:bang]
	rest := raw[bang+1:]
	at := strings.IndexByte(rest, '@')
	if at < 0 {
		s.User = strings.TrimPrefix(rest, "~")
		return s
	}
	s.User = strings.TrimPrefix(rest[:at], "~")
	s.Hostname = rest[at+1:]
	return s
}

// IsServer reports whether this sender looks like a bare server name
// rather than a user hostmask.
func (s Sender) IsServer() bool {
	return s.Nick == ""
}

// Usermask returns "user@hostname", or the empty string for a server sender.
func (s Sender) Usermask() string {
	if s.IsServer() {
		return ""
	}
	return s.User + "@" + s.Hostname
}
