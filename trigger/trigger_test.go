// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package trigger

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tinyreef/aib/ircmsg"
)

func privmsg(channel, text string) *ircmsg.Message {
	var replies []string
	m := &ircmsg.Message{
		Kind:        "PRIVMSG",
		Channel:     channel,
		ReplyTarget: channel,
		Text:        text,
		Sender:      ircmsg.Sender{Nick: "alice"},
	}
	if channel == "" {
		m.ReplyTarget = "alice"
	}
	m.Reply = func(t string) { replies = append(replies, t) }
	m.Args = text
	_ = replies
	return m
}

func TestParseTokenisesPositionalAndKeywordArgs(t *testing.T) {
	args, kwargs := Parse(`foo "bar baz" --flag --name=value -x`)
	if !reflect.DeepEqual(args, []string{"foo", "bar baz"}) {
		t.Fatalf("args = %#v", args)
	}
	if kwargs["flag"] != "true" || kwargs["name"] != "value" || kwargs["x"] != "true" {
		t.Fatalf("kwargs = %#v", kwargs)
	}
}

func TestParseHandlesEscapedQuotes(t *testing.T) {
	args, _ := Parse(`"say \"hi\" now"`)
	if len(args) != 1 || args[0] != `say "hi" now` {
		t.Fatalf("args = %#v", args)
	}
}

func TestDispatchFiresOnPrefixedMessage(t *testing.T) {
	tr := New[int]("!", func() string { return "bot" })
	fired := make(chan *Call, 1)
	_ = tr.Observe("roll", func(ctx int, call *Call) { fired <- call })

	tr.Dispatch(0, privmsg("#chan", "!roll 2d6"))

	select {
	case call := <-fired:
		if call.Word != "roll" || len(call.Args) != 1 || call.Args[0] != "2d6" {
			t.Fatalf("call = %#v", call)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
}

func TestDispatchFiresOnAddressedMessage(t *testing.T) {
	tr := New[int]("!", func() string { return "bot" })
	fired := make(chan *Call, 1)
	_ = tr.Observe("status", func(ctx int, call *Call) { fired <- call })

	tr.Dispatch(0, privmsg("#chan", "bot: status"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handler never fired for addressed message")
	}
}

func TestDispatchIgnoresPlainChannelChatter(t *testing.T) {
	tr := New[int]("!", func() string { return "bot" })
	fired := make(chan *Call, 1)
	_ = tr.Observe("status", func(ctx int, call *Call) { fired <- call })

	tr.Dispatch(0, privmsg("#chan", "status update for everyone"))

	select {
	case <-fired:
		t.Fatal("handler fired for unaddressed channel chatter")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchFiresOnPrivateMessageWithoutPrefix(t *testing.T) {
	tr := New[int]("!", func() string { return "bot" })
	fired := make(chan *Call, 1)
	_ = tr.Observe("status", func(ctx int, call *Call) { fired <- call })

	tr.Dispatch(0, privmsg("", "status"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handler never fired for a private message")
	}
}

func TestSubCommandFilterRewritesWordAndConsumesArg(t *testing.T) {
	fired := make(chan *Call, 1)
	filtered := SubCommand[int]([]string{"spin"}, func(ctx int, call *Call) { fired <- call })

	tr := New[int]("!", func() string { return "bot" })
	_ = tr.Observe("roulette", filtered)

	tr.Dispatch(0, privmsg("#chan", "!roulette spin"))

	select {
	case call := <-fired:
		if call.Word != "roulette spin" {
			t.Fatalf("word = %q", call.Word)
		}
		if len(call.Args) != 0 {
			t.Fatalf("args = %#v, want consumed", call.Args)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
}

func TestAutoHelpRepliesInsteadOfInvoking(t *testing.T) {
	var invoked bool
	filtered := AutoHelp[int]("does a thing", func(ctx int, call *Call) { invoked = true })

	var got []string
	msg := privmsg("#chan", "!thing --help")
	msg.Reply = func(t string) { got = append(got, t) }

	tr := New[int]("!", func() string { return "bot" })
	_ = tr.Observe("thing", filtered)
	tr.Dispatch(0, msg)

	time.Sleep(20 * time.Millisecond)
	if invoked {
		t.Fatal("handler body ran despite --help")
	}
	if len(got) != 1 || !strings.Contains(got[0], "does a thing") {
		t.Fatalf("replies = %#v", got)
	}
}

func TestHelpTriggerCompactListingFitsWithinLineBudget(t *testing.T) {
	tr := New[int]("!", func() string { return "bot" })
	_ = tr.Observe("ping", func(ctx int, call *Call) {}, Doc("replies pong"))
	_ = tr.Observe("roll", func(ctx int, call *Call) {}, Doc("rolls dice"))

	var got []string
	msg := privmsg("#chan", "!help")
	msg.Reply = func(t string) { got = append(got, t) }

	tr.Dispatch(0, msg)
	time.Sleep(20 * time.Millisecond)

	if len(got) == 0 {
		t.Fatal("no reply from help trigger")
	}
	if !strings.HasPrefix(got[0], "Command List:") {
		t.Fatalf("first line = %q", got[0])
	}
	for _, line := range got {
		if len(line)+len("PRIVMSG #chan :") > maxLineBytes {
			t.Fatalf("line exceeds budget: %q", line)
		}
	}
}
