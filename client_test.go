// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package aib

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tinyreef/aib/config"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testConfig(addr string) *config.Config {
	return &config.Config{
		IRC: config.IRC{
			Servers:  []string{addr},
			Nick:     "aib",
			User:     "aib",
			Realname: "aib bot",
		},
		Triggers: config.Triggers{Prefix: "!"},
	}
}

// fakeServer accepts exactly one connection on an ephemeral loopback
// port and hands back a line-buffered reader/writer pair for scripting
// a server side of the registration handshake.
type fakeServer struct {
	ln   net.Listener
	addr string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return &fakeServer{ln: ln, addr: ln.Addr().String()}
}

func (f *fakeServer) accept(t *testing.T) (*bufio.Reader, net.Conn) {
	t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return bufio.NewReader(conn), conn
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestClientRegistersAndFiresOnConnect(t *testing.T) {
	srv := newFakeServer(t)
	c, err := NewWithConfig(testConfig(srv.addr), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	connected := make(chan struct{}, 1)
	c.ctx.Events.GetOrMake("IRC_ONCONNECT").Observe(func(ctx *Context, args ...any) {
		connected <- struct{}{}
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(runCtx) }()

	r, conn := srv.accept(t)

	if got := readLine(t, r); got != "NICK aib" {
		t.Fatalf("NICK = %q", got)
	}
	if got := readLine(t, r); got != "USER aib 0 * :aib bot" {
		t.Fatalf("USER = %q", got)
	}

	fmt.Fprintf(conn, ":irc.example.org 001 aib :Welcome\r\n")

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("IRC_ONCONNECT never fired")
	}

	deadline := time.Now().Add(time.Second)
	for !c.ctx.Registered() {
		if time.Now().After(deadline) {
			t.Fatal("Context never marked registered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClientRetriesNickOnCollision(t *testing.T) {
	srv := newFakeServer(t)
	c, err := NewWithConfig(testConfig(srv.addr), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(runCtx) }()

	r, conn := srv.accept(t)
	readLine(t, r) // NICK aib
	readLine(t, r) // USER ...

	fmt.Fprintf(conn, ":irc.example.org 433 * aib :Nickname is already in use\r\n")

	if got := readLine(t, r); got != "NICK aib_" {
		t.Fatalf("retry NICK = %q", got)
	}
	if got := c.ctx.BotNick(); got != "aib_" {
		t.Fatalf("BotNick = %q, want aib_", got)
	}
}

func TestClientRespondsToPingWithAutoPingEnabled(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.addr)
	cfg.IRC.AutoPing = 600
	c, err := NewWithConfig(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(runCtx) }()

	r, conn := srv.accept(t)
	readLine(t, r) // NICK
	readLine(t, r) // USER

	fmt.Fprintf(conn, ":irc.example.org 001 aib :Welcome\r\n")

	fmt.Fprintf(conn, "PING :irc.example.org\r\n")
	if got := readLine(t, r); got != "PONG :irc.example.org" {
		t.Fatalf("PONG = %q", got)
	}
}

func TestClientAutojoinsChannelsOnConnect(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.addr)
	cfg.Channels.Autojoin = []string{"#one", "#two"}
	c, err := NewWithConfig(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(runCtx) }()

	r, conn := srv.accept(t)
	readLine(t, r) // NICK
	readLine(t, r) // USER
	fmt.Fprintf(conn, ":irc.example.org 001 aib :Welcome\r\n")

	if got := readLine(t, r); got != "JOIN #one,#two" {
		t.Fatalf("JOIN = %q", got)
	}
}

func TestCloseSendsQuitAndStopsReconnecting(t *testing.T) {
	srv := newFakeServer(t)
	c, err := NewWithConfig(testConfig(srv.addr), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(runCtx) }()

	r, _ := srv.accept(t)
	readLine(t, r) // NICK
	readLine(t, r) // USER

	c.Close()

	if got := readLine(t, r); got != "QUIT :Received a ctrl+c exiting" {
		t.Fatalf("QUIT = %q", got)
	}

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Close")
	}
}

func TestWrapMessageReproducesOriginalWhenJoinedWithSpaces(t *testing.T) {
	msg := strings.Repeat("word ", 40) + "tail"
	chunks := wrapMessage(msg, 40)
	if strings.Join(chunks, " ") != msg {
		t.Fatalf("round-trip mismatch")
	}
	for _, c := range chunks {
		if len(c) > 40 {
			t.Fatalf("chunk %q exceeds budget", c)
		}
	}
}

func TestWrapMessageHardSplitsOverlongWord(t *testing.T) {
	msg := strings.Repeat("x", 100)
	chunks := wrapMessage(msg, 10)
	if len(chunks) != 10 {
		t.Fatalf("chunks = %d, want 10", len(chunks))
	}
	if strings.Join(chunks, "") != msg {
		t.Fatalf("concatenation mismatch")
	}
}

func TestBatchCSVNeverExceedsBudget(t *testing.T) {
	names := []string{"#alpha", "#beta", "#gamma", "#delta", "#epsilon"}
	batches := batchCSV(names, 15)
	for _, b := range batches {
		if len(b) > 15 {
			t.Fatalf("batch %q exceeds budget", b)
		}
	}
	var rejoined []string
	for _, b := range batches {
		rejoined = append(rejoined, strings.Split(b, ",")...)
	}
	if strings.Join(rejoined, ",") != strings.Join(names, ",") {
		t.Fatalf("batches = %v, want all names preserved in order", batches)
	}
}

func TestPRIVMSGAccountsForHostmaskOverheadInBudget(t *testing.T) {
	srv := newFakeServer(t)
	c, err := NewWithConfig(testConfig(srv.addr), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(runCtx) }()

	r, conn := srv.accept(t)
	readLine(t, r) // NICK
	readLine(t, r) // USER
	fmt.Fprintf(conn, ":irc.example.org 001 aib :Welcome\r\n")

	// The server relays each line prefixed with the bot's own hostmask,
	// which the client learns from its own JOIN.
	const hostmask = "aib!aib@a-rather-long-hostname.example.org"
	fmt.Fprintf(conn, ":%s JOIN :#chan\r\n", hostmask)
	deadline := time.Now().Add(time.Second)
	for c.ctx.BotSender().Raw != hostmask {
		if time.Now().After(deadline) {
			t.Fatal("BotSender never picked up the hostmask from the self-JOIN")
		}
		time.Sleep(time.Millisecond)
	}

	longMsg := strings.Repeat("a ", 400) + "end"
	c.ctx.PRIVMSG("#chan", longMsg)

	var got []string
	for {
		line := readLine(t, r)
		if relayed := len(":"+hostmask+" ") + len(line); relayed > 510 {
			t.Fatalf("relayed line exceeds 510 bytes: %d", relayed)
		}
		const prefix = "PRIVMSG #chan :"
		if !strings.HasPrefix(line, prefix) {
			t.Fatalf("line = %q", line)
		}
		got = append(got, strings.TrimPrefix(line, prefix))
		if strings.HasSuffix(line, "end") {
			break
		}
	}
	if strings.Join(got, " ") != longMsg {
		t.Fatalf("reassembled message mismatch")
	}
}
