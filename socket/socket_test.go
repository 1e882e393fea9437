// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package socket

import (
	"context"
	"net"
	"testing"
	"time"
)

// newPiped wires a LineSocket directly to one end of a net.Pipe, bypassing
// Connect/dial entirely, mirroring how the teacher's client tests stub a
// connection for fast, networkless tests.
func newPiped(t *testing.T) (*LineSocket, net.Conn) {
	t.Helper()
	client, remote := net.Pipe()
	s := New(Config{Host: "irc.example.org", Port: 6667})
	s.conn = client
	go func() {
		_ = s.Run()
	}()
	return s, remote
}

func TestReadLineSplitsOnCRLF(t *testing.T) {
	s, remote := newPiped(t)
	defer remote.Close()

	go func() {
		_, _ = remote.Write([]byte("PING :server.example.org\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := s.ReadLine(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "PING :server.example.org" {
		t.Fatalf("line = %q", line)
	}
}

func TestReadLineHandlesMultipleLinesInOneChunk(t *testing.T) {
	s, remote := newPiped(t)
	defer remote.Close()

	go func() {
		_, _ = remote.Write([]byte("ONE\r\nTWO\r\nTHREE\r\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []string{"ONE", "TWO", "THREE"} {
		line, err := s.ReadLine(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if line != want {
			t.Fatalf("line = %q, want %q", line, want)
		}
	}
}

func TestReadLineReturnsEOFOnRemoteClose(t *testing.T) {
	s, remote := newPiped(t)
	remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.ReadLine(ctx)
	if err != ErrEOF {
		t.Fatalf("err = %v, want ErrEOF", err)
	}
}

func TestWriteLineFramesWithCRLF(t *testing.T) {
	s, remote := newPiped(t)
	defer remote.Close()

	s.WriteLine("NICK bottest")

	buf := make([]byte, 64)
	remote.SetReadDeadline(time.Now().Add(time.Second))
	n, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(buf[:n]); got != "NICK bottest\r\n" {
		t.Fatalf("wrote %q", got)
	}
}

func TestReadLineRespectsContextCancellation(t *testing.T) {
	s, remote := newPiped(t)
	defer remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ReadLine(ctx)
	if err == nil {
		t.Fatal("expected a context deadline error")
	}
}

func TestIndexCRLFFindsCRLFTerminator(t *testing.T) {
	if idx := indexCRLF([]byte("abc\r\ndef")); idx != 3 {
		t.Fatalf("idx = %d, want 3", idx)
	}
	if idx := indexCRLF([]byte("no terminator here")); idx != -1 {
		t.Fatalf("idx = %d, want -1", idx)
	}
}
