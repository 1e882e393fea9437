// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package socket implements the line-oriented, TLS-capable transport the
// client runtime speaks IRC over: independent read/write goroutines,
// bounded in/out queues, and CRLF line framing.
package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding"
	"h12.io/socks"
)

// queueSize bounds the inbound and outbound line queues.
const queueSize = 256

// readChunk is the maximum number of bytes read from the socket per
// recv call, matching the framing contract's chunking description.
const readChunk = 4096

// writeChunk is the maximum number of bytes written to the socket per
// send call.
const writeChunk = 4096

var crlf = []byte("\r\n")

// Error reports a transport failure. The only recovery is at the client
// layer: tear down and reconnect.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "socket: " + e.Reason }

// ErrEOF is returned when the remote end closes the connection.
var ErrEOF = &Error{Reason: "EOF"}

// ErrBrokenPipe is returned when a write fails because the peer has gone
// away (EPIPE) or the connection has already been closed locally.
var ErrBrokenPipe = &Error{Reason: "Broken Pipe"}

// Config configures a LineSocket's connection behavior.
type Config struct {
	Host string
	Port int
	TLS  bool
	// TLSConfig is used verbatim when non-nil; otherwise a default
	// config with ServerName set to Host is used.
	TLSConfig *tls.Config
	// ConnectTimeout bounds each individual address attempt. Defaults
	// to 10 seconds, matching the resolve-then-try-each-address policy.
	ConnectTimeout time.Duration
	// ProxyURL, if set, routes the connection through a SOCKS proxy
	// instead of dialing the server directly. socks5:// uses
	// golang.org/x/net/proxy; socks4:// and socks4a:// use h12.io/socks.
	ProxyURL string
	// Encoding transcodes line bytes to/from UTF-8 for networks that
	// are not UTF-8 clean. Nil means UTF-8 passthrough.
	Encoding encoding.Encoding
}

// LineSocket is a bidirectional CRLF-framed byte channel to a remote
// host, with independent reader and writer goroutines and bounded
// queues in both directions.
type LineSocket struct {
	conf Config

	mu   sync.Mutex
	conn net.Conn

	in  chan string
	out chan string

	// err carries the terminal failure to Run. failed is closed exactly
	// once a failure has been recorded in failErr, so any number of
	// ReadLine callers can observe it without racing Run's consumption.
	err      chan error
	failOnce sync.Once
	failed   chan struct{}
	failErr  error

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a LineSocket for the given configuration. Call Connect,
// then Run, to bring it up.
func New(conf Config) *LineSocket {
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = 10 * time.Second
	}
	return &LineSocket{
		conf:   conf,
		in:     make(chan string, queueSize),
		out:    make(chan string, queueSize),
		err:    make(chan error, 1),
		failed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Connect resolves Host (address-family agnostic) and attempts each
// resolved address in order, returning on the first successful
// connection. When a ProxyURL is configured, resolution and connection
// are both delegated to the proxy dialer instead.
func (s *LineSocket) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(s.conf.Host, strconv.Itoa(s.conf.Port))

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}

	if s.conf.TLS {
		tlsConf := s.conf.TLSConfig
		if tlsConf == nil {
			tlsConf = &tls.Config{ServerName: s.conf.Host, MinVersion: tls.VersionTLS12}
		}
		conn = tls.Client(conn, tlsConf)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *LineSocket) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.conf.ProxyURL != "" {
		return s.dialProxy(ctx, addr)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("socket: resolve %s: %w", host, err)
	}

	dialer := &net.Dialer{Timeout: s.conf.ConnectTimeout}
	var lastErr error
	for _, ip := range ips {
		dialCtx, cancel := context.WithTimeout(ctx, s.conf.ConnectTimeout)
		conn, dialErr := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip.String(), port))
		cancel()
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses resolved")
	}
	return nil, fmt.Errorf("socket: connect %s: %w", addr, lastErr)
}

func (s *LineSocket) dialProxy(ctx context.Context, addr string) (net.Conn, error) {
	switch {
	case strings.HasPrefix(s.conf.ProxyURL, "socks5://"):
		u := strings.TrimPrefix(s.conf.ProxyURL, "socks5://")
		d, err := proxy.SOCKS5("tcp", u, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socket: socks5 dialer: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, "tcp", addr)
		}
		return d.Dial("tcp", addr)
	case strings.HasPrefix(s.conf.ProxyURL, "socks4://"), strings.HasPrefix(s.conf.ProxyURL, "socks4a://"):
		dialFn := socks.Dial(s.conf.ProxyURL + "?timeout=" + s.conf.ConnectTimeout.String())
		return dialFn("tcp", addr)
	default:
		return nil, fmt.Errorf("socket: unsupported proxy scheme in %q", s.conf.ProxyURL)
	}
}

// Run spawns the reader and writer goroutines and blocks until either
// fails. It then terminates both and returns the failure.
func (s *LineSocket) Run() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("socket: Run called before a successful Connect")
	}

	go s.readLoop(conn)
	go s.writeLoop(conn)

	err := <-s.err
	s.closeOnce.Do(func() {
		close(s.done)
		_ = conn.Close()
	})
	return err
}

// Close tears down the socket and stops the reader/writer goroutines.
func (s *LineSocket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ReadLine blocks until the next complete line is available (CRLF
// stripped), or returns an error if the socket has failed or ctx is
// done.
func (s *LineSocket) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.in:
		if !ok {
			return "", ErrEOF
		}
		return line, nil
	case <-s.failed:
		return "", s.failErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// WriteLine enqueues text to be sent as text + CRLF. Encoding to bytes
// (UTF-8, or the configured transcoding) happens on the writer
// goroutine. Enqueue-only: does not block on socket I/O.
func (s *LineSocket) WriteLine(text string) {
	select {
	case s.out <- text:
	case <-s.done:
	}
}

func (s *LineSocket) readLoop(conn net.Conn) {
	var buf []byte
	chunk := make([]byte, readChunk)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := indexCRLF(buf)
				if idx < 0 {
					break
				}
				line := decodeLine(s.conf.Encoding, buf[:idx])
				select {
				case s.in <- line:
				case <-s.done:
					return
				}
				buf = buf[idx+2:]
			}
		}
		if err != nil {
			s.fail(classifyReadErr(err))
			return
		}
	}
}

func (s *LineSocket) writeLoop(conn net.Conn) {
	var buf []byte
	for {
		select {
		case text, ok := <-s.out:
			if !ok {
				return
			}
			buf = append(buf, encodeLine(s.conf.Encoding, text)...)
			buf = append(buf, crlf...)

			for len(buf) > 0 {
				end := writeChunk
				if end > len(buf) {
					end = len(buf)
				}
				n, err := conn.Write(buf[:end])
				if err != nil {
					s.fail(classifyWriteErr(err))
					return
				}
				buf = buf[n:]
			}
		case <-s.done:
			return
		}
	}
}

func (s *LineSocket) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
		s.err <- err
	})
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	// This pass matches only an LF preceded by CR, which the loop above
	// already finds, so a bare LF is never treated as a line terminator.
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\n' {
			if i > 0 && buf[i-1] == '\r' {
				return i - 1
			}
		}
	}
	return -1
}

func classifyReadErr(err error) error {
	return ErrEOF
}

func classifyWriteErr(err error) error {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return ErrBrokenPipe
	}
	return &Error{Reason: err.Error()}
}
