// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package aib

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/tinyreef/aib/config"
	"github.com/tinyreef/aib/socket"
)

// saslTimeout bounds the whole CAP/AUTHENTICATE exchange; a server that
// never completes it is treated as a connection failure, same as any
// other handshake timeout.
const saslTimeout = 15 * time.Second

// negotiateSASL performs the narrow SASL PLAIN handshake spec'd as an
// exception to the framework's no-CAP-negotiation non-goal: CAP REQ,
// AUTHENTICATE PLAIN with a go-sasl-built response, then CAP END. It
// does not implement general capability negotiation — no CAP LS, no
// multi-capability REQ.
func (c *Client) negotiateSASL(stdctx context.Context, sock *socket.LineSocket, cfg config.SASL) error {
	if !strings.EqualFold(cfg.Mechanism, "PLAIN") {
		return fmt.Errorf("aib: unsupported sasl mechanism %q", cfg.Mechanism)
	}

	deadline, cancel := context.WithTimeout(stdctx, saslTimeout)
	defer cancel()

	sock.WriteLine("CAP REQ :sasl")
	if err := waitForLine(deadline, sock, func(line string) bool {
		return strings.HasPrefix(line, "CAP ") && strings.Contains(line, "ACK") && strings.Contains(line, "sasl")
	}); err != nil {
		return fmt.Errorf("aib: sasl: waiting for CAP ACK: %w", err)
	}

	sock.WriteLine("AUTHENTICATE PLAIN")
	if err := waitForLine(deadline, sock, func(line string) bool {
		return line == "AUTHENTICATE +"
	}); err != nil {
		return fmt.Errorf("aib: sasl: waiting for AUTHENTICATE prompt: %w", err)
	}

	client := sasl.NewPlainClient("", cfg.Login, cfg.Password)
	_, resp, err := client.Start()
	if err != nil {
		return fmt.Errorf("aib: sasl: %w", err)
	}
	sock.WriteLine("AUTHENTICATE " + base64.StdEncoding.EncodeToString(resp))

	numeric, err := waitForNumeric(deadline, sock, "903", "904", "905")
	if err != nil {
		return fmt.Errorf("aib: sasl: waiting for authentication reply: %w", err)
	}
	if numeric != "903" {
		return fmt.Errorf("aib: sasl: server rejected authentication (%s)", numeric)
	}

	sock.WriteLine("CAP END")
	return nil
}

func waitForLine(ctx context.Context, sock *socket.LineSocket, match func(string) bool) error {
	for {
		line, err := sock.ReadLine(ctx)
		if err != nil {
			return err
		}
		if match(line) {
			return nil
		}
	}
}

func waitForNumeric(ctx context.Context, sock *socket.LineSocket, numerics ...string) (string, error) {
	for {
		line, err := sock.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, n := range numerics {
			if fields[1] == n {
				return n, nil
			}
		}
	}
}
