// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package socket

import (
	"strings"

	"golang.org/x/text/encoding"
)

// decodeLine converts raw line bytes read off the wire into a UTF-8
// string. With no Encoding configured, bytes are assumed to already be
// UTF-8 and any malformed sequences are dropped rather than rejected,
// since a single garbled line from a non-compliant network must not
// take down the reader goroutine.
func decodeLine(enc encoding.Encoding, raw []byte) string {
	if enc == nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "")
	}
	return string(out)
}

// encodeLine converts a UTF-8 string to the wire encoding. Characters
// unsupported by the target encoding are replaced rather than causing
// the write to fail.
func encodeLine(enc encoding.Encoding, line string) []byte {
	if enc == nil {
		return []byte(line)
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(line))
	if err != nil {
		return []byte(line)
	}
	return out
}
