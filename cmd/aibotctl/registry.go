// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/plugins/channels"
	"github.com/tinyreef/aib/plugins/dice"
	"github.com/tinyreef/aib/plugins/karma"
	"github.com/tinyreef/aib/plugins/nickserv"
)

// builtinPlugins maps a plugins.load config entry to its constructor.
// There is no dynamic "base + name" import resolution in Go the way the
// original framework resolves a plugin module path at runtime; bundled
// plugins are named here, and out-of-tree plugins are wired in by
// embedding aib in a purpose-built binary instead of through aibotctl.
var builtinPlugins = map[string]func() component.Component[*aib.Context]{
	"nickserv": func() component.Component[*aib.Context] { return nickserv.New() },
	"channels": func() component.Component[*aib.Context] { return channels.New() },
	"karma":    func() component.Component[*aib.Context] { return karma.New() },
	"dice":     func() component.Component[*aib.Context] { return dice.New() },
}

func resolvePlugins(names []string) ([]component.Component[*aib.Context], error) {
	out := make([]component.Component[*aib.Context], 0, len(names))
	for _, name := range names {
		ctor, ok := builtinPlugins[name]
		if !ok {
			return nil, fmt.Errorf("aibotctl: unknown plugin %q (available: nickserv, channels, karma, dice)", name)
		}
		out = append(out, ctor())
	}
	return out, nil
}
