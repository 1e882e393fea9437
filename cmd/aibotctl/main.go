// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Command aibotctl runs an aib bot from a YAML configuration file, and
// offers a config-check subcommand for validating one without connecting.
package main

import (
	"os"

	// Registers the "sqlite" database/sql driver name that
	// storage/sqlitedriver.Open expects; without this import, opening
	// db.backend: sqlite fails with an unknown-driver error.
	_ "modernc.org/sqlite"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
