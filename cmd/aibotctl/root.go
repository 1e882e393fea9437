// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "aibotctl",
	Short:   "Run and inspect an aib IRC bot",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default search: ./config.yaml, $HOME/.aib, /etc/aib)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s {{.Version}}\n", rootCmd.Use))
}
