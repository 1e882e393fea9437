// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyreef/aib/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the bot's configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the config file without connecting",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		cfg, err := loader.Load()
		if err != nil {
			return err
		}

		fmt.Printf("config file: %s\n", loader.Path())
		fmt.Printf("irc.servers: %v\n", cfg.IRC.Servers)
		fmt.Printf("irc.nick: %s\n", cfg.IRC.Nick)
		fmt.Printf("triggers.prefix: %s\n", cfg.Triggers.Prefix)
		if len(cfg.Channels.Autojoin) > 0 {
			fmt.Printf("channels.autojoin: %v (db persistence: %v)\n", cfg.Channels.Autojoin, cfg.Channels.DB)
		}
		if db := cfg.DB.Backend; db != "" {
			fmt.Printf("db.backend: %s\n", db)
		}
		if len(cfg.Plugins.Load) > 0 {
			if _, err := resolvePlugins(cfg.Plugins.Load); err != nil {
				return err
			}
			fmt.Printf("plugins.load: %v (all resolved)\n", cfg.Plugins.Load)
		}
		fmt.Println("config OK")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
