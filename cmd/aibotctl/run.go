// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and run the bot until interrupted",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	loader, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "aibotctl: using config file %s\n", loader.Path())

	logger := log.New(os.Stderr, "", log.LstdFlags)

	client, err := aib.New(loader, logger)
	if err != nil {
		return fmt.Errorf("aibotctl: %w", err)
	}

	cfg := client.Context().Config
	plugins, err := resolvePlugins(cfg.Plugins.Load)
	if err != nil {
		return err
	}
	if err := client.Context().Plugins.LoadAll(client.Context(), plugins); err != nil {
		return fmt.Errorf("aibotctl: loading plugins: %w", err)
	}

	loader.Watch(func(_ *config.Config, err error) {
		if err != nil {
			logger.Printf("aibotctl: config reload failed: %v", err)
			return
		}
		logger.Printf("aibotctl: config file changed; restart to apply")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	return client.Run(ctx)
}
