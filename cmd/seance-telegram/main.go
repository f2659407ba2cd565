// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command seance-telegram lets a single reference user speak through a
// Telegram bot persona. The Telegram adapter is experimental: the Bot API
// offers no delete events, reactions or bot presence, so force-reproxy,
// !status, !presence and !nick degrade to logged no-ops.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "maunium.net/go/mauflag"

	"github.com/aiku/seance/pkg/proxy/sedsubst"
	"github.com/aiku/seance/pkg/seanceconfig"
	"github.com/aiku/seance/pkg/telegram"
)

const version = "0.2.0"

// These are filled at build time with -ldflags.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath   = flag.MakeFull("c", "config", "The path to the config file.", "config.yaml").String()
	token        = flag.Make().LongKey("token").Usage("Telegram bot token, overriding the config.").String()
	refUsername  = flag.Make().LongKey("ref-username").Usage("Reference username, overriding the config.").String()
	pattern      = flag.Make().LongKey("pattern").Usage("Tag pattern, overriding the config.").String()
	prefix       = flag.Make().LongKey("prefix").Usage("Extra command prefix, overriding the config.").String()
	printVersion = flag.MakeFull("v", "version", "Print the version and exit.", "false").Bool()
	wantHelp, _  = flag.MakeHelpFlag()
)

// loadConfig reads the config file, falling back to built-in defaults when
// the file does not exist so everything can come from the environment and
// flags instead.
func loadConfig(path string) (*seanceconfig.Config, error) {
	cfg, err := seanceconfig.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return seanceconfig.Parse(nil)
	}
	return cfg, err
}

func main() {
	flag.SetHelpTitles(
		"seance-telegram - Let one reference user speak through a Telegram bot persona.",
		"seance-telegram [-h] [-c <path>] [--version]",
	)
	err := flag.Parse()
	if err != nil {
		fmt.Println(err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		return
	} else if *printVersion {
		fmt.Printf("seance-telegram %s (commit %s, built %s)\n", version, Commit, BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv(seanceconfig.PlatformTelegram)
	if *token != "" {
		cfg.Telegram.Token = *token
	}
	if *refUsername != "" {
		cfg.Telegram.ReferenceUsername = *refUsername
	}
	if *pattern != "" {
		cfg.Proxy.Pattern = *pattern
	}
	if *prefix != "" {
		cfg.Proxy.Prefix = *prefix
	}
	if err := cfg.Validate(seanceconfig.PlatformTelegram); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to configure logging:", err)
		os.Exit(1)
	}
	log.Info().Str("version", version).Msg("Initializing seance-telegram")

	// Telegram has no message links worth resolving as edit targets.
	rule, err := cfg.Rule(seanceconfig.PlatformTelegram, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid proxy rule")
	}
	client, err := telegram.NewClient(telegram.Config{
		Token:       cfg.Telegram.Token,
		Rule:        rule,
		Substituter: sedsubst.New(),
		Log:         *log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}

	var admin *http.Server
	if cfg.Admin.Addr != "" {
		admin = client.Engine().StartAdmin(cfg.Admin.Addr)
	}
	log.Info().Msg("Startup complete")

	<-ctx.Done()
	stop()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := client.Engine().Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Engine drain incomplete")
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down admin API")
		}
	}
	client.Disconnect()
}
