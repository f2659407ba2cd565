// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command seance-discord lets a single reference user speak through a
// Discord bot persona. Messages matching the configured tag pattern are
// deleted and re-posted under the bot's identity, and follow-up commands
// (!edit, !s, !status, !presence, !nick) manage the proxied messages and
// the persona.
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

	"github.com/coreos/go-systemd/v22/daemon"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/seance/pkg/discord"
	"github.com/aiku/seance/pkg/proxy/sedsubst"
	"github.com/aiku/seance/pkg/seanceconfig"
)

const version = "0.2.0"

// These are filled at build time with -ldflags.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath    = flag.MakeFull("c", "config", "The path to the config file.", "config.yaml").String()
	token         = flag.Make().LongKey("token").Usage("Discord bot token, overriding the config.").String()
	refUserID     = flag.Make().LongKey("ref-user-id").Usage("Reference user ID, overriding the config.").String()
	pattern       = flag.Make().LongKey("pattern").Usage("Tag pattern, overriding the config.").String()
	prefix        = flag.Make().LongKey("prefix").Usage("Extra command prefix, overriding the config.").String()
	systemdNotify = flag.Make().LongKey("systemd-notify").Usage("Report readiness to systemd.").Bool()
	printVersion  = flag.MakeFull("v", "version", "Print the version and exit.", "false").Bool()
	wantHelp, _   = flag.MakeHelpFlag()
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
		"seance-discord - Let one reference user speak through a Discord bot persona.",
		"seance-discord [-h] [-c <path>] [--version]",
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
		fmt.Printf("seance-discord %s (commit %s, built %s)\n", version, Commit, BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv(seanceconfig.PlatformDiscord)
	if *token != "" {
		cfg.Discord.Token = *token
	}
	if *refUserID != "" {
		cfg.Discord.ReferenceUserID = *refUserID
	}
	if *pattern != "" {
		cfg.Proxy.Pattern = *pattern
	}
	if *prefix != "" {
		cfg.Proxy.Prefix = *prefix
	}
	if *systemdNotify {
		cfg.Discord.SystemdNotify = true
	}
	if err := cfg.Validate(seanceconfig.PlatformDiscord); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to configure logging:", err)
		os.Exit(1)
	}
	log.Info().Str("version", version).Msg("Initializing seance-discord")

	rule, err := cfg.Rule(seanceconfig.PlatformDiscord, discord.MessageLinkPattern)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid proxy rule")
	}
	client, err := discord.NewClient(discord.Config{
		Token:       cfg.Discord.Token,
		Rule:        rule,
		Substituter: sedsubst.New(),
		Log:         *log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancelConnect := context.WithTimeout(ctx, time.Minute)
	err = client.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Discord")
	}

	var admin *http.Server
	if cfg.Admin.Addr != "" {
		admin = client.Engine().StartAdmin(cfg.Admin.Addr)
	}

	if cfg.Discord.SystemdNotify {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Warn().Err(err).Msg("Failed to notify systemd")
		} else if !ok {
			log.Warn().Msg("Systemd notification requested but NOTIFY_SOCKET is unset")
		}
	} else if os.Getenv("NOTIFY_SOCKET") != "" {
		log.Warn().Msg("Running under systemd without systemd_notify enabled")
	}
	log.Info().Msg("Startup complete")

	<-ctx.Done()
	stop()
	log.Info().Msg("Shutting down")
	if cfg.Discord.SystemdNotify {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	}

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
