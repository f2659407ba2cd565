// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package seanceconfig loads the YAML configuration shared by the platform
// binaries. User configs are migrated against the embedded example config,
// so missing keys pick up defaults and unknown keys are dropped.
package seanceconfig

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/ptr"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/seance/pkg/proxy"
)

//go:embed example-config.yaml
var ExampleConfig string

// Platform selects which chat platform a binary drives. It scopes
// validation, environment overrides and reference user resolution.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// ProxyConfig configures the tag matcher and the command router.
type ProxyConfig struct {
	// Pattern is the tag regexp. It must contain a named capture group
	// `content` holding the text to proxy. Required.
	Pattern string `yaml:"pattern"`
	// Prefix is an optional extra command prefix. Bare `!` commands always
	// work; a prefix makes `<prefix>!` forms work too.
	Prefix string `yaml:"prefix"`
	// ForceReproxyEmoji lists reactions the bot persona re-issues when the
	// reference user adds them. Unicode emoji or name:id custom forms.
	ForceReproxyEmoji []string `yaml:"force_reproxy_emoji"`
}

// DiscordConfig configures seance-discord.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// ReferenceUserID is the numeric ID of the only account allowed to
	// speak through the bot.
	ReferenceUserID string `yaml:"ref_user_id"`
	// SystemdNotify reports readiness to systemd once the gateway session
	// is open.
	SystemdNotify bool `yaml:"systemd_notify"`
}

// TelegramConfig configures seance-telegram.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// ReferenceUsername is the username (without the @) of the only account
	// allowed to speak through the bot. Matched case-insensitively.
	ReferenceUsername string `yaml:"ref_username"`
}

// AdminConfig configures the read-only status API.
type AdminConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `yaml:"addr"`
}

// Config is the root configuration shared by both binaries.
type Config struct {
	Proxy    ProxyConfig       `yaml:"proxy"`
	Discord  DiscordConfig     `yaml:"discord"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Admin    AdminConfig       `yaml:"admin"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(raw)
}

// Parse parses raw YAML config data, migrated against the example config.
// The file on disk is never rewritten.
func Parse(raw []byte) (*Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	var base, user yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	upgradeConfig(up.NewHelper(&base, &user))
	merged, err := yaml.Marshal(&base)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize upgraded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse upgraded config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Logging.Writers) == 0 {
		c.Logging.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStdout,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}
	if c.Logging.MinLevel == nil {
		c.Logging.MinLevel = ptr.Ptr(zerolog.DebugLevel)
	}
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "proxy", "pattern")
	helper.Copy(up.Str, "proxy", "prefix")
	helper.Copy(up.List, "proxy", "force_reproxy_emoji")
	helper.Copy(up.Str, "discord", "token")
	helper.Copy(up.Str, "discord", "ref_user_id")
	helper.Copy(up.Bool, "discord", "systemd_notify")
	helper.Copy(up.Str, "telegram", "token")
	helper.Copy(up.Str, "telegram", "ref_username")
	helper.Copy(up.Str, "admin", "addr")
	helper.Copy(up.Map, "logging")
}

// Upgrader migrates user configs against the embedded example config.
var Upgrader up.Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks:         nil,
	Base:           ExampleConfig,
}

// ApplyEnv overlays SEANCE_* environment variables onto the config, keeping
// the original deployment names: SEANCE_DISCORD_TOKEN,
// SEANCE_DISCORD_REF_USER_ID, SEANCE_TELEGRAM_REF_USERNAME,
// SEANCE_<PLATFORM>_PATTERN, SEANCE_<PLATFORM>_PREFIX, SEANCE_ADMIN_ADDR.
func (c *Config) ApplyEnv(platform Platform) {
	prefix := "SEANCE_" + strings.ToUpper(string(platform)) + "_"
	if v, ok := os.LookupEnv(prefix + "TOKEN"); ok {
		switch platform {
		case PlatformDiscord:
			c.Discord.Token = v
		case PlatformTelegram:
			c.Telegram.Token = v
		}
	}
	if v, ok := os.LookupEnv(prefix + "REF_USER_ID"); ok && platform == PlatformDiscord {
		c.Discord.ReferenceUserID = v
	}
	if v, ok := os.LookupEnv(prefix + "REF_USERNAME"); ok && platform == PlatformTelegram {
		c.Telegram.ReferenceUsername = v
	}
	if v, ok := os.LookupEnv(prefix + "PATTERN"); ok {
		c.Proxy.Pattern = v
	}
	if v, ok := os.LookupEnv(prefix + "PREFIX"); ok {
		c.Proxy.Prefix = v
	}
	if v, ok := os.LookupEnv("SEANCE_ADMIN_ADDR"); ok {
		c.Admin.Addr = v
	}
}

// Validate checks that every option the platform requires is set, reporting
// all missing options in one error.
func (c *Config) Validate(platform Platform) error {
	var missing []string
	if c.Proxy.Pattern == "" {
		missing = append(missing, "proxy.pattern")
	}
	switch platform {
	case PlatformDiscord:
		if c.Discord.Token == "" {
			missing = append(missing, "discord.token")
		}
		if c.Discord.ReferenceUserID == "" {
			missing = append(missing, "discord.ref_user_id")
		}
	case PlatformTelegram:
		if c.Telegram.Token == "" {
			missing = append(missing, "telegram.token")
		}
		if c.Telegram.ReferenceUsername == "" {
			missing = append(missing, "telegram.ref_username")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("the following options are required: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ReferenceUser resolves the platform's reference user identifier in the
// form the adapter reports authors: the numeric ID on Discord, the
// lowercased username on Telegram.
func (c *Config) ReferenceUser(platform Platform) string {
	switch platform {
	case PlatformTelegram:
		return strings.ToLower(c.Telegram.ReferenceUsername)
	default:
		return c.Discord.ReferenceUserID
	}
}

// Rule builds the proxy rule for the given platform. The messageLink
// pattern recognizes platform message links as edit targets and may be nil.
func (c *Config) Rule(platform Platform, messageLink *regexp.Regexp) (*proxy.Rule, error) {
	return proxy.NewRule(proxy.RuleConfig{
		ReferenceUser:     c.ReferenceUser(platform),
		Pattern:           c.Proxy.Pattern,
		Prefix:            c.Proxy.Prefix,
		ForceReproxyEmoji: c.Proxy.ForceReproxyEmoji,
		MessageLink:       messageLink,
	})
}
