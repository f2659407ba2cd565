// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telegram runs the proxy engine over a Telegram bot, long-polling
// for updates. The adapter is experimental: this Bot API version has no
// delete events, no reactions, and no bot presence, so those gateway calls
// report ErrUnsupported and the engine degrades accordingly.
//
// The reference user is addressed by username, lowercased, since Telegram
// updates carry usernames rather than stable handles for mentions.
package telegram

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aiku/seance/pkg/proxy"
)

// Config carries everything the client needs to run.
type Config struct {
	Token       string
	Rule        *proxy.Rule
	Substituter proxy.Substituter
	Log         zerolog.Logger
}

// Client is one bot bound to one proxy engine.
type Client struct {
	bot    *tgbotapi.BotAPI
	engine *proxy.Engine
	log    zerolog.Logger

	// Telegram caps bots at about thirty messages per second globally.
	limiter *rate.Limiter
	botUser proxy.UserID

	stopOnce sync.Once
	stopChan chan struct{}
}

var _ proxy.Gateway = (*Client)(nil)

// NewClient authenticates the bot token and builds the engine but does not
// start polling.
func NewClient(cfg Config) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot client: %w", err)
	}
	c := &Client{
		bot:      bot,
		log:      cfg.Log.With().Str("component", "telegram_client").Logger(),
		limiter:  rate.NewLimiter(rate.Every(40*time.Millisecond), 2),
		botUser:  proxy.MakeUserID(strings.ToLower(bot.Self.UserName)),
		stopChan: make(chan struct{}),
	}
	c.engine = proxy.NewEngine(cfg.Rule, c, cfg.Substituter, cfg.Log)
	return c, nil
}

// Engine exposes the proxy engine for admin wiring and shutdown draining.
func (c *Client) Engine() *proxy.Engine {
	return c.engine
}

// Connect starts the long-poll update loop. The token was already verified
// by NewClient.
func (c *Client) Connect() error {
	c.log.Info().Str("username", c.bot.Self.UserName).Msg("Connected to Telegram")
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 60
	go c.listenUpdates(c.bot.GetUpdatesChan(updateCfg))
	return nil
}

// Disconnect stops the update loop.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.bot.StopReceivingUpdates()
}
