// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discord runs the proxy engine over a Discord bot session. The
// Client is both the event source feeding the engine and the
// proxy.Gateway the engine acts through.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aiku/seance/pkg/proxy"
)

// Config carries everything the client needs to run.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token       string
	Rule        *proxy.Rule
	Substituter proxy.Substituter
	Log         zerolog.Logger
}

// Client is one bot session bound to one proxy engine.
type Client struct {
	session *discordgo.Session
	engine  *proxy.Engine
	log     zerolog.Logger

	// httpClient re-downloads attachments off the CDN for re-upload.
	httpClient *http.Client
	limiter    *rate.Limiter

	mu      sync.RWMutex
	botUser proxy.UserID

	readyOnce sync.Once
	readyChan chan struct{}

	stopOnce sync.Once
	stopChan chan struct{}
}

var _ proxy.Gateway = (*Client)(nil)

// NewClient builds the session and the engine but does not connect.
func NewClient(cfg Config) (*Client, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMessageReactions |
		discordgo.IntentGuildPresences |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	// Cache recent messages so edit events carry the pre-edit content.
	session.State.MaxMessageCount = 256

	c := &Client{
		session:    session,
		log:        cfg.Log.With().Str("component", "discord_client").Logger(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(25*time.Millisecond), 4),
		readyChan:  make(chan struct{}),
		stopChan:   make(chan struct{}),
	}
	c.engine = proxy.NewEngine(cfg.Rule, c, cfg.Substituter, cfg.Log)

	session.AddHandler(c.handleReady)
	session.AddHandler(c.handleMessageCreate)
	session.AddHandler(c.handleMessageUpdate)
	session.AddHandler(c.handleMessageDelete)
	session.AddHandler(c.handleReactionAdd)
	session.AddHandler(c.handlePresenceUpdate)
	return c, nil
}

// Engine exposes the proxy engine for admin wiring and shutdown draining.
func (c *Client) Engine() *proxy.Engine {
	return c.engine
}

// Connect opens the gateway session and waits until it reports ready, so
// BotUser is valid once Connect returns.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info().Msg("Connecting to Discord gateway")
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway session: %w", err)
	}
	select {
	case <-c.readyChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the gateway session. The engine keeps draining
// separately; callers that want a bounded drain call Engine().Close first.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	if err := c.session.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close gateway session")
	}
}
