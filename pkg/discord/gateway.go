// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.mau.fi/util/ptr"

	"github.com/aiku/seance/pkg/proxy"
)

// SendMessage implements proxy.Gateway. Attachments are re-uploaded from
// the original message's CDN URLs, so the proxied copy owns its files even
// after the original is deleted.
func (c *Client) SendMessage(ctx context.Context, req proxy.SendRequest) (proxy.MessageID, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	send := &discordgo.MessageSend{Content: req.Content}
	if req.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: proxy.ParseMessageID(req.ReplyTo),
			ChannelID: proxy.ParseChannelID(req.ChannelID),
			// The replied-to message may be deleted between intake and
			// send; post without the reference rather than failing.
			FailIfNotExists: ptr.Ptr(false),
		}
	}
	files, closeFiles, err := c.downloadAttachments(ctx, req.Attachments)
	if err != nil {
		return "", err
	}
	defer closeFiles()
	send.Files = files

	msg, err := c.session.ChannelMessageSendComplex(proxy.ParseChannelID(req.ChannelID), send, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapErr(err)
	}
	return proxy.MakeMessageID(msg.ID), nil
}

// downloadAttachments streams each attachment off the CDN for re-upload.
// The returned closer releases the response bodies once the send finished;
// it is non-nil exactly when the error is nil.
func (c *Client) downloadAttachments(ctx context.Context, atts []proxy.Attachment) ([]*discordgo.File, func(), error) {
	var files []*discordgo.File
	var bodies []io.Closer
	closeAll := func() {
		for _, body := range bodies {
			_ = body.Close()
		}
	}
	for _, att := range atts {
		url := att.URL
		if url == "" {
			url = att.ProxyURL
		}
		if url == "" {
			continue
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to build attachment request: %w", err)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to download attachment %s: %w", att.Filename, err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			closeAll()
			return nil, nil, fmt.Errorf("failed to download attachment %s: HTTP %d", att.Filename, resp.StatusCode)
		}
		bodies = append(bodies, resp.Body)
		files = append(files, &discordgo.File{
			Name:        att.Filename,
			ContentType: att.ContentType,
			Reader:      resp.Body,
		})
	}
	return files, closeAll, nil
}

// DeleteMessage implements proxy.Gateway.
func (c *Client) DeleteMessage(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return wrapErr(c.session.ChannelMessageDelete(proxy.ParseChannelID(channel), proxy.ParseMessageID(id), discordgo.WithContext(ctx)))
}

// EditMessage implements proxy.Gateway.
func (c *Client) EditMessage(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID, content string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.session.ChannelMessageEdit(proxy.ParseChannelID(channel), proxy.ParseMessageID(id), content, discordgo.WithContext(ctx))
	return wrapErr(err)
}

// AddReaction implements proxy.Gateway.
func (c *Client) AddReaction(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID, emoji proxy.EmojiID) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return wrapErr(c.session.MessageReactionAdd(proxy.ParseChannelID(channel), proxy.ParseMessageID(id), proxy.ParseEmojiID(emoji), discordgo.WithContext(ctx)))
}

// RemoveReaction implements proxy.Gateway. Removing another user's reaction
// requires the Manage Messages permission.
func (c *Client) RemoveReaction(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID, emoji proxy.EmojiID, user proxy.UserID) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	userID := proxy.ParseUserID(user)
	if user == c.BotUser() {
		userID = "@me"
	}
	return wrapErr(c.session.MessageReactionRemove(proxy.ParseChannelID(channel), proxy.ParseMessageID(id), proxy.ParseEmojiID(emoji), userID, discordgo.WithContext(ctx)))
}

// SetPresence implements proxy.Gateway. Presence rides the gateway socket,
// not REST, so ctx only bounds the limiter wait.
func (c *Client) SetPresence(ctx context.Context, presence proxy.Presence) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return wrapErr(c.session.UpdateStatusComplex(buildStatusUpdate(presence)))
}

// SetNickname implements proxy.Gateway. Discord nicknames are per guild, so
// the rename runs over every guild the bot is in; the first failure is
// reported after the remaining guilds were still attempted.
func (c *Client) SetNickname(ctx context.Context, name string) error {
	var firstErr error
	for _, guild := range c.session.State.Guilds {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.session.GuildMemberNickname(guild.ID, "@me", name, discordgo.WithContext(ctx)); err != nil {
			c.log.Warn().Err(err).Str("guild_id", guild.ID).Msg("Failed to set nickname in guild")
			if firstErr == nil {
				firstErr = wrapErr(err)
			}
		}
	}
	return firstErr
}

// BotUser implements proxy.Gateway.
func (c *Client) BotUser() proxy.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUser
}

// wrapErr maps discordgo REST failures onto the engine's error taxonomy.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", proxy.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", proxy.ErrTargetNotFound, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", proxy.ErrRateLimited, err)
		}
		return err
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", proxy.ErrRateLimited, err)
	}
	return err
}
