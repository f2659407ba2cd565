// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/aiku/seance/pkg/proxy"
)

// handleReady records the bot identity and unblocks Connect.
func (c *Client) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	c.botUser = proxy.MakeUserID(r.User.ID)
	c.mu.Unlock()
	c.log.Info().
		Str("user_id", r.User.ID).
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Discord session ready")
	c.readyOnce.Do(func() {
		close(c.readyChan)
	})
}

// handleMessageCreate feeds new messages to the engine. The bot's own
// messages and webhook posts are dropped here so proxied copies never loop
// back through the pipeline.
func (c *Client) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if c.skipMessage(m.Message) {
		return
	}
	c.engine.HandleMessage(context.Background(), messageToEvent(m.Message))
}

// handleMessageUpdate re-runs the pipeline on edits. Discord sends partial
// updates for embed unfurls; those carry no author and are dropped.
func (c *Client) handleMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || c.skipMessage(m.Message) {
		return
	}
	var before string
	if m.BeforeUpdate != nil {
		before = m.BeforeUpdate.Content
	}
	c.engine.HandleMessageEdit(context.Background(), proxy.MessageEditEvent{
		Message:       messageToEvent(m.Message),
		BeforeContent: before,
	})
}

// handleMessageDelete forwards every deletion unfiltered. MESSAGE_DELETE
// carries no author, and the engine's own deletes of tagged originals echo
// back through here; the engine decides which deletions retire a mapping.
func (c *Client) handleMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	c.engine.HandleMessageDelete(context.Background(), proxy.MessageDeleteEvent{
		ID:        proxy.MakeMessageID(m.ID),
		ChannelID: proxy.MakeChannelID(m.ChannelID),
	})
}

// handleReactionAdd forwards reactions. The bot's own reactions are dropped
// here; the re-added force-reproxy reaction would otherwise trigger itself.
func (c *Client) handleReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if proxy.MakeUserID(r.UserID) == c.BotUser() {
		return
	}
	c.engine.HandleReactionAdd(context.Background(), proxy.ReactionEvent{
		MessageID: proxy.MakeMessageID(r.MessageID),
		ChannelID: proxy.MakeChannelID(r.ChannelID),
		User:      proxy.MakeUserID(r.UserID),
		Emoji:     proxy.MakeEmojiID(r.Emoji.APIName()),
	})
}

func (c *Client) handlePresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	c.engine.HandlePresence(context.Background(), proxy.PresenceEvent{
		User:   proxy.MakeUserID(p.User.ID),
		Status: statusFromDiscord(p.Status),
	})
}

// skipMessage reports events the engine must never see: authorless partial
// updates, webhook posts, and the bot's own messages.
func (c *Client) skipMessage(msg *discordgo.Message) bool {
	if msg.Author == nil || msg.WebhookID != "" {
		return true
	}
	return proxy.MakeUserID(msg.Author.ID) == c.BotUser()
}

// messageToEvent converts a Discord message to the engine's event shape.
func messageToEvent(msg *discordgo.Message) proxy.MessageEvent {
	evt := proxy.MessageEvent{
		ID:        proxy.MakeMessageID(msg.ID),
		ChannelID: proxy.MakeChannelID(msg.ChannelID),
		Author:    proxy.MakeUserID(msg.Author.ID),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if msg.MessageReference != nil {
		evt.ReplyTo = proxy.MakeMessageID(msg.MessageReference.MessageID)
	}
	for _, att := range msg.Attachments {
		evt.Attachments = append(evt.Attachments, proxy.Attachment{
			ID:          att.ID,
			Filename:    att.Filename,
			URL:         att.URL,
			ProxyURL:    att.ProxyURL,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return evt
}
