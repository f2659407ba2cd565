// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/seance/pkg/proxy"
)

func (c *Client) listenUpdates(updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-c.stopChan:
			return
		case update, ok := <-updates:
			if !ok {
				c.log.Warn().Msg("Update channel closed")
				return
			}
			// The engine serializes per message key itself; each update
			// gets its own goroutine so one slow REST call cannot stall
			// the poll loop.
			go c.handleUpdate(update)
		}
	}
}

func (c *Client) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		c.handleMessage(update.Message)
	case update.EditedMessage != nil:
		c.handleEdited(update.EditedMessage)
	}
}

func (c *Client) handleMessage(msg *tgbotapi.Message) {
	if c.skipMessage(msg) {
		return
	}
	c.engine.HandleMessage(context.Background(), messageToEvent(msg))
}

// handleEdited re-runs the pipeline on edits. Telegram does not include the
// pre-edit content, so every edit goes through.
func (c *Client) handleEdited(msg *tgbotapi.Message) {
	if c.skipMessage(msg) {
		return
	}
	c.engine.HandleMessageEdit(context.Background(), proxy.MessageEditEvent{
		Message: messageToEvent(msg),
	})
}

// skipMessage drops the bot's own messages so proxied copies never loop
// back through the pipeline.
func (c *Client) skipMessage(msg *tgbotapi.Message) bool {
	if msg.Chat == nil {
		return true
	}
	return msg.From != nil && msg.From.ID == c.bot.Self.ID
}

// messageToEvent converts a Telegram message to the engine's event shape.
// Media messages carry their text in the caption; both forms land in
// Content so the tag matcher sees them the same way.
func messageToEvent(msg *tgbotapi.Message) proxy.MessageEvent {
	content, entities := msg.Text, msg.Entities
	if content == "" && msg.Caption != "" {
		content, entities = msg.Caption, msg.CaptionEntities
	}
	evt := proxy.MessageEvent{
		ID:          makeMessageID(msg.Chat.ID, msg.MessageID),
		ChannelID:   makeChatID(msg.Chat.ID),
		Author:      authorID(msg.From),
		Content:     content,
		Entities:    entitiesFromTelegram(entities),
		Attachments: attachmentsFromMessage(msg),
		Timestamp:   time.Unix(int64(msg.Date), 0),
	}
	if msg.ReplyToMessage != nil {
		evt.ReplyTo = makeMessageID(msg.Chat.ID, msg.ReplyToMessage.MessageID)
	}
	return evt
}

// authorID is the sender's lowercased username, matching how the reference
// user is configured. Users without a username never match.
func authorID(user *tgbotapi.User) proxy.UserID {
	if user == nil {
		return ""
	}
	return proxy.MakeUserID(strings.ToLower(user.UserName))
}

// attachmentsFromMessage lifts Telegram media into attachment records. The
// URL stays empty; the gateway resolves the file ID to a download URL at
// send time because direct URLs expire.
func attachmentsFromMessage(msg *tgbotapi.Message) []proxy.Attachment {
	var atts []proxy.Attachment
	if msg.Document != nil {
		atts = append(atts, proxy.Attachment{
			ID:          msg.Document.FileID,
			Filename:    msg.Document.FileName,
			ContentType: msg.Document.MimeType,
			Size:        msg.Document.FileSize,
		})
	}
	if len(msg.Photo) > 0 {
		// Telegram sends every thumbnail size; the last entry is the
		// full-resolution one.
		photo := msg.Photo[len(msg.Photo)-1]
		atts = append(atts, proxy.Attachment{
			ID:          photo.FileID,
			Filename:    "photo.jpg",
			ContentType: "image/jpeg",
			Size:        photo.FileSize,
		})
	}
	return atts
}
