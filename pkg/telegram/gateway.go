// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/seance/pkg/proxy"
)

// SendMessage implements proxy.Gateway. The Bot API has no ctx support, so
// ctx only bounds the limiter wait. Attachments re-send by file ID, which
// Telegram serves without a second upload.
func (c *Client) SendMessage(ctx context.Context, req proxy.SendRequest) (proxy.MessageID, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	chatID, err := parseChatID(req.ChannelID)
	if err != nil {
		return "", err
	}

	var primary proxy.MessageID
	if req.Content != "" {
		msg := tgbotapi.NewMessage(chatID, req.Content)
		if req.ReplyTo != "" {
			if replyID, err := parseMessageID(req.ReplyTo); err == nil {
				msg.ReplyToMessageID = replyID
			}
		}
		msg.Entities = shiftEntities(req.Entities, req.EntityShift)
		sent, err := c.bot.Send(msg)
		if err != nil {
			return "", wrapErr(err)
		}
		primary = makeMessageID(chatID, sent.MessageID)
	}
	for _, att := range req.Attachments {
		sentID, err := c.resendAttachment(ctx, chatID, att)
		if err != nil {
			if primary == "" {
				return "", err
			}
			c.log.Warn().Err(err).Str("filename", att.Filename).Msg("Failed to re-send attachment")
			continue
		}
		if primary == "" {
			primary = sentID
		}
	}
	if primary == "" {
		return "", fmt.Errorf("%w: nothing to send", proxy.ErrUnsupported)
	}
	return primary, nil
}

// resendAttachment posts one attachment as a document, resolving the file
// ID to a fresh download URL first.
func (c *Client) resendAttachment(ctx context.Context, chatID int64, att proxy.Attachment) (proxy.MessageID, error) {
	url := att.URL
	if url == "" && att.ID != "" {
		direct, err := c.bot.GetFileDirectURL(att.ID)
		if err != nil {
			return "", wrapErr(err)
		}
		url = direct
	}
	if url == "" {
		return "", fmt.Errorf("%w: attachment %s has no source", proxy.ErrUnsupported, att.Filename)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	sent, err := c.bot.Send(tgbotapi.NewDocument(chatID, tgbotapi.FileURL(url)))
	if err != nil {
		return "", wrapErr(err)
	}
	return makeMessageID(chatID, sent.MessageID), nil
}

// DeleteMessage implements proxy.Gateway. Telegram only lets the bot delete
// other users' messages in groups where it is an admin with the delete
// right; elsewhere this reports ErrPermissionDenied.
func (c *Client) DeleteMessage(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	chatID, err := parseChatID(channel)
	if err != nil {
		return err
	}
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}
	_, err = c.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	return wrapErr(err)
}

// EditMessage implements proxy.Gateway.
func (c *Client) EditMessage(ctx context.Context, channel proxy.ChannelID, id proxy.MessageID, content string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	chatID, err := parseChatID(channel)
	if err != nil {
		return err
	}
	msgID, err := parseMessageID(id)
	if err != nil {
		return err
	}
	_, err = c.bot.Request(tgbotapi.NewEditMessageText(chatID, msgID, content))
	return wrapErr(err)
}

// AddReaction implements proxy.Gateway. Not available in this API version.
func (c *Client) AddReaction(context.Context, proxy.ChannelID, proxy.MessageID, proxy.EmojiID) error {
	return fmt.Errorf("%w: reactions", proxy.ErrUnsupported)
}

// RemoveReaction implements proxy.Gateway. Not available in this API
// version.
func (c *Client) RemoveReaction(context.Context, proxy.ChannelID, proxy.MessageID, proxy.EmojiID, proxy.UserID) error {
	return fmt.Errorf("%w: reactions", proxy.ErrUnsupported)
}

// SetPresence implements proxy.Gateway. Telegram bots have no presence.
func (c *Client) SetPresence(context.Context, proxy.Presence) error {
	return fmt.Errorf("%w: presence", proxy.ErrUnsupported)
}

// SetNickname implements proxy.Gateway. Renaming a bot is a BotFather
// operation, not an API call, in this API version.
func (c *Client) SetNickname(context.Context, string) error {
	return fmt.Errorf("%w: nickname", proxy.ErrUnsupported)
}

// BotUser implements proxy.Gateway.
func (c *Client) BotUser() proxy.UserID {
	return c.botUser
}

// wrapErr maps Bot API failures onto the engine's error taxonomy. Telegram
// reports most conditions through the description text, so a few are
// matched by substring.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", proxy.ErrPermissionDenied, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", proxy.ErrRateLimited, err)
	}
	switch {
	case strings.Contains(apiErr.Message, "not found"):
		return fmt.Errorf("%w: %v", proxy.ErrTargetNotFound, err)
	case strings.Contains(apiErr.Message, "message is not modified"):
		// Editing to identical content is a no-op, not a failure.
		return nil
	case strings.Contains(apiErr.Message, "can't be deleted"),
		strings.Contains(apiErr.Message, "not enough rights"):
		return fmt.Errorf("%w: %v", proxy.ErrPermissionDenied, err)
	}
	return err
}
