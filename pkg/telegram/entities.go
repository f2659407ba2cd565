// Copyright 2024-2026 Aiku AI

package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/seance/pkg/proxy"
)

// Telegram message IDs are sequential per chat, so the engine-facing ID is
// the composite "<chat>/<message>" to keep the mapping store's single ID
// space collision-free.

func makeChatID(id int64) proxy.ChannelID {
	return proxy.MakeChannelID(strconv.FormatInt(id, 10))
}

func parseChatID(id proxy.ChannelID) (int64, error) {
	chatID, err := strconv.ParseInt(proxy.ParseChannelID(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat ID %q: %w", id, err)
	}
	return chatID, nil
}

func makeMessageID(chatID int64, messageID int) proxy.MessageID {
	return proxy.MakeMessageID(fmt.Sprintf("%d/%d", chatID, messageID))
}

// parseMessageID accepts both the composite form and a bare message number,
// so explicit !edit targets typed by hand still resolve.
func parseMessageID(id proxy.MessageID) (int, error) {
	raw := proxy.ParseMessageID(id)
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}
	messageID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad message ID %q: %w", id, err)
	}
	return messageID, nil
}

// entitiesFromTelegram lifts rich-text spans into the engine's opaque form.
// Offsets stay in UTF-16 units, Telegram's native measure.
func entitiesFromTelegram(entities []tgbotapi.MessageEntity) []proxy.TextEntity {
	var out []proxy.TextEntity
	for _, ent := range entities {
		converted := proxy.TextEntity{
			Type:   ent.Type,
			Offset: ent.Offset,
			Length: ent.Length,
			URL:    ent.URL,
		}
		if ent.User != nil {
			converted.UserID = ent.User.ID
		}
		out = append(out, converted)
	}
	return out
}

// shiftEntities re-anchors spans after the tag prefix was stripped from the
// front of the text. The shift is in UTF-16 units. Spans that end inside
// the stripped prefix vanish; spans straddling it keep their visible part.
func shiftEntities(entities []proxy.TextEntity, shift int) []tgbotapi.MessageEntity {
	var out []tgbotapi.MessageEntity
	for _, ent := range entities {
		offset := ent.Offset - shift
		length := ent.Length
		if offset < 0 {
			length += offset
			offset = 0
		}
		if length <= 0 {
			continue
		}
		converted := tgbotapi.MessageEntity{
			Type:   ent.Type,
			Offset: offset,
			Length: length,
			URL:    ent.URL,
		}
		if ent.UserID != 0 {
			converted.User = &tgbotapi.User{ID: ent.UserID}
		}
		out = append(out, converted)
	}
	return out
}
