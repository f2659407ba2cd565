// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
)

// HandleReactionAdd is the force-reproxy monitor. When the reference user
// reacts with an emoji in the configured set, the user's reaction is
// stripped and the same reaction re-added under the bot persona. The strip
// runs first and the add runs regardless of its outcome; the user's
// reaction must not stay visible. Re-adding an already-present reaction is
// a no-op, so replayed events are harmless.
func (e *Engine) HandleReactionAdd(ctx context.Context, evt ReactionEvent) {
	if evt.User != e.rule.referenceUser {
		return
	}
	if !e.rule.IsForceReproxy(evt.Emoji) {
		return
	}
	done, ok := e.track()
	if !ok {
		return
	}
	defer done()

	log := e.log.With().
		Str("message_id", string(evt.MessageID)).
		Str("emoji", string(evt.Emoji)).
		Logger()
	if err := e.gateway.RemoveReaction(ctx, evt.ChannelID, evt.MessageID, evt.Emoji, evt.User); err != nil {
		log.Warn().Err(err).Msg("Failed to strip reference user's reaction")
	}
	if err := e.gateway.AddReaction(ctx, evt.ChannelID, evt.MessageID, evt.Emoji); err != nil {
		log.Err(err).Msg("Failed to re-add reaction under bot persona")
		return
	}
	log.Debug().Msg("Reproxied reaction")
}

var customEmojiShortcut = regexp.MustCompile(`\A<(a?):(\w{2,}):(\d+)>\z`)

// reactionShortcut is tagged content of the form "+emoji" / "-emoji": a
// reaction to apply or remove instead of a message to proxy.
type reactionShortcut struct {
	add   bool
	emoji EmojiID
}

// parseReactionShortcut recognizes reaction shortcuts in tagged content.
// The unicode form requires the remainder to be exactly one emoji grapheme;
// the custom form is the platform's <a:name:id> markup. Anything else falls
// through to normal proxying.
func parseReactionShortcut(content string) (reactionShortcut, bool) {
	if len(content) < 2 {
		return reactionShortcut{}, false
	}
	var add bool
	switch content[0] {
	case '+':
		add = true
	case '-':
		add = false
	default:
		return reactionShortcut{}, false
	}
	rest := content[1:]
	if groups := customEmojiShortcut.FindStringSubmatch(rest); groups != nil {
		return reactionShortcut{add: add, emoji: EmojiID(groups[2] + ":" + groups[3])}, true
	}
	if gomoji.ContainsEmoji(rest) &&
		strings.TrimSpace(gomoji.RemoveEmojis(rest)) == "" &&
		uniseg.GraphemeClusterCount(rest) == 1 {
		return reactionShortcut{add: add, emoji: EmojiID(rest)}, true
	}
	return reactionShortcut{}, false
}

// runReactionShortcut applies a reaction shortcut. The target is the
// replied-to message when the tagged message is a reply (re-pointed to the
// proxied side when a mapping exists), otherwise the newest proxied message
// in the channel. The tagged original is deleted either way; it was
// addressed to the bot and never meant to stay.
func (e *Engine) runReactionShortcut(ctx context.Context, evt MessageEvent, shortcut reactionShortcut) {
	log := e.log.With().
		Str("message_id", string(evt.ID)).
		Str("emoji", string(shortcut.emoji)).
		Bool("add", shortcut.add).
		Logger()

	target := evt.ReplyTo
	if target != "" {
		if m, ok := e.store.Lookup(target); ok {
			target = m.ProxiedID
		}
	} else if m, ok := e.store.LatestInChannel(evt.ChannelID); ok {
		target = m.ProxiedID
	}
	if target == "" {
		log.Debug().Msg("Reaction shortcut has no target, dropping")
		e.deleteOriginal(ctx, log, evt)
		return
	}

	var err error
	if shortcut.add {
		err = e.gateway.AddReaction(ctx, evt.ChannelID, target, shortcut.emoji)
	} else {
		err = e.gateway.RemoveReaction(ctx, evt.ChannelID, target, shortcut.emoji, e.gateway.BotUser())
	}
	if err != nil {
		log.Err(err).Str("target_id", string(target)).Msg("Reaction shortcut failed")
	}
	e.deleteOriginal(ctx, log, evt)
}
