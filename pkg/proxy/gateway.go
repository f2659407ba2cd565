// Copyright 2024-2026 Aiku AI

package proxy

import "context"

// Gateway is the capability surface the engine needs from a platform.
// Adapters implement it with their platform SDK and map SDK errors onto the
// sentinel errors in this package. All calls must honor ctx cancellation.
type Gateway interface {
	// SendMessage posts a message under the bot persona and returns the
	// new message's ID.
	SendMessage(ctx context.Context, req SendRequest) (MessageID, error)
	// DeleteMessage removes a message. Deleting an already-gone message
	// returns ErrTargetNotFound.
	DeleteMessage(ctx context.Context, channel ChannelID, id MessageID) error
	// EditMessage replaces the content of a bot-authored message.
	EditMessage(ctx context.Context, channel ChannelID, id MessageID, content string) error
	// AddReaction reacts to a message as the bot. Adding a reaction that
	// is already present is a no-op on every supported platform.
	AddReaction(ctx context.Context, channel ChannelID, id MessageID, emoji EmojiID) error
	// RemoveReaction removes user's reaction from a message.
	RemoveReaction(ctx context.Context, channel ChannelID, id MessageID, emoji EmojiID, user UserID) error
	// SetPresence updates the bot's status and activity in one call.
	SetPresence(ctx context.Context, presence Presence) error
	// SetNickname renames the bot persona everywhere it can; empty name
	// clears the nickname.
	SetNickname(ctx context.Context, name string) error
	// BotUser is the bot persona's own user ID, known once connected.
	BotUser() UserID
}

// Substituter applies a sed-style substitution expression to current and
// returns the rewritten text. Implementations distinguish a bad expression
// (ErrSubstitutionSyntax) from one that changed nothing
// (ErrSubstitutionNoMatch).
type Substituter interface {
	Substitute(current, expression string) (string, error)
}

// SendRequest describes one proxied message to post.
type SendRequest struct {
	ChannelID   ChannelID
	Content     string
	Attachments []Attachment
	// ReplyTo re-points the proxied copy's reply reference, empty for none.
	ReplyTo MessageID
	// Entities are the source message's rich-text spans; EntityShift is the
	// number of native offset units stripped from the front of the source
	// text when the tag was removed. Adapters that anchor formatting by
	// offset subtract the shift; others ignore both fields.
	Entities    []TextEntity
	EntityShift int
}
