// Copyright 2024-2026 Aiku AI

package proxy

// UserID identifies a platform account.
type UserID string

// ChannelID identifies a channel or chat.
type ChannelID string

// MessageID identifies a single message. Original and proxied messages share
// one ID space; the platform guarantees IDs never collide.
type MessageID string

// EmojiID identifies a reaction emoji: either the emoji itself for plain
// unicode, or "name:id" for platform custom emoji.
type EmojiID string

// MakeMessageID creates a MessageID from a raw platform message ID.
func MakeMessageID(raw string) MessageID {
	return MessageID(raw)
}

// ParseMessageID extracts the raw platform message ID.
func ParseMessageID(id MessageID) string {
	return string(id)
}

// MakeChannelID creates a ChannelID from a raw platform channel ID.
func MakeChannelID(raw string) ChannelID {
	return ChannelID(raw)
}

// ParseChannelID extracts the raw platform channel ID.
func ParseChannelID(id ChannelID) string {
	return string(id)
}

// MakeUserID creates a UserID from a raw platform user ID.
func MakeUserID(raw string) UserID {
	return UserID(raw)
}

// ParseUserID extracts the raw platform user ID.
func ParseUserID(id UserID) string {
	return string(id)
}

// MakeEmojiID creates an EmojiID from a raw emoji name or unicode sequence.
func MakeEmojiID(raw string) EmojiID {
	return EmojiID(raw)
}

// ParseEmojiID extracts the raw emoji name or unicode sequence.
func ParseEmojiID(id EmojiID) string {
	return string(id)
}
