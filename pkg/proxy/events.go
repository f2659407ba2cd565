// Copyright 2024-2026 Aiku AI

package proxy

import "time"

// MessageEvent is a new message observed on the platform. Adapters drop the
// bot's own echoes before dispatching; everything else arrives here and the
// engine filters by author.
type MessageEvent struct {
	ID          MessageID
	ChannelID   ChannelID
	Author      UserID
	Content     string
	Attachments []Attachment
	// ReplyTo is the ID of the message this one replies to, or empty.
	ReplyTo MessageID
	// Entities are platform rich-text spans over Content, carried opaquely
	// so adapters that use offset-based formatting can re-anchor them on
	// the proxied copy. Offsets are in the platform's native units.
	Entities  []TextEntity
	Timestamp time.Time
}

// MessageEditEvent is an edit of an existing message.
type MessageEditEvent struct {
	Message MessageEvent
	// BeforeContent is the content prior to the edit, empty when the
	// platform did not supply it.
	BeforeContent string
}

// MessageDeleteEvent is a message deletion. Only the IDs are reliable; the
// platform usually omits the rest.
type MessageDeleteEvent struct {
	ID        MessageID
	ChannelID ChannelID
}

// ReactionEvent is a reaction added to a message.
type ReactionEvent struct {
	MessageID MessageID
	ChannelID ChannelID
	User      UserID
	Emoji     EmojiID
}

// PresenceEvent is a presence change for some user.
type PresenceEvent struct {
	User   UserID
	Status PresenceStatus
}

// Attachment describes a file attached to a message. The engine passes
// attachments through to the proxied copy; the gateway re-uploads them.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ProxyURL    string
	ContentType string
	Size        int
}

// TextEntity is an opaque rich-text span (mention, link, bold) with
// offsets in the source platform's native units.
type TextEntity struct {
	Type   string
	Offset int
	Length int
	URL    string
	UserID int64
}
