// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"testing"
)

// TestForceReproxyReaction verifies the monitor strips the user's reaction
// first and re-adds it under the bot.
func TestForceReproxyReaction(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleReactionAdd(context.Background(), ReactionEvent{
		MessageID: "m1", ChannelID: testChannel, User: testRefUser, Emoji: "\U0001f514",
	})

	names := gw.OpNames()
	if len(names) != 2 || names[0] != "react_remove" || names[1] != "react_add" {
		t.Fatalf("ops = %v, want [react_remove react_add]", names)
	}
	ops := gw.Ops()
	if ops[0].User != testRefUser || ops[0].Emoji != "\U0001f514" {
		t.Errorf("strip = %+v, want reference user's bell", ops[0])
	}
	if ops[1].Message != "m1" || ops[1].Emoji != "\U0001f514" {
		t.Errorf("re-add = %+v", ops[1])
	}
}

// TestForceReproxyIgnores verifies other users and unlisted emoji pass
// through untouched.
func TestForceReproxyIgnores(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleReactionAdd(context.Background(), ReactionEvent{
		MessageID: "m1", ChannelID: testChannel, User: "someone-else", Emoji: "\U0001f514",
	})
	engine.HandleReactionAdd(context.Background(), ReactionEvent{
		MessageID: "m1", ChannelID: testChannel, User: testRefUser, Emoji: "\U0001f525",
	})
	if len(gw.Ops()) != 0 {
		t.Errorf("ops = %v, want none", gw.OpNames())
	}
}

// TestForceReproxyStripFailureStillAdds verifies the bot reaction is added
// even when the strip fails.
func TestForceReproxyStripFailureStillAdds(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	gw.failRemoveReaction = ErrPermissionDenied

	engine.HandleReactionAdd(context.Background(), ReactionEvent{
		MessageID: "m1", ChannelID: testChannel, User: testRefUser, Emoji: "bell:12345",
	})
	names := gw.OpNames()
	if len(names) != 2 || names[1] != "react_add" {
		t.Fatalf("ops = %v, want the add to still happen", names)
	}
}

// TestParseReactionShortcut pins the shortcut grammar.
func TestParseReactionShortcut(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content string
		add     bool
		emoji   EmojiID
		ok      bool
	}{
		{"add unicode", "+\U0001f525", true, "\U0001f525", true},
		{"remove unicode", "-\U0001f525", false, "\U0001f525", true},
		{"add variation sequence", "+❤️", true, "❤️", true},
		{"add custom", "+<:blob:12345>", true, "blob:12345", true},
		{"add animated custom", "+<a:party:999>", true, "party:999", true},
		{"remove custom", "-<:blob:12345>", false, "blob:12345", true},
		{"two emoji rejected", "+\U0001f525\U0001f525", false, "", false},
		{"text rejected", "+fire", false, "", false},
		{"emoji with text rejected", "+\U0001f525 fire", false, "", false},
		{"bare sign", "+", false, "", false},
		{"no sign", "\U0001f525", false, "", false},
		{"short custom name", "+<:b:1>", false, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			shortcut, ok := parseReactionShortcut(tc.content)
			if ok != tc.ok {
				t.Fatalf("parseReactionShortcut(%q) ok = %v, want %v", tc.content, ok, tc.ok)
			}
			if !ok {
				return
			}
			if shortcut.add != tc.add || shortcut.emoji != tc.emoji {
				t.Errorf("shortcut = %+v, want add=%v emoji=%s", shortcut, tc.add, tc.emoji)
			}
		})
	}
}

// TestReactionShortcutOnReply verifies the shortcut lands on the replied-to
// message, re-pointed to the proxied side, and the tagged original is
// deleted.
func TestReactionShortcutOnReply(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	insertMapping(engine, "o1", "p1", "hello")

	evt := refMessage("m1", "b:+\U0001f525")
	evt.ReplyTo = "o1"
	engine.HandleMessage(context.Background(), evt)

	names := gw.OpNames()
	if len(names) != 2 || names[0] != "react_add" || names[1] != "delete" {
		t.Fatalf("ops = %v, want [react_add delete]", names)
	}
	ops := gw.Ops()
	if ops[0].Message != "p1" || ops[0].Emoji != "\U0001f525" {
		t.Errorf("reaction = %+v, want fire on p1", ops[0])
	}
	if ops[1].Message != "m1" {
		t.Errorf("deleted %s, want the tagged original", ops[1].Message)
	}
	if engine.store.Len() != 1 {
		t.Error("shortcut must not record a mapping")
	}
}

// TestReactionShortcutLatestFallback verifies a shortcut without a reply
// targets the newest proxied message.
func TestReactionShortcutLatestFallback(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	insertMapping(engine, "o1", "p1", "hello")

	engine.HandleMessage(context.Background(), refMessage("m1", "b:-\U0001f525"))

	ops := gw.Ops()
	if len(ops) != 2 || ops[0].Op != "react_remove" {
		t.Fatalf("ops = %v, want [react_remove delete]", gw.OpNames())
	}
	if ops[0].Message != "p1" || ops[0].User != gw.BotUser() {
		t.Errorf("removal = %+v, want bot's own fire off p1", ops[0])
	}
}

// TestReactionShortcutNoTarget verifies a shortcut with nothing to land on
// still deletes the tagged original.
func TestReactionShortcutNoTarget(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleMessage(context.Background(), refMessage("m1", "b:+\U0001f525"))

	names := gw.OpNames()
	if len(names) != 1 || names[0] != "delete" {
		t.Fatalf("ops = %v, want only the delete", names)
	}
}

// TestReactionShortcutMultiEmojiProxies verifies multi-emoji content falls
// through to normal proxying instead of reacting.
func TestReactionShortcutMultiEmojiProxies(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleMessage(context.Background(), refMessage("m1", "b:+\U0001f525\U0001f525"))

	names := gw.OpNames()
	if len(names) != 2 || names[1] != "send" {
		t.Fatalf("ops = %v, want [delete send]", names)
	}
	if _, ok := engine.store.LookupByOriginal("m1"); !ok {
		t.Error("multi-emoji content must proxy with a mapping")
	}
}
