// Copyright 2024-2026 Aiku AI

package proxy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// RuleConfig is the raw configuration for a Rule.
type RuleConfig struct {
	// ReferenceUser is the only user whose messages are proxied and whose
	// commands are honored. Required.
	ReferenceUser string
	// Pattern is the tag pattern. It must contain a named capture group
	// "content" holding the text to proxy. Required.
	Pattern string
	// Prefix is an optional extra command prefix: commands are recognized
	// as "!cmd" and, when Prefix is set, "<Prefix>!cmd" as well.
	Prefix string
	// ForceReproxyEmoji lists reactions that are re-issued under the bot
	// persona when the reference user adds them. Unicode emoji or
	// "name:id" custom forms.
	ForceReproxyEmoji []string
	// MessageLink optionally recognizes platform message links as !edit
	// targets. When set it must contain a named capture group "message".
	MessageLink *regexp.Regexp
}

// Rule is the immutable per-instance proxying configuration. Construct with
// NewRule; a Rule needs no locking.
type Rule struct {
	referenceUser UserID
	pattern       *regexp.Regexp
	contentIdx    int
	prefix        string
	forceReproxy  map[EmojiID]struct{}
	messageLink   *regexp.Regexp
	messageIdx    int
}

// Match is a successful tag match.
type Match struct {
	// Content is the "content" capture with surrounding whitespace removed.
	Content string
	// Shift is the UTF-16 code unit offset of Content inside the matched
	// text, for adapters that re-anchor offset-based formatting entities.
	Shift int
}

// NewRule compiles and validates a RuleConfig.
//
// The pattern is compiled in DOTALL mode and anchored at the start of the
// message, so "b:(?P<content>.*)" tags messages beginning with "b:" and the
// tag may span newlines.
func NewRule(cfg RuleConfig) (*Rule, error) {
	if cfg.ReferenceUser == "" {
		return nil, fmt.Errorf("reference user is required")
	}
	if cfg.Pattern == "" {
		return nil, fmt.Errorf("tag pattern is required")
	}
	pattern, err := regexp.Compile(`(?s)\A(?:` + cfg.Pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("tag pattern does not compile: %w", err)
	}
	contentIdx := pattern.SubexpIndex("content")
	if contentIdx < 0 {
		return nil, fmt.Errorf("tag pattern must contain a named capture group `content`")
	}
	rule := &Rule{
		referenceUser: UserID(cfg.ReferenceUser),
		pattern:       pattern,
		contentIdx:    contentIdx,
		prefix:        cfg.Prefix,
		forceReproxy:  make(map[EmojiID]struct{}, len(cfg.ForceReproxyEmoji)),
	}
	for _, emoji := range cfg.ForceReproxyEmoji {
		emoji = strings.TrimSpace(emoji)
		if emoji == "" {
			continue
		}
		rule.forceReproxy[EmojiID(emoji)] = struct{}{}
	}
	if cfg.MessageLink != nil {
		rule.messageIdx = cfg.MessageLink.SubexpIndex("message")
		if rule.messageIdx < 0 {
			return nil, fmt.Errorf("message link pattern must contain a named capture group `message`")
		}
		rule.messageLink = cfg.MessageLink
	}
	return rule, nil
}

// ReferenceUser returns the configured reference user ID.
func (r *Rule) ReferenceUser() UserID {
	return r.referenceUser
}

// Match runs the tag pattern against text. The boolean is false when the
// pattern does not match; an empty Content with a successful match is
// possible and left to the caller's policy.
func (r *Rule) Match(text string) (Match, bool) {
	loc := r.pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Match{}, false
	}
	start, end := loc[2*r.contentIdx], loc[2*r.contentIdx+1]
	if start < 0 {
		return Match{}, true
	}
	raw := text[start:end]
	trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
	contentStart := start + len(raw) - len(trimmed)
	return Match{
		Content: strings.TrimRightFunc(trimmed, unicode.IsSpace),
		Shift:   utf16Length(text[:contentStart]),
	}, true
}

// IsForceReproxy reports whether emoji is in the force-reproxy set.
func (r *Rule) IsForceReproxy(emoji EmojiID) bool {
	_, ok := r.forceReproxy[emoji]
	return ok
}

// matchMessageLink extracts a message ID from a platform message link.
func (r *Rule) matchMessageLink(token string) (MessageID, bool) {
	if r.messageLink == nil {
		return "", false
	}
	groups := r.messageLink.FindStringSubmatch(token)
	if groups == nil {
		return "", false
	}
	return MessageID(groups[r.messageIdx]), true
}

// utf16Length counts UTF-16 code units, the offset unit used by platforms
// with offset-based formatting entities.
func utf16Length(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}
