// Copyright 2024-2026 Aiku AI

package proxy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandKind is a recognized command keyword.
type CommandKind int

const (
	// CommandEdit replaces a proxied message's content literally.
	CommandEdit CommandKind = iota + 1
	// CommandSed rewrites a proxied message with a sed expression.
	CommandSed
	// CommandStatus sets or clears the bot's activity line.
	CommandStatus
	// CommandPresence sets the bot's presence or enables presence sync.
	CommandPresence
	// CommandNick sets or clears the bot's nickname.
	CommandNick
)

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	switch k {
	case CommandEdit:
		return "edit"
	case CommandSed:
		return "sed"
	case CommandStatus:
		return "status"
	case CommandPresence:
		return "presence"
	case CommandNick:
		return "nick"
	}
	return "unknown"
}

// TargetKind says how a command selects its target mapping.
type TargetKind int

const (
	// TargetNone is for commands without a message target.
	TargetNone TargetKind = iota
	// TargetReply selects via the command message's reply reference.
	TargetReply
	// TargetLink selects via an explicit message ID or message link.
	TargetLink
	// TargetLatest selects the newest mapping in the command's channel.
	TargetLatest
)

// Target is a command's resolved target selector. MessageID may be either
// side of a mapping; resolution accepts both.
type Target struct {
	Kind      TargetKind
	MessageID MessageID
}

// Command is one parsed command, ready to execute.
type Command struct {
	Kind    CommandKind
	Target  Target
	Payload string
}

// parseCommand recognizes a command in a reference-user message. The bare
// "!" marker always works; when a prefix is configured, "<prefix>!" works
// too. Unrecognized keywords return false so the message falls through to
// tag matching.
func (r *Rule) parseCommand(evt MessageEvent) (Command, bool) {
	body, ok := r.stripCommandMarker(evt.Content)
	if !ok {
		return Command{}, false
	}
	if isSedExpression(body) {
		cmd := Command{Kind: CommandSed, Payload: body, Target: Target{Kind: TargetLatest}}
		if evt.ReplyTo != "" {
			cmd.Target = Target{Kind: TargetReply, MessageID: evt.ReplyTo}
		}
		return cmd, true
	}
	keyword, args, _ := strings.Cut(body, " ")
	switch keyword {
	case "edit":
		return r.parseEditCommand(evt, args), true
	case "status":
		return Command{Kind: CommandStatus, Payload: strings.TrimSpace(args)}, true
	case "presence":
		return Command{Kind: CommandPresence, Payload: strings.TrimSpace(args)}, true
	case "nick":
		return Command{Kind: CommandNick, Payload: strings.TrimSpace(args)}, true
	}
	return Command{}, false
}

// stripCommandMarker removes the leading "!" or "<prefix>!". The prefixed
// form is checked first so a prefix that itself contains "!" still parses.
func (r *Rule) stripCommandMarker(content string) (string, bool) {
	if r.prefix != "" {
		if body, ok := strings.CutPrefix(content, r.prefix+"!"); ok {
			return body, true
		}
	}
	return strings.CutPrefix(content, "!")
}

// isSedExpression reports the "s<delim>" shape: the keyword s followed
// immediately by any non-alphanumeric delimiter rune.
func isSedExpression(body string) bool {
	if len(body) < 2 || body[0] != 's' {
		return false
	}
	delim, _ := utf8.DecodeRuneInString(body[1:])
	return !unicode.IsLetter(delim) && !unicode.IsDigit(delim)
}

// parseEditCommand resolves the edit target: reply first, then an explicit
// message ID or link as the first argument token, then the channel's
// newest mapping. Payload spacing after the keyword split is preserved for
// the reply and latest forms so edited content keeps its internal layout.
func (r *Rule) parseEditCommand(evt MessageEvent, args string) Command {
	cmd := Command{Kind: CommandEdit}
	if evt.ReplyTo != "" {
		cmd.Target = Target{Kind: TargetReply, MessageID: evt.ReplyTo}
		cmd.Payload = args
		return cmd
	}
	token, rest, _ := strings.Cut(strings.TrimLeft(args, " "), " ")
	if isDigits(token) {
		cmd.Target = Target{Kind: TargetLink, MessageID: MessageID(token)}
		cmd.Payload = rest
		return cmd
	}
	if id, ok := r.matchMessageLink(token); ok {
		cmd.Target = Target{Kind: TargetLink, MessageID: id}
		cmd.Payload = rest
		return cmd
	}
	cmd.Target = Target{Kind: TargetLatest}
	cmd.Payload = args
	return cmd
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
