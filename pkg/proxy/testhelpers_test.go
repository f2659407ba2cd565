// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// gatewayOp is one recorded gateway call.
type gatewayOp struct {
	Op       string
	Channel  ChannelID
	Message  MessageID
	Content  string
	Emoji    EmojiID
	User     UserID
	Req      SendRequest
	Presence Presence
	Name     string
}

// fakeGateway records operations in order and lets tests inject failures
// per operation. All methods are safe for concurrent use.
type fakeGateway struct {
	mu      sync.Mutex
	ops     []gatewayOp
	nextID  int
	botUser UserID

	// sendErrs is consumed one error per SendMessage call; nil entries
	// mean success. Once drained, sends succeed.
	sendErrs           []error
	failDelete         error
	failEdit           error
	failAddReaction    error
	failRemoveReaction error
	failPresence       error
	failNick           error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{botUser: "bot-1"}
}

var _ Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) SendMessage(ctx context.Context, req SendRequest) (MessageID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "send", Channel: req.ChannelID, Content: req.Content, Req: req})
	if len(g.sendErrs) > 0 {
		err := g.sendErrs[0]
		g.sendErrs = g.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	g.nextID++
	return MessageID(fmt.Sprintf("proxied-%d", g.nextID)), nil
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, channel ChannelID, id MessageID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "delete", Channel: channel, Message: id})
	return g.failDelete
}

func (g *fakeGateway) EditMessage(ctx context.Context, channel ChannelID, id MessageID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "edit", Channel: channel, Message: id, Content: content})
	return g.failEdit
}

func (g *fakeGateway) AddReaction(ctx context.Context, channel ChannelID, id MessageID, emoji EmojiID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "react_add", Channel: channel, Message: id, Emoji: emoji})
	return g.failAddReaction
}

func (g *fakeGateway) RemoveReaction(ctx context.Context, channel ChannelID, id MessageID, emoji EmojiID, user UserID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "react_remove", Channel: channel, Message: id, Emoji: emoji, User: user})
	return g.failRemoveReaction
}

func (g *fakeGateway) SetPresence(ctx context.Context, presence Presence) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "presence", Presence: presence})
	return g.failPresence
}

func (g *fakeGateway) SetNickname(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, gatewayOp{Op: "nick", Name: name})
	return g.failNick
}

func (g *fakeGateway) BotUser() UserID {
	return g.botUser
}

// Ops returns a copy of the recorded operations.
func (g *fakeGateway) Ops() []gatewayOp {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gatewayOp, len(g.ops))
	copy(out, g.ops)
	return out
}

// OpNames returns just the operation names, in call order.
func (g *fakeGateway) OpNames() []string {
	ops := g.Ops()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Op
	}
	return names
}

// Reset clears the recorded operations.
func (g *fakeGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = nil
}

// fakeSubstituter returns scripted results per expression and a no-match
// error for anything unscripted.
type fakeSubstituter struct {
	results map[string]string
	err     error
}

func (f *fakeSubstituter) Substitute(current, expression string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.results[expression]; ok {
		return out, nil
	}
	return "", ErrSubstitutionNoMatch
}

const (
	testRefUser = UserID("user-1")
	testChannel = ChannelID("chan-1")
)

func newTestRule(t *testing.T) *Rule {
	t.Helper()
	rule, err := NewRule(RuleConfig{
		ReferenceUser:     string(testRefUser),
		Pattern:           `b:(?P<content>.*)`,
		Prefix:            "q",
		ForceReproxyEmoji: []string{"\U0001f514", "bell:12345"},
		MessageLink:       regexp.MustCompile(`https://chat\.example/channels/\d+/(?P<channel>\d+)/(?P<message>\d+)`),
	})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return rule
}

func newTestEngine(t *testing.T) (*Engine, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	engine := NewEngine(newTestRule(t), gw, &fakeSubstituter{}, zerolog.Nop())
	engine.lookupRetryDelay = time.Millisecond
	engine.rateLimitRetryDelay = time.Millisecond
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Close(ctx)
	})
	return engine, gw
}

// refMessage builds a reference-user message event in the test channel.
func refMessage(id, content string) MessageEvent {
	return MessageEvent{
		ID:        MessageID(id),
		ChannelID: testChannel,
		Author:    testRefUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}
