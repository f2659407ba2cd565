// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// resolveTarget finds the mapping a command addresses. Reply and link
// selectors accept either side of a mapping; the latest selector picks the
// newest mapping in the command's channel. A miss is retried once after a
// short delay, covering a command that raced ahead of its target's mapping
// commit.
func (e *Engine) resolveTarget(ctx context.Context, target Target, channel ChannelID) (MessageMapping, error) {
	lookup := func() (MessageMapping, bool) {
		switch target.Kind {
		case TargetReply, TargetLink:
			return e.store.Lookup(target.MessageID)
		case TargetLatest:
			return e.store.LatestInChannel(channel)
		}
		return MessageMapping{}, false
	}
	if m, ok := lookup(); ok {
		return m, nil
	}
	select {
	case <-ctx.Done():
		return MessageMapping{}, ctx.Err()
	case <-time.After(e.lookupRetryDelay):
	}
	if m, ok := lookup(); ok {
		return m, nil
	}
	if target.Kind == TargetLatest {
		return MessageMapping{}, fmt.Errorf("%w: no proxied messages in channel %s", ErrTargetNotFound, channel)
	}
	return MessageMapping{}, fmt.Errorf("%w: %s", ErrTargetNotFound, target.MessageID)
}

// runEditCommand replaces a proxied message's content literally.
func (e *Engine) runEditCommand(ctx context.Context, evt MessageEvent, cmd Command) error {
	content := strings.TrimSpace(cmd.Payload)
	if content == "" {
		return fmt.Errorf("edit needs replacement content")
	}
	m, err := e.resolveTarget(ctx, cmd.Target, evt.ChannelID)
	if err != nil {
		return err
	}
	if err := e.gateway.EditMessage(ctx, m.ChannelID, m.ProxiedID, content); err != nil {
		return err
	}
	e.store.UpdateContent(m.ProxiedID, content)
	return nil
}

// runSedCommand rewrites a proxied message by running the expression over
// its current content. A rewrite that changes nothing is a failure, not a
// silent success.
func (e *Engine) runSedCommand(ctx context.Context, evt MessageEvent, cmd Command) error {
	m, err := e.resolveTarget(ctx, cmd.Target, evt.ChannelID)
	if err != nil {
		return err
	}
	rewritten, err := e.subst.Substitute(m.CurrentContent(), cmd.Payload)
	if err != nil {
		return err
	}
	if err := e.gateway.EditMessage(ctx, m.ChannelID, m.ProxiedID, rewritten); err != nil {
		return err
	}
	e.store.UpdateContent(m.ProxiedID, rewritten)
	return nil
}

