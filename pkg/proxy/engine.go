// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProxyOutcome classifies a TryProxy run.
type ProxyOutcome int

const (
	// OutcomeNotApplicable means the event was not ours to proxy: wrong
	// author, no tag match, or nothing to post.
	OutcomeNotApplicable ProxyOutcome = iota
	// OutcomeProxied means the proxied copy was posted and a mapping
	// recorded.
	OutcomeProxied
	// OutcomeFailed means the proxied send failed; no mapping exists and
	// the original may still be visible.
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o ProxyOutcome) String() string {
	switch o {
	case OutcomeProxied:
		return "proxied"
	case OutcomeFailed:
		return "failed"
	}
	return "not_applicable"
}

// ProxyResult is the outcome of one proxy attempt. Mapping is set only when
// Outcome is OutcomeProxied; Err only when OutcomeFailed.
type ProxyResult struct {
	Outcome ProxyOutcome
	Mapping MessageMapping
	Err     error
}

// failureSignal is the only in-channel acknowledgement of a failed command:
// a single reaction on the command message, readable by the reference user,
// meaningless to everyone else.
const failureSignal = EmojiID("❌")

// Engine runs the proxy pipeline. One Engine serves one Rule over one
// Gateway; all Handle methods are safe for concurrent use and adapters are
// expected to invoke them from per-event goroutines.
type Engine struct {
	rule    *Rule
	store   *Store
	gateway Gateway
	subst   Substituter
	log     zerolog.Logger

	presence  presenceState
	startedAt time.Time

	// lookupRetryDelay paces the single retry when a command races the
	// mapping commit of the message it targets.
	lookupRetryDelay time.Duration
	// rateLimitRetryDelay paces the single re-send after the gateway's
	// own backoff still surfaced ErrRateLimited.
	rateLimitRetryDelay time.Duration

	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool
}

// NewEngine creates an Engine with an empty mapping store.
func NewEngine(rule *Rule, gateway Gateway, subst Substituter, log zerolog.Logger) *Engine {
	return &Engine{
		rule:                rule,
		store:               NewStore(),
		gateway:             gateway,
		subst:               subst,
		log:                 log.With().Str("component", "proxy_engine").Logger(),
		startedAt:           time.Now(),
		lookupRetryDelay:    250 * time.Millisecond,
		rateLimitRetryDelay: time.Second,
	}
}

// track admits one unit of work unless the engine is closing. The caller
// must invoke the returned func when done. Admission holds stopMu so no
// event can slip past a Close that already started draining.
func (e *Engine) track() (func(), bool) {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if e.stopped {
		return nil, false
	}
	e.wg.Add(1)
	return e.wg.Done, true
}

// Close stops admitting events and waits for in-flight work, bounded by
// ctx. Work still running when ctx expires is abandoned.
func (e *Engine) Close(ctx context.Context) error {
	e.stopMu.Lock()
	e.stopped = true
	e.stopMu.Unlock()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Debug().Msg("Engine drained")
		return nil
	case <-ctx.Done():
		e.log.Warn().Msg("Shutdown drain deadline passed with work still in flight")
		return ctx.Err()
	}
}

// HandleMessage is the entry point for new messages. Dispatch order:
// commands first, then reaction shortcuts, then the tag matcher. Messages
// from anyone but the reference user are dropped silently, including
// command-shaped ones.
func (e *Engine) HandleMessage(ctx context.Context, evt MessageEvent) {
	if evt.Author != e.rule.referenceUser {
		return
	}
	done, ok := e.track()
	if !ok {
		return
	}
	defer done()

	if cmd, ok := e.rule.parseCommand(evt); ok {
		e.runCommand(ctx, evt, cmd)
		return
	}
	match, ok := e.rule.Match(evt.Content)
	if !ok {
		return
	}
	if shortcut, ok := parseReactionShortcut(match.Content); ok {
		e.runReactionShortcut(ctx, evt, shortcut)
		return
	}
	e.proxyMatched(ctx, evt, match)
}

// HandleMessageEdit re-runs the message pipeline on the edited content.
// A tagged edit proxies like a new message; an edit of an original whose
// delete previously failed updates the existing proxied copy instead.
func (e *Engine) HandleMessageEdit(ctx context.Context, evt MessageEditEvent) {
	if evt.Message.Author != e.rule.referenceUser {
		return
	}
	if evt.BeforeContent != "" && evt.BeforeContent == evt.Message.Content {
		return
	}
	e.HandleMessage(ctx, evt.Message)
}

// HandleMessageDelete retires the mapping whose proxied copy was deleted.
// Original-side deletions are routine traffic: the engine removes every
// original itself after proxying and the platform echoes that back as a
// delete event, so they leave the mapping alone and the proxied copy
// stays addressable.
func (e *Engine) HandleMessageDelete(ctx context.Context, evt MessageDeleteEvent) {
	done, ok := e.track()
	if !ok {
		return
	}
	defer done()
	if _, ok := e.store.LookupByProxied(evt.ID); !ok {
		return
	}
	e.store.Remove(evt.ID)
	e.log.Debug().
		Str("message_id", string(evt.ID)).
		Str("channel_id", string(evt.ChannelID)).
		Msg("Dropped mapping for deleted proxied message")
}

// TryProxy attempts to proxy a single message event and reports the
// outcome. Command routing and reaction shortcuts are HandleMessage
// concerns; TryProxy only applies the tag matcher and the proxy pipeline.
func (e *Engine) TryProxy(ctx context.Context, evt MessageEvent) ProxyResult {
	if evt.Author != e.rule.referenceUser {
		return ProxyResult{Outcome: OutcomeNotApplicable}
	}
	done, ok := e.track()
	if !ok {
		return ProxyResult{Outcome: OutcomeNotApplicable}
	}
	defer done()
	match, ok := e.rule.Match(evt.Content)
	if !ok {
		return ProxyResult{Outcome: OutcomeNotApplicable}
	}
	return e.proxyMatched(ctx, evt, match)
}

// proxyMatched runs the proxy pipeline for a message that already passed
// the tag matcher: serialize on the original's key, delete the original,
// send the proxied copy, then commit the mapping. The mapping is committed
// only after the send succeeded.
func (e *Engine) proxyMatched(ctx context.Context, evt MessageEvent, match Match) ProxyResult {
	if match.Content == "" && len(evt.Attachments) == 0 {
		return ProxyResult{Outcome: OutcomeNotApplicable}
	}
	unlock := e.store.LockKey(evt.ID)
	defer unlock()

	log := e.log.With().
		Str("message_id", string(evt.ID)).
		Str("channel_id", string(evt.ChannelID)).
		Logger()

	if existing, ok := e.store.LookupByOriginal(evt.ID); ok {
		return e.updateExistingProxy(ctx, log, evt, match, existing)
	}

	// Delete first so the original and the proxied copy are never both
	// visible longer than one REST round trip.
	e.deleteOriginal(ctx, log, evt)

	replyTo := evt.ReplyTo
	if replyTo != "" {
		if m, ok := e.store.Lookup(replyTo); ok {
			replyTo = m.ProxiedID
		}
	}
	proxiedID, err := e.sendProxied(ctx, SendRequest{
		ChannelID:   evt.ChannelID,
		Content:     match.Content,
		Attachments: evt.Attachments,
		ReplyTo:     replyTo,
		Entities:    evt.Entities,
		EntityShift: match.Shift,
	})
	if err != nil {
		log.Err(err).Msg("Failed to send proxied message")
		return ProxyResult{Outcome: OutcomeFailed, Err: err}
	}
	mapping := MessageMapping{
		OriginalID: evt.ID,
		ProxiedID:  proxiedID,
		ChannelID:  evt.ChannelID,
		CreatedAt:  time.Now(),
		Content:    match.Content,
	}
	e.store.Insert(mapping)
	log.Debug().Str("proxied_id", string(proxiedID)).Msg("Proxied message")
	return ProxyResult{Outcome: OutcomeProxied, Mapping: mapping}
}

// updateExistingProxy handles a tagged message that already has a live
// mapping: the earlier delete failed and the user edited the survivor. The
// proxied copy is updated in place rather than proxied a second time.
func (e *Engine) updateExistingProxy(ctx context.Context, log zerolog.Logger, evt MessageEvent, match Match, m MessageMapping) ProxyResult {
	if err := e.gateway.EditMessage(ctx, m.ChannelID, m.ProxiedID, match.Content); err != nil {
		log.Err(err).Str("proxied_id", string(m.ProxiedID)).Msg("Failed to update proxied copy after original changed")
		return ProxyResult{Outcome: OutcomeFailed, Err: err}
	}
	e.store.UpdateContent(m.ProxiedID, match.Content)
	m.LastEditedContent = match.Content
	e.deleteOriginal(ctx, log, evt)
	log.Debug().Str("proxied_id", string(m.ProxiedID)).Msg("Updated proxied copy for re-tagged original")
	return ProxyResult{Outcome: OutcomeProxied, Mapping: m}
}

// deleteOriginal removes the reference user's message, best-effort. Losing
// delete permission leaves the original visible; that is logged and the
// pipeline continues.
func (e *Engine) deleteOriginal(ctx context.Context, log zerolog.Logger, evt MessageEvent) {
	err := e.gateway.DeleteMessage(ctx, evt.ChannelID, evt.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPermissionDenied):
		log.Warn().Msg("No permission to delete original message, leaving it visible")
	case errors.Is(err, ErrTargetNotFound):
		log.Debug().Msg("Original message already gone")
	default:
		log.Err(err).Msg("Failed to delete original message")
	}
}

// sendProxied posts the proxied copy, re-attempting once if the gateway's
// own backoff still surfaced a rate limit.
func (e *Engine) sendProxied(ctx context.Context, req SendRequest) (MessageID, error) {
	id, err := e.gateway.SendMessage(ctx, req)
	if err == nil || !errors.Is(err, ErrRateLimited) {
		return id, err
	}
	e.log.Warn().Str("channel_id", string(req.ChannelID)).Msg("Proxied send rate limited, retrying once")
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(e.rateLimitRetryDelay):
	}
	return e.gateway.SendMessage(ctx, req)
}

// runCommand executes a parsed command. Success deletes the command
// message; failure leaves it in place and flags it with the failure
// reaction. Failure details never reach the channel.
func (e *Engine) runCommand(ctx context.Context, evt MessageEvent, cmd Command) {
	log := e.log.With().
		Str("command", cmd.Kind.String()).
		Str("message_id", string(evt.ID)).
		Logger()
	var err error
	switch cmd.Kind {
	case CommandEdit:
		err = e.runEditCommand(ctx, evt, cmd)
	case CommandSed:
		err = e.runSedCommand(ctx, evt, cmd)
	case CommandStatus:
		err = e.runStatusCommand(ctx, cmd)
	case CommandPresence:
		err = e.runPresenceCommand(ctx, cmd)
	case CommandNick:
		err = e.runNickCommand(ctx, cmd)
	}
	if err != nil {
		log.Err(err).Msg("Command failed")
		e.signalCommandFailure(ctx, log, evt)
		return
	}
	log.Debug().Msg("Command executed")
	e.deleteCommandMessage(ctx, log, evt)
}

// runNickCommand renames the bot persona; an empty payload clears the
// nickname.
func (e *Engine) runNickCommand(ctx context.Context, cmd Command) error {
	return e.gateway.SetNickname(ctx, cmd.Payload)
}

// signalCommandFailure adds the failure reaction to the command message.
func (e *Engine) signalCommandFailure(ctx context.Context, log zerolog.Logger, evt MessageEvent) {
	if err := e.gateway.AddReaction(ctx, evt.ChannelID, evt.ID, failureSignal); err != nil {
		log.Warn().Err(err).Msg("Failed to signal command failure")
	}
}

// deleteCommandMessage removes an executed command message, best-effort.
func (e *Engine) deleteCommandMessage(ctx context.Context, log zerolog.Logger, evt MessageEvent) {
	err := e.gateway.DeleteMessage(ctx, evt.ChannelID, evt.ID)
	if err != nil && !errors.Is(err, ErrTargetNotFound) {
		log.Warn().Err(err).Msg("Failed to delete command message")
	}
}
