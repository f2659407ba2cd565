// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// PresenceStatus is a bot or user presence value.
type PresenceStatus string

// Presence status values. Offline is accepted as input; adapters decide how
// a connected bot expresses it (Discord shows invisible).
const (
	PresenceOnline    PresenceStatus = "online"
	PresenceIdle      PresenceStatus = "idle"
	PresenceDND       PresenceStatus = "dnd"
	PresenceInvisible PresenceStatus = "invisible"
	PresenceOffline   PresenceStatus = "offline"
)

// ParsePresenceStatus parses a user-supplied presence value.
func ParsePresenceStatus(s string) (PresenceStatus, bool) {
	switch PresenceStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PresenceOnline:
		return PresenceOnline, true
	case PresenceIdle:
		return PresenceIdle, true
	case PresenceDND:
		return PresenceDND, true
	case PresenceInvisible:
		return PresenceInvisible, true
	case PresenceOffline:
		return PresenceOffline, true
	}
	return "", false
}

// ActivityType is the verb shown before an activity name.
type ActivityType string

// Activity types, matching the platform activity verbs.
const (
	ActivityPlaying   ActivityType = "playing"
	ActivityStreaming ActivityType = "streaming"
	ActivityListening ActivityType = "listening"
	ActivityWatching  ActivityType = "watching"
	ActivityCompeting ActivityType = "competing"
)

// Activity is a bot activity line ("playing chess").
type Activity struct {
	Type ActivityType
	Name string
}

// Presence is the full presence pushed to the platform in one call.
type Presence struct {
	Status PresenceStatus
	// Activity is nil when the bot has no activity line.
	Activity *Activity
}

var activityPattern = regexp.MustCompile(`(?is)\A(?:(?P<type>playing|streaming|listening\s+to|watching|competing\s+in)\s+)?(?P<name>.+)\z`)

// ParseActivity parses a !status argument: an optional activity verb
// followed by the activity name. The verb defaults to playing; an empty
// argument parses to nothing (the caller clears the activity).
func ParseActivity(text string) (Activity, bool) {
	groups := activityPattern.FindStringSubmatch(strings.TrimSpace(text))
	if groups == nil {
		return Activity{}, false
	}
	verb := ""
	if fields := strings.Fields(strings.ToLower(groups[1])); len(fields) > 0 {
		verb = fields[0]
	}
	var typ ActivityType
	switch verb {
	case "streaming":
		typ = ActivityStreaming
	case "listening":
		typ = ActivityListening
	case "watching":
		typ = ActivityWatching
	case "competing":
		typ = ActivityCompeting
	default:
		typ = ActivityPlaying
	}
	return Activity{Type: typ, Name: strings.TrimSpace(groups[2])}, true
}

// SyncMode says whether the bot mirrors the reference user's presence.
type SyncMode int

const (
	// SyncModeIdle leaves the bot presence alone until explicitly set.
	SyncModeIdle SyncMode = iota
	// SyncModeSyncing mirrors each observed reference presence change.
	SyncModeSyncing
)

// String implements fmt.Stringer.
func (m SyncMode) String() string {
	if m == SyncModeSyncing {
		return "syncing"
	}
	return "idle"
}

// presenceState holds the bot's presence intent. Status and activity are
// pushed together, so setting one keeps the other.
type presenceState struct {
	mu       sync.Mutex
	mode     SyncMode
	status   PresenceStatus
	activity *Activity
	// refStatus caches the reference user's last observed presence so a
	// later !presence sync can apply it immediately.
	refStatus PresenceStatus
}

// HandlePresence feeds a reference presence change into the synchronizer.
// Changes are cached in any mode and mirrored onto the bot while syncing.
func (e *Engine) HandlePresence(ctx context.Context, evt PresenceEvent) {
	if evt.User != e.rule.referenceUser {
		return
	}
	done, ok := e.track()
	if !ok {
		return
	}
	defer done()

	e.presence.mu.Lock()
	e.presence.refStatus = evt.Status
	mirror := e.presence.mode == SyncModeSyncing
	e.presence.mu.Unlock()
	if !mirror {
		return
	}
	e.log.Debug().Str("status", string(evt.Status)).Msg("Mirroring reference presence")
	if err := e.applyStatus(ctx, mirrorableStatus(evt.Status)); err != nil {
		e.log.Err(err).Msg("Failed to mirror reference presence")
	}
}

// mirrorableStatus converts a status observed on the reference user into
// one the connected bot can wear. A bot cannot be offline while connected,
// so offline mirrors as invisible.
func mirrorableStatus(status PresenceStatus) PresenceStatus {
	if status == PresenceOffline {
		return PresenceInvisible
	}
	return status
}

// applyStatus pushes a new status, keeping the current activity.
func (e *Engine) applyStatus(ctx context.Context, status PresenceStatus) error {
	e.presence.mu.Lock()
	e.presence.status = status
	presence := Presence{Status: status, Activity: e.presence.activity}
	e.presence.mu.Unlock()
	return e.gateway.SetPresence(ctx, presence)
}

// applyActivity pushes a new activity (nil clears), keeping the current
// status.
func (e *Engine) applyActivity(ctx context.Context, activity *Activity) error {
	e.presence.mu.Lock()
	e.presence.activity = activity
	status := e.presence.status
	if status == "" {
		status = PresenceOnline
	}
	e.presence.status = status
	presence := Presence{Status: status, Activity: activity}
	e.presence.mu.Unlock()
	return e.gateway.SetPresence(ctx, presence)
}

// runStatusCommand sets the bot's activity line; an empty payload clears
// it.
func (e *Engine) runStatusCommand(ctx context.Context, cmd Command) error {
	activity, ok := ParseActivity(cmd.Payload)
	if !ok {
		return e.applyActivity(ctx, nil)
	}
	return e.applyActivity(ctx, &activity)
}

// runPresenceCommand switches the synchronizer mode. "sync" mirrors the
// reference user from now on, starting with the cached presence if one was
// observed; an explicit value drops back to idle mode and applies it.
func (e *Engine) runPresenceCommand(ctx context.Context, cmd Command) error {
	arg := strings.ToLower(strings.TrimSpace(cmd.Payload))
	if arg == "sync" {
		e.presence.mu.Lock()
		e.presence.mode = SyncModeSyncing
		cached := e.presence.refStatus
		e.presence.mu.Unlock()
		if cached == "" {
			e.log.Debug().Msg("Presence sync enabled before any reference presence was observed")
			return nil
		}
		return e.applyStatus(ctx, mirrorableStatus(cached))
	}
	status, ok := ParsePresenceStatus(arg)
	if !ok {
		return fmt.Errorf("unknown presence value %q", cmd.Payload)
	}
	e.presence.mu.Lock()
	e.presence.mode = SyncModeIdle
	e.presence.mu.Unlock()
	return e.applyStatus(ctx, status)
}

// PresenceSnapshot reports the current presence intent for introspection.
func (e *Engine) PresenceSnapshot() (mode SyncMode, status PresenceStatus, activity *Activity) {
	e.presence.mu.Lock()
	defer e.presence.mu.Unlock()
	if e.presence.activity != nil {
		act := *e.presence.activity
		activity = &act
	}
	return e.presence.mode, e.presence.status, activity
}
