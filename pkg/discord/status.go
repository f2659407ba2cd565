// Copyright 2024-2026 Aiku AI

package discord

import (
	"regexp"

	"github.com/bwmarrin/discordgo"

	"github.com/aiku/seance/pkg/proxy"
)

// MessageLinkPattern matches Discord message links and captures the channel
// and message snowflakes. Wire it into proxy.RuleConfig.MessageLink so
// !edit accepts pasted links.
var MessageLinkPattern = regexp.MustCompile(`https://(?:\w+\.)?discord(?:app)?\.com/channels/\d+/(?P<channel>\d+)/(?P<message>\d+)`)

// statusToDiscord maps an engine presence status onto the wire value. A
// connected bot cannot be offline, so offline degrades to invisible.
func statusToDiscord(status proxy.PresenceStatus) string {
	switch status {
	case proxy.PresenceIdle:
		return string(discordgo.StatusIdle)
	case proxy.PresenceDND:
		return string(discordgo.StatusDoNotDisturb)
	case proxy.PresenceInvisible, proxy.PresenceOffline:
		return string(discordgo.StatusInvisible)
	}
	return string(discordgo.StatusOnline)
}

// statusFromDiscord maps an observed presence into the engine's vocabulary.
// Unknown values degrade to online.
func statusFromDiscord(status discordgo.Status) proxy.PresenceStatus {
	if parsed, ok := proxy.ParsePresenceStatus(string(status)); ok {
		return parsed
	}
	return proxy.PresenceOnline
}

// activityToDiscord converts the engine's activity to the gateway shape.
// A nil activity yields an empty slice, which clears the activity line.
func activityToDiscord(activity *proxy.Activity) []*discordgo.Activity {
	if activity == nil {
		return []*discordgo.Activity{}
	}
	return []*discordgo.Activity{{
		Name: activity.Name,
		Type: activityTypeToDiscord(activity.Type),
	}}
}

func activityTypeToDiscord(t proxy.ActivityType) discordgo.ActivityType {
	switch t {
	case proxy.ActivityStreaming:
		return discordgo.ActivityTypeStreaming
	case proxy.ActivityListening:
		return discordgo.ActivityTypeListening
	case proxy.ActivityWatching:
		return discordgo.ActivityTypeWatching
	case proxy.ActivityCompeting:
		return discordgo.ActivityTypeCompeting
	}
	return discordgo.ActivityTypeGame
}

// buildStatusUpdate assembles the UpdateStatusComplex payload.
func buildStatusUpdate(presence proxy.Presence) discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status:     statusToDiscord(presence.Status),
		Activities: activityToDiscord(presence.Activity),
		AFK:        presence.Status == proxy.PresenceIdle,
	}
}
