// Package event parses kill-feed lines into structured events.
package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tuokri/tklserver/errors"
)

// Action is the derived classification of an event.
type Action string

const (
	ActionKill     Action = "kill"
	ActionTeamkill Action = "teamkill"
	ActionSuicide  Action = "suicide"
)

// Raw actions as they appear on the wire.
const (
	RawKilled     = "killed"
	RawTeamkilled = "teamkilled"
)

// BotID is the player id the game assigns to bots.
const BotID uint64 = 0

// TimestampLayout is the layout of the timestamp at the head of each line.
const TimestampLayout = "2006/01/02 - 15:04:05"

const suicidePrefix = "SUICIDE_"

var linePattern = regexp.MustCompile(
	`\((\d{4}/\d{2}/\d{2}\s-\s\d{2}:\d{2}:\d{2})\)\s'(.+)'\s\[((?:0[xX])?[0-9a-fA-F]+)\]\s(killed|teamkilled)\s'(.+)'\s\[((?:0[xX])?[0-9a-fA-F]+)\]\swith\s<(.+)>`,
)

// Event is one parsed kill-feed line.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	ActorName  string    `json:"actor_name"`
	ActorID    uint64    `json:"actor_id"`
	TargetName string    `json:"target_name"`
	TargetID   uint64    `json:"target_id"`
	RawAction  string    `json:"raw_action"`
	Action     Action    `json:"action"`
	DamageType string    `json:"damage_type"`
	BotVsBot   bool      `json:"bot_vs_bot"`
}

// Parse matches line against the kill-feed pattern. Timestamps are read in loc
// (time.Local when nil) and returned in UTC. Names are sanitized for chat markup.
//
// A line that does not match returns an error wrapping errors.ErrParsingFailed.
func Parse(line string, loc *time.Location) (*Event, error) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "event", "Parse", "pattern match")
	}
	if loc == nil {
		loc = time.Local
	}

	ts, err := time.ParseInLocation(TimestampLayout, m[1], loc)
	if err != nil {
		return nil, parseFailure("timestamp", err)
	}
	actorID, err := parseID(m[3])
	if err != nil {
		return nil, parseFailure("actor id", err)
	}
	targetID, err := parseID(m[6])
	if err != nil {
		return nil, parseFailure("target id", err)
	}

	action, err := DeriveAction(actorID, targetID, m[4])
	if err != nil {
		return nil, parseFailure("action", err)
	}

	damage := m[7]
	if action == ActionSuicide {
		damage = strings.TrimPrefix(damage, suicidePrefix)
	}

	return &Event{
		Timestamp:  ts.UTC(),
		ActorName:  Sanitize(m[2]),
		ActorID:    actorID,
		TargetName: Sanitize(m[5]),
		TargetID:   targetID,
		RawAction:  m[4],
		Action:     action,
		DamageType: damage,
		BotVsBot:   actorID == BotID && targetID == BotID,
	}, nil
}

// DeriveAction classifies an event. Same actor and target is always a suicide.
func DeriveAction(actorID, targetID uint64, rawAction string) (Action, error) {
	if actorID == targetID {
		return ActionSuicide, nil
	}
	switch rawAction {
	case RawKilled:
		return ActionKill, nil
	case RawTeamkilled:
		return ActionTeamkill, nil
	default:
		return "", fmt.Errorf("unknown action %q", rawAction)
	}
}

func parseID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

func parseFailure(field string, err error) error {
	return errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "event", "Parse", field)
}
