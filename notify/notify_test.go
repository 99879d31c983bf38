package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuokri/tklserver/event"
)

type mapIcons map[string][]byte

func (m mapIcons) Get(key string) ([]byte, bool) {
	v, ok := m[key]
	return v, ok
}

type panicIcons struct{}

func (panicIcons) Get(string) ([]byte, bool) { panic("icon store exploded") }

func testEvent(action event.Action, actorID, targetID uint64) *event.Event {
	return &event.Event{
		Timestamp:  time.Date(2021, 3, 14, 12, 34, 56, 0, time.UTC),
		ActorName:  "Alice",
		ActorID:    actorID,
		TargetName: "Bob",
		TargetID:   targetID,
		RawAction:  event.RawKilled,
		Action:     action,
		DamageType: "Rifle",
		BotVsBot:   actorID == event.BotID && targetID == event.BotID,
	}
}

func TestBuild_StyleTable(t *testing.T) {
	tests := []struct {
		name  string
		ev    *event.Event
		title string
		color int
	}{
		{"kill", testEvent(event.ActionKill, 1, 2), "Kill", ColorKill},
		{"teamkill", testEvent(event.ActionTeamkill, 1, 2), "Team Kill", ColorTeamkill},
		{"suicide", testEvent(event.ActionSuicide, 3, 3), "Suicide", ColorSuicide},
		{"bot vs bot keeps action color", testEvent(event.ActionSuicide, 0, 0), BotVsBotTitle, ColorSuicide},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Build(tt.ev, "raw", nil)
			require.False(t, n.IsFallback())
			assert.Equal(t, tt.title, n.Embed.Title)
			assert.Equal(t, tt.color, n.Embed.Color)
			assert.Equal(t, "2021-03-14T12:34:56Z", n.Embed.Timestamp)
		})
	}
}

func TestBuild_Fields(t *testing.T) {
	n := Build(testEvent(event.ActionKill, 76561198000000001, 0), "raw", nil)
	require.NotNil(t, n.Embed)

	fields := n.Embed.Fields
	require.Len(t, fields, 7)

	assert.Equal(t, "Killer", fields[0].Name)
	assert.Equal(t, "Alice", fields[0].Value)
	assert.True(t, fields[0].Inline)
	assert.Equal(t, "Victim", fields[1].Name)
	assert.Equal(t, "Bob", fields[1].Value)
	assert.Equal(t, "\u200b", fields[2].Name)
	assert.Equal(t, "\u200b", fields[2].Value)
	assert.Equal(t, "Killer ID", fields[3].Name)
	assert.Equal(t, "[76561198000000001](https://www.steamcommunity.com/profiles/76561198000000001)", fields[3].Value)
	assert.Equal(t, "Victim ID", fields[4].Name)
	assert.Equal(t, BotLabel, fields[4].Value, "one-sided bot renders as BOT")
	assert.Equal(t, "Damage Type", fields[6].Name)
	assert.Equal(t, "Rifle", fields[6].Value)
	assert.False(t, fields[6].Inline)
}

func TestBuild_Icon(t *testing.T) {
	icons := mapIcons{"Rifle": []byte("png")}

	n := Build(testEvent(event.ActionKill, 1, 2), "raw", icons)
	assert.Equal(t, []byte("png"), n.Image)

	msg := n.Message()
	require.Len(t, msg.Embeds, 1)
	require.NotNil(t, msg.Embeds[0].Image)
	assert.Equal(t, "attachment://image.png", msg.Embeds[0].Image.URL)
	require.Len(t, msg.Files, 1)
	assert.Equal(t, ImageName, msg.Files[0].Name)
	assert.Nil(t, n.Embed.Image, "Message does not mutate the notification")

	ev := testEvent(event.ActionKill, 1, 2)
	ev.DamageType = "Shovel"
	n = Build(ev, "raw", icons)
	assert.Nil(t, n.Image)
	msg = n.Message()
	assert.Nil(t, msg.Embeds[0].Image)
	assert.Empty(t, msg.Files)
}

func TestBuild_Fallback(t *testing.T) {
	n := Build(nil, "something unparseable", nil)
	assert.True(t, n.IsFallback())
	assert.Equal(t, "something unparseable", n.Content)

	msg := n.Message()
	assert.Equal(t, "something unparseable", msg.Content)
	assert.Empty(t, msg.Embeds)
	assert.Empty(t, msg.Files)

	ev := testEvent("revive", 1, 2)
	assert.True(t, Build(ev, "raw", nil).IsFallback())
}

func TestBuild_RecoversPanics(t *testing.T) {
	var n *Notification
	assert.NotPanics(t, func() {
		n = Build(testEvent(event.ActionKill, 1, 2), "the raw line", panicIcons{})
	})
	require.NotNil(t, n)
	assert.True(t, n.IsFallback())
	assert.Equal(t, "the raw line", n.Content)
}

func TestProfileLink(t *testing.T) {
	assert.Equal(t, "BOT", ProfileLink(0))
	assert.Equal(t, "[17](https://www.steamcommunity.com/profiles/17)", ProfileLink(17))
}
