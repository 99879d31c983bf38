// Package notify turns kill-feed events into webhook messages.
package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tuokri/tklserver/event"
	"github.com/tuokri/tklserver/output/webhook"
)

const (
	// ImageName is the file name kill icons are uploaded under.
	ImageName = "image.png"

	// ProfileURLBase prefixes a player id to link to the player's profile.
	ProfileURLBase = "https://www.steamcommunity.com/profiles/"

	// BotLabel replaces the profile link of a bot.
	BotLabel = "BOT"

	// BotVsBotTitle replaces the title when both sides are bots.
	BotVsBotTitle = "Bot Killed Bot"
)

// Embed colors per action.
const (
	ColorKill     = 3066993  // green
	ColorTeamkill = 15158332 // red
	ColorSuicide  = 9807270  // gray
)

const spacer = "\u200b"

type style struct {
	title string
	color int
}

var styles = map[event.Action]style{
	event.ActionKill:     {"Kill", ColorKill},
	event.ActionTeamkill: {"Team Kill", ColorTeamkill},
	event.ActionSuicide:  {"Suicide", ColorSuicide},
}

// IconSource looks up a kill icon as PNG bytes by damage type.
type IconSource interface {
	Get(key string) ([]byte, bool)
}

// Notification is either a rich embed, optionally with an icon, or plain text.
type Notification struct {
	Content string
	Embed   *webhook.Embed
	Image   []byte
}

// IsFallback reports whether n is the plain-text form.
func (n *Notification) IsFallback() bool {
	return n.Embed == nil
}

// Message converts n into a webhook payload.
func (n *Notification) Message() *webhook.Message {
	if n.Embed == nil {
		return &webhook.Message{Content: n.Content}
	}

	embed := *n.Embed
	msg := &webhook.Message{}
	if len(n.Image) > 0 {
		embed.Image = &webhook.EmbedImage{URL: webhook.AttachmentURL(ImageName)}
		msg.Files = []webhook.File{{Name: ImageName, ContentType: "image/png", Data: n.Image}}
	}
	msg.Embeds = []webhook.Embed{embed}
	return msg
}

// Fallback returns the plain-text notification for raw.
func Fallback(raw string) *Notification {
	return &Notification{Content: raw}
}

// Builder builds notifications, attaching icons from an optional source.
type Builder struct {
	icons  IconSource
	logger *slog.Logger
}

// NewBuilder creates a builder. icons may be nil.
func NewBuilder(icons IconSource, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default().With("component", "notify")
	}
	return &Builder{icons: icons, logger: logger}
}

// Build is NewBuilder(icons, nil).Build(ev, raw).
func Build(ev *event.Event, raw string, icons IconSource) *Notification {
	return NewBuilder(icons, nil).Build(ev, raw)
}

// Build renders ev as an embed. A nil ev, or any failure while building,
// yields the plain-text fallback carrying raw.
func (b *Builder) Build(ev *event.Event, raw string) (n *Notification) {
	if ev == nil {
		return Fallback(raw)
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered while building notification", "panic", r, "line", raw)
			n = Fallback(raw)
		}
	}()

	st, ok := styles[ev.Action]
	if !ok {
		b.logger.Warn("No style for action", "action", ev.Action)
		return Fallback(raw)
	}
	title := st.title
	if ev.BotVsBot {
		title = BotVsBotTitle
	}

	embed := &webhook.Embed{
		Title:     title,
		Color:     st.color,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Fields: []webhook.EmbedField{
			{Name: "Killer", Value: ev.ActorName, Inline: true},
			{Name: "Victim", Value: ev.TargetName, Inline: true},
			{Name: spacer, Value: spacer},
			{Name: "Killer ID", Value: ProfileLink(ev.ActorID), Inline: true},
			{Name: "Victim ID", Value: ProfileLink(ev.TargetID), Inline: true},
			{Name: spacer, Value: spacer},
			{Name: "Damage Type", Value: ev.DamageType},
		},
	}

	n = &Notification{Embed: embed}
	if b.icons != nil {
		if icon, ok := b.icons.Get(ev.DamageType); ok && len(icon) > 0 {
			n.Image = icon
		}
	}
	return n
}

// ProfileLink renders a player id as a markdown profile link, or BotLabel for bots.
func ProfileLink(id uint64) string {
	if id == event.BotID {
		return BotLabel
	}
	s := strconv.FormatUint(id, 10)
	return fmt.Sprintf("[%s](%s%s)", s, ProfileURLBase, s)
}
