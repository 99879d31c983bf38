package tcp_test

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuokri/tklserver/assets"
	"github.com/tuokri/tklserver/input/tcp"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/notify"
	"github.com/tuokri/tklserver/output/webhook"
	"github.com/tuokri/tklserver/registry"
	"github.com/tuokri/tklserver/relay"
	"github.com/tuokri/tklserver/testutil"
)

type relayHarness struct {
	hook   *testutil.FakeWebhook
	mirror *testutil.MockNATSClient
	input  *tcp.Input
}

func startRelay(t *testing.T) *relayHarness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hook := testutil.NewFakeWebhook(t)
	client, err := webhook.NewClient(webhook.Config{
		APIBase:   hook.APIBase(),
		Timeout:   2 * time.Second,
		UserAgent: "tklserver-test",
	}, webhook.Deps{Logger: logger})
	require.NoError(t, err)

	reg := registry.Load(ctx, map[string]string{
		"SRV1": hook.URL(101, "alpha"),
		"SRV2": hook.URL(102, "beta"),
		"BAD":  hook.URL(103, "short-ident"),
	}, client, logger)
	require.Equal(t, 2, reg.Len())

	icons, err := assets.New(map[string]string{
		"Rifle":           testutil.PNGBase64(color.RGBA{R: 255, A: 255}),
		"SR":              assets.Alias("Rifle"),
		assets.DefaultKey: testutil.PNGBase64(color.Black),
	}, assets.Deps{Logger: logger})
	require.NoError(t, err)

	mirror := testutil.NewMockNATSClient()
	metrics := metric.NewMetrics()
	pipeline, err := relay.NewPipeline(relay.Config{Location: time.UTC, DeliveryTimeout: 2 * time.Second}, relay.Deps{
		Webhook: client,
		Icons:   icons,
		Mirror:  relay.NewMirror(mirror, "tkl", logger, metrics),
		Logger:  logger,
		Metrics: metrics,
	})
	require.NoError(t, err)

	in, err := tcp.NewInput(tcp.Config{
		Address:      "127.0.0.1:0",
		Encoding:     "latin-1",
		PollInterval: 20 * time.Millisecond,
	}, tcp.Deps{Router: reg, Dispatcher: pipeline, Logger: logger, Metrics: metrics})
	require.NoError(t, err)
	require.NoError(t, in.Start(ctx))
	t.Cleanup(func() { _ = in.Stop(2 * time.Second) })

	return &relayHarness{hook: hook, mirror: mirror, input: in}
}

func (h *relayHarness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.input.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func fieldValue(t *testing.T, embed *webhook.Embed, name string) string {
	t.Helper()
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	t.Fatalf("embed has no field %q", name)
	return ""
}

func TestRelay_KillDelivered(t *testing.T) {
	h := startRelay(t)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("SRV1", "(2023/01/15 - 10:00:00) 'Alice' [0x11] killed 'Bob' [0x22] with <Rifle>"))
	require.NoError(t, err)

	req := h.hook.WaitForRequests(t, 1, 3*time.Second)[0]
	assert.Equal(t, uint64(101), req.WebhookID)
	assert.Equal(t, "alpha", req.Token)
	assert.Empty(t, req.Message.AllowedMentions.Parse)

	require.Len(t, req.Message.Embeds, 1)
	embed := req.Message.Embeds[0]
	assert.Equal(t, "Kill", embed.Title)
	assert.Equal(t, notify.ColorKill, embed.Color)
	assert.Equal(t, "2023-01-15T10:00:00Z", embed.Timestamp)
	assert.Equal(t, "Alice", fieldValue(t, &embed, "Killer"))
	assert.Equal(t, "Bob", fieldValue(t, &embed, "Victim"))
	assert.Equal(t, "Rifle", fieldValue(t, &embed, "Damage Type"))
	assert.Equal(t, notify.ProfileLink(0x11), fieldValue(t, &embed, "Killer ID"))

	require.NotNil(t, embed.Image)
	assert.Equal(t, webhook.AttachmentURL(notify.ImageName), embed.Image.URL)
	assert.NotEmpty(t, req.Files[notify.ImageName])

	testutil.WaitForMessageCount(t, h.mirror, "tkl.SRV1.kill", 1, 2*time.Second)
	var rec relay.Record
	require.NoError(t, json.Unmarshal(h.mirror.GetMessages("tkl.SRV1.kill")[0], &rec))
	assert.True(t, rec.Delivered)
	assert.Equal(t, "SRV1", rec.Ident)
}

func TestRelay_Suicide(t *testing.T) {
	h := startRelay(t)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("SRV1", "(2023/01/15 - 10:00:00) 'Alice' [0x11] killed 'Alice' [0x11] with <SUICIDE_Fall>"))
	require.NoError(t, err)

	req := h.hook.WaitForRequests(t, 1, 3*time.Second)[0]
	require.Len(t, req.Message.Embeds, 1)
	embed := req.Message.Embeds[0]
	assert.Equal(t, "Suicide", embed.Title)
	assert.Equal(t, notify.ColorSuicide, embed.Color)
	assert.Equal(t, "Fall", fieldValue(t, &embed, "Damage Type"))
	assert.Nil(t, embed.Image)
	assert.Empty(t, req.Files)
}

func TestRelay_BotKilledBot(t *testing.T) {
	h := startRelay(t)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("SRV2", "(2023/01/15 - 10:00:00) 'B1' [0x0] killed 'B2' [0x0] with <SR>"))
	require.NoError(t, err)

	req := h.hook.WaitForRequests(t, 1, 3*time.Second)[0]
	assert.Equal(t, uint64(102), req.WebhookID)
	embed := req.Message.Embeds[0]
	assert.Equal(t, notify.BotVsBotTitle, embed.Title)
	assert.Equal(t, notify.BotLabel, fieldValue(t, &embed, "Killer ID"))
	assert.NotEmpty(t, req.Files[notify.ImageName], "alias resolves to the Rifle icon")
}

func TestRelay_UnparseableLineSentAsText(t *testing.T) {
	h := startRelay(t)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("SRV1", testutil.GarbageLine))
	require.NoError(t, err)

	req := h.hook.WaitForRequests(t, 1, 3*time.Second)[0]
	assert.Equal(t, testutil.GarbageLine, req.Message.Content)
	assert.Empty(t, req.Message.Embeds)

	testutil.WaitForMessageCount(t, h.mirror, "tkl.SRV1.raw", 1, 2*time.Second)
}

func TestRelay_UnknownIdentKeepsConnection(t *testing.T) {
	h := startRelay(t)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("NOPE", testutil.KillLine))
	require.NoError(t, err)
	_, err = conn.Write(testutil.Frame("SRV2", testutil.TeamkillLine))
	require.NoError(t, err)

	reqs := h.hook.WaitForRequests(t, 1, 3*time.Second)
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(102), reqs[0].WebhookID)
	assert.Equal(t, "Team Kill", reqs[0].Message.Embeds[0].Title)
}

func TestRelay_DeliveryFailureKeepsConnection(t *testing.T) {
	h := startRelay(t)
	h.hook.SetStatus(http.StatusBadRequest)
	conn := h.dial(t)

	_, err := conn.Write(testutil.Frame("SRV1", testutil.KillLine))
	require.NoError(t, err)
	h.hook.WaitForRequests(t, 1, 3*time.Second)

	testutil.WaitForMessageCount(t, h.mirror, "tkl.SRV1.kill", 1, 2*time.Second)
	var rec relay.Record
	require.NoError(t, json.Unmarshal(h.mirror.GetMessages("tkl.SRV1.kill")[0], &rec))
	assert.False(t, rec.Delivered)

	h.hook.SetStatus(http.StatusNoContent)
	_, err = conn.Write(testutil.Frame("SRV1", testutil.SuicideLine))
	require.NoError(t, err)
	h.hook.WaitForRequests(t, 2, 3*time.Second)
}
