package testutil

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
)

// Kill-feed lines as the game sends them, without the sender ident.
const (
	KillLine     = "(2021/03/14 - 12:34:56) 'Alice' [0x110000100000001] killed 'Bob' [0x110000100000002] with <Rifle>"
	TeamkillLine = "(2021/03/14 - 12:34:57) 'Alice' [0x110000100000001] teamkilled 'Carol' [0x110000100000003] with <Grenade>"
	SuicideLine  = "(2021/03/14 - 12:34:58) 'Dave' [0x110000100000004] killed 'Dave' [0x110000100000004] with <SUICIDE_Fall>"
	BotLine      = "(2021/03/14 - 12:34:59) 'Bot1' [0x0] killed 'Bot2' [0x0] with <Knife>"
	GarbageLine  = "server restarting in 5 minutes"
)

// Frame returns the wire frame for line sent by ident.
func Frame(ident, line string) []byte {
	return []byte(ident + line + "\n")
}

// PNGBase64 returns a small solid-color PNG encoded as base64, for asset bundles.
func PNGBase64(c color.Color) string {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
