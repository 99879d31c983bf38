package event

import "strings"

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	`~`, `\~`,
	"`", "\\`",
	`|`, `\|`,
	`>`, `\>`,
	`[`, `\[`,
	`]`, `\]`,
)

// Sanitize escapes chat markdown and breaks @mentions with a zero-width space.
// No character is removed.
func Sanitize(name string) string {
	name = markdownEscaper.Replace(name)
	return strings.ReplaceAll(name, "@", "@\u200b")
}
