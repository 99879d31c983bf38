package webhook

// Message is the body of a webhook execution request.
type Message struct {
	Content         string          `json:"content,omitempty"`
	Embeds          []Embed         `json:"embeds,omitempty"`
	AllowedMentions AllowedMentions `json:"allowed_mentions"`

	// Files are sent as multipart parts files[0], files[1], ...
	Files []File `json:"-"`
}

// AllowedMentions controls which mentions in the message may ping.
// An empty, non-nil Parse list suppresses all of them.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// Embed is one rich embed.
type Embed struct {
	Title     string       `json:"title,omitempty"`
	Color     int          `json:"color,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Fields    []EmbedField `json:"fields,omitempty"`
	Image     *EmbedImage  `json:"image,omitempty"`
}

// EmbedField is a name/value pair rendered in an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedImage references an image by URL, including attachment:// URLs.
type EmbedImage struct {
	URL string `json:"url"`
}

// File is an attachment uploaded with the message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// AttachmentURL returns the URL an embed uses to reference an uploaded file.
func AttachmentURL(name string) string {
	return "attachment://" + name
}
