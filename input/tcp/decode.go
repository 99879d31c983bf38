package tcp

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/tuokri/tklserver/config"
	"github.com/tuokri/tklserver/errors"
)

// Decoder converts inbound frame bytes to text. Not safe for concurrent use;
// each session owns one.
type Decoder struct {
	dec *encoding.Decoder
}

// NewDecoder returns a decoder for a config encoding name. Latin-1 maps every
// byte to a rune; UTF-8 replaces invalid sequences with U+FFFD.
func NewDecoder(name string) (Decoder, error) {
	canonical, ok := config.NormalizeEncoding(name)
	if !ok {
		return Decoder{}, errors.WrapInvalid(errors.ErrInvalidConfig, "tcp-input", "NewDecoder", "encoding "+name)
	}

	switch canonical {
	case config.EncodingUTF8:
		return Decoder{dec: unicode.UTF8.NewDecoder()}, nil
	default:
		return Decoder{dec: charmap.ISO8859_1.NewDecoder()}, nil
	}
}

// Decode returns frame as text.
func (d Decoder) Decode(frame []byte) (string, error) {
	out, err := d.dec.Bytes(frame)
	if err != nil {
		return "", errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "tcp-input", "Decode", "decode frame")
	}
	return string(out), nil
}
