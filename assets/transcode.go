package assets

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/tuokri/tklserver/errors"
)

// Transcode decodes an image in any registered format and re-encodes it as PNG.
func Transcode(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "assets", "Transcode", "image decode")
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.WrapInvalid(err, "assets", "Transcode", "png encode from "+format)
	}
	return buf.Bytes(), nil
}
