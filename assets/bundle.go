package assets

import (
	"compress/zlib"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/tuokri/tklserver/errors"
)

// maxBundleSize bounds the decompressed bundle.
const maxBundleSize = 64 << 20

// ReadBundle decodes a zlib-compressed JSON object of key to base64 image or
// "__<target>" alias.
func ReadBundle(r io.Reader) (map[string]string, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrDataCorrupted, err), "assets", "ReadBundle", "zlib header")
	}
	defer zr.Close()

	var bundle map[string]string
	if err := json.NewDecoder(io.LimitReader(zr, maxBundleSize)).Decode(&bundle); err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrDataCorrupted, err), "assets", "ReadBundle", "json decode")
	}
	if bundle == nil {
		return nil, errors.WrapInvalid(errors.ErrDataCorrupted, "assets", "ReadBundle", "bundle is not an object")
	}
	return bundle, nil
}

// WriteBundle encodes bundle in the format ReadBundle reads.
func WriteBundle(w io.Writer, bundle map[string]string) error {
	zw, err := zlib.NewWriterLevel(w, zlib.BestCompression)
	if err != nil {
		return errors.Wrap(err, "assets", "WriteBundle", "zlib writer")
	}
	if err := json.NewEncoder(zw).Encode(bundle); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "assets", "WriteBundle", "json encode")
	}
	return errors.Wrap(zw.Close(), "assets", "WriteBundle", "zlib flush")
}

// ReadBundleFile reads a bundle from disk.
func ReadBundleFile(path string) (map[string]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.WrapInvalid(err, "assets", "ReadBundleFile", "open "+path)
	}
	defer f.Close()
	return ReadBundle(f)
}

// Alias returns the bundle value that makes a key an alias of target.
func Alias(target string) string {
	return aliasPrefix + target
}
