// Package main implements mkbundle, which packs a directory of kill icons
// into the compressed bundle read by tklserver.
//
//	mkbundle -dir icons/ -out kill_icons.zlib -alias SMG=Rifle -alias Carbine=Rifle
//
// Each image becomes an entry keyed by its file name without extension. An
// image named DEFAULT is stored under the reserved default key.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tuokri/tklserver/assets"
	"github.com/tuokri/tklserver/errors"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// aliasFlags collects repeated -alias name=target values.
type aliasFlags map[string]string

func (a aliasFlags) String() string {
	pairs := make([]string, 0, len(a))
	for k, v := range a {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (a aliasFlags) Set(value string) error {
	name, target, ok := strings.Cut(value, "=")
	if !ok || name == "" || target == "" {
		return fmt.Errorf("alias %q: want name=target", value)
	}
	a[name] = target
	return nil
}

type options struct {
	dir     string
	out     string
	png     bool
	aliases aliasFlags
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := options{aliases: aliasFlags{}}
	fs := flag.NewFlagSet("mkbundle", flag.ExitOnError)
	fs.StringVar(&opts.dir, "dir", ".", "Directory of icon images")
	fs.StringVar(&opts.out, "out", "kill_icons.zlib", "Output bundle path")
	fs.BoolVar(&opts.png, "png", false, "Store every image transcoded to PNG")
	fs.Var(opts.aliases, "alias", "Alias name=target, repeatable")
	_ = fs.Parse(os.Args[1:])

	bundle, err := build(opts, logger)
	if err != nil {
		logger.Error("Bundle build failed", "error", err)
		os.Exit(1)
	}

	if err := write(opts.out, bundle); err != nil {
		logger.Error("Bundle write failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Bundle written", "path", opts.out, "entries", len(bundle))
}

// build collects the images in opts.dir and the aliases into a bundle map.
func build(opts options, logger *slog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(opts.dir)
	if err != nil {
		return nil, errors.Wrap(err, "mkbundle", "build", "read "+opts.dir)
	}

	bundle := make(map[string]string, len(entries)+len(opts.aliases))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || !imageExts[ext] {
			continue
		}

		data, err := os.ReadFile(filepath.Join(opts.dir, e.Name()))
		if err != nil {
			return nil, errors.Wrap(err, "mkbundle", "build", "read "+e.Name())
		}

		// reject anything the relay could not decode
		pngData, err := assets.Transcode(data)
		if err != nil {
			return nil, errors.Wrap(err, "mkbundle", "build", e.Name())
		}
		if opts.png {
			data = pngData
		}

		key := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if key == "DEFAULT" {
			key = assets.DefaultKey
		}
		if _, dup := bundle[key]; dup {
			return nil, fmt.Errorf("duplicate icon name %q", key)
		}
		bundle[key] = base64.StdEncoding.EncodeToString(data)
		logger.Debug("Icon added", "key", key, "bytes", len(data))
	}

	for name, target := range opts.aliases {
		if _, exists := bundle[name]; exists {
			return nil, fmt.Errorf("alias %q shadows an image", name)
		}
		bundle[name] = assets.Alias(target)
	}

	return bundle, nil
}

func write(path string, bundle map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "mkbundle", "write", "create "+path)
	}
	if err := assets.WriteBundle(f, bundle); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
