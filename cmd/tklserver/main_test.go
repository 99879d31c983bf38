package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuokri/tklserver/config"
	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/health"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/testutil"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("TKLSERVER_LOG_LEVEL", "warn")
	t.Setenv("TKLSERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := parseFlags([]string{"--config", "relay.yaml", "--log-format=json"})
	require.NoError(t, err)
	assert.Equal(t, "relay.yaml", cfg.ConfigPath)
	assert.Equal(t, "warn", cfg.LogLevel, "env fallback")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Validate)

	cfg, err = parseFlags([]string{"-c", "other.yaml", "--validate", "-v"})
	require.NoError(t, err)
	assert.Equal(t, "other.yaml", cfg.ConfigPath)
	assert.True(t, cfg.Validate)
	assert.True(t, cfg.ShowVersion)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tklserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  port: 1\n"), 0o600))

	valid := CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "text", ShutdownTimeout: time.Second}
	require.NoError(t, validateFlags(&valid))

	tests := []struct {
		name   string
		modify func(*CLIConfig)
	}{
		{"missing config", func(c *CLIConfig) { c.ConfigPath = filepath.Join(t.TempDir(), "nope.yaml") }},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "loud" }},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }},
		{"zero timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			assert.Error(t, validateFlags(&cfg))
		})
	}

	version := CLIConfig{ShowVersion: true}
	assert.NoError(t, validateFlags(&version), "version skips validation")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "ident", "AB12")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, appName, line["service"])
	assert.Equal(t, Version, line["version"])
	assert.Equal(t, "AB12", line["ident"])
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestServe_RelaysUntilCancelled(t *testing.T) {
	hook := testutil.NewFakeWebhook(t)

	cfg := config.Default()
	cfg.Relay.Host = "127.0.0.1"
	cfg.Relay.Port = freePort(t)
	cfg.Relay.Timezone = "UTC"
	cfg.Relay.PollInterval = 20 * time.Millisecond
	cfg.Webhook.APIBase = hook.APIBase()
	cfg.Webhook.Timeout = 2 * time.Second
	cfg.Assets.Bundle = filepath.Join(t.TempDir(), "missing.zlib")
	cfg.Sources["AB12"] = config.SourceConfig{WebhookURL: hook.URL(42, "secret")}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, logger, 2*time.Second) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Relay.Port))
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 3*time.Second, 20*time.Millisecond)
	defer conn.Close()

	_, err := conn.Write(testutil.Frame("AB12", testutil.KillLine))
	require.NoError(t, err)

	req := hook.WaitForRequests(t, 1, 3*time.Second)[0]
	assert.Equal(t, uint64(42), req.WebhookID)
	require.Len(t, req.Message.Embeds, 1)
	assert.Equal(t, "Kill", req.Message.Embeds[0].Title)
	assert.Empty(t, req.Files, "missing bundle disables icons")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_InvalidTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.Port = freePort(t)
	cfg.Relay.Timezone = "Mars/Olympus_Mons"

	err := serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	assert.Error(t, err)
}

func TestLoadIcons_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	monitor := health.NewMonitor("test")
	icons, err := loadIcons("", metric.NewMetricsRegistry(), monitor, logger)
	assert.Nil(t, icons)
	assert.ErrorIs(t, err, errors.ErrFeatureOff)
	st, ok := monitor.Get(health.ComponentAssets)
	require.True(t, ok)
	assert.True(t, st.IsHealthy())

	monitor = health.NewMonitor("test")
	icons, err = loadIcons(filepath.Join(t.TempDir(), "missing.zlib"), metric.NewMetricsRegistry(), monitor, logger)
	assert.Nil(t, icons)
	assert.ErrorIs(t, err, errors.ErrFeatureOff)
	assert.NotEqual(t, errors.ErrFeatureOff, err, "load failure keeps its cause")
	st, ok = monitor.Get(health.ComponentAssets)
	require.True(t, ok)
	assert.True(t, st.IsDegraded())
}

// natsConnect is the part of the NATS CONNECT payload the relay controls.
type natsConnect struct {
	User  string `json:"user"`
	Pass  string `json:"pass"`
	Token string `json:"auth_token"`
	Name  string `json:"name"`
}

// startFakeNATS speaks just enough of the NATS protocol for a client to
// connect, and reports every CONNECT it receives.
func startFakeNATS(t *testing.T) (string, <-chan natsConnect) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	connects := make(chan natsConnect, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				_, _ = conn.Write([]byte("INFO {\"server_id\":\"fake\",\"version\":\"2.10.0\",\"proto\":1,\"max_payload\":1048576}\r\n"))
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					switch {
					case strings.HasPrefix(line, "CONNECT "):
						var c natsConnect
						if json.Unmarshal([]byte(strings.TrimPrefix(line, "CONNECT ")), &c) == nil {
							connects <- c
						}
					case strings.HasPrefix(line, "PING"):
						_, _ = conn.Write([]byte("PONG\r\n"))
					}
				}
			}(conn)
		}
	}()

	return "nats://" + ln.Addr().String(), connects
}

func TestSetupMirror_Auth(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NATSConfig
		want natsConnect
	}{
		{"anonymous", config.NATSConfig{}, natsConnect{Name: appName}},
		{"user and password", config.NATSConfig{User: "relay", Password: "hunter2"},
			natsConnect{User: "relay", Pass: "hunter2", Name: appName}},
		{"token", config.NATSConfig{Token: "t0ken"}, natsConnect{Token: "t0ken", Name: appName}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, connects := startFakeNATS(t)
			cfg := tt.cfg
			cfg.URL = url
			cfg.SubjectPrefix = "tkl"

			monitor := health.NewMonitor("test")
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			mirror, closeMirror := setupMirror(context.Background(), cfg, monitor, logger, metric.NewMetrics())
			defer closeMirror()
			require.NotNil(t, mirror)

			select {
			case got := <-connects:
				assert.Equal(t, tt.want, got)
			case <-time.After(3 * time.Second):
				t.Fatal("no CONNECT received")
			}
		})
	}
}

func TestNATSOptions(t *testing.T) {
	monitor := health.NewMonitor("test")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Len(t, natsOptions(config.NATSConfig{}, monitor, logger), 3)
	assert.Len(t, natsOptions(config.NATSConfig{User: "u", Password: "p"}, monitor, logger), 4)
	assert.Len(t, natsOptions(config.NATSConfig{User: "u", Password: "p", Token: "t"}, monitor, logger), 5)
}
