package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tuokri/tklserver/errors"
)

// SourcePrefix marks a top-level section as a sender definition: "source.AB12".
const SourcePrefix = "source."

// Supported inbound encodings.
const (
	EncodingLatin1 = "latin-1"
	EncodingUTF8   = "utf-8"
)

// Config is the complete relay configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Webhook WebhookConfig `yaml:"webhook"`
	Assets  AssetsConfig  `yaml:"assets"`
	Metrics MetricsConfig `yaml:"metrics"`
	NATS    NATSConfig    `yaml:"nats"`

	// Sources maps sender ident to its section, collected from "source.<ident>" keys.
	Sources map[string]SourceConfig `yaml:"-"`
}

// RelayConfig configures the inbound TCP listener.
type RelayConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ListenPort   int           `yaml:"listen_port"` // loopback only; used when Port is unset
	Encoding     string        `yaml:"encoding"`
	Timezone     string        `yaml:"timezone"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// WebhookConfig configures the outbound webhook client.
type WebhookConfig struct {
	APIBase   string        `yaml:"api_base"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// AssetsConfig locates the kill icon bundle. An empty Bundle disables icons.
type AssetsConfig struct {
	Bundle string `yaml:"bundle"`
}

// MetricsConfig configures the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// NATSConfig configures the optional event mirror. An empty URL disables it.
// User/Password and Token are optional and may be combined.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	User          string `yaml:"user,omitempty"`
	Password      string `yaml:"password,omitempty"`
	Token         string `yaml:"token,omitempty"`
}

// SourceConfig is one sender section.
type SourceConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:         "0.0.0.0",
			Encoding:     EncodingLatin1,
			Timezone:     "Local",
			PollInterval: time.Second,
		},
		Webhook: WebhookConfig{
			APIBase:   "https://discord.com/api",
			Timeout:   10 * time.Second,
			UserAgent: "tklserver",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		NATS: NATSConfig{
			SubjectPrefix: "tkl",
		},
		Sources: map[string]SourceConfig{},
	}
}

// Validate checks the configuration and normalizes the encoding name.
// Every returned error is classified.
func (c *Config) Validate() error {
	if c.Relay.Port == 0 && c.Relay.ListenPort == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "relay.port")
	}
	if err := validatePort("relay.port", c.Relay.Port); err != nil {
		return err
	}
	if err := validatePort("relay.listen_port", c.Relay.ListenPort); err != nil {
		return err
	}

	encoding, ok := NormalizeEncoding(c.Relay.Encoding)
	if !ok {
		return invalid("Validate", fmt.Sprintf("relay.encoding %q (want %s or %s)",
			c.Relay.Encoding, EncodingLatin1, EncodingUTF8))
	}
	c.Relay.Encoding = encoding

	if _, err := c.Location(); err != nil {
		return errors.WrapFatal(err, "config", "Validate", "relay.timezone")
	}
	if c.Relay.PollInterval <= 0 {
		return invalid("Validate", "relay.poll_interval must be positive")
	}
	if c.Webhook.Timeout <= 0 {
		return invalid("Validate", "webhook.timeout must be positive")
	}
	if c.Webhook.APIBase == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "webhook.api_base")
	}
	if err := validatePort("metrics.port", c.Metrics.Port); err != nil {
		return err
	}
	if c.NATS.URL != "" && !isValidSubjectPart(c.NATS.SubjectPrefix) {
		return invalid("Validate", fmt.Sprintf("nats.subject_prefix %q", c.NATS.SubjectPrefix))
	}
	if c.NATS.Password != "" && c.NATS.User == "" {
		return invalid("Validate", "nats.password requires nats.user")
	}

	return nil
}

// ListenAddress returns the host:port the relay binds.
// listen_port binds loopback only and is used when port is unset.
func (c *Config) ListenAddress() string {
	if c.Relay.Port == 0 && c.Relay.ListenPort != 0 {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Relay.ListenPort))
	}
	return net.JoinHostPort(c.Relay.Host, strconv.Itoa(c.Relay.Port))
}

// Location returns the time zone inbound timestamps are interpreted in.
func (c *Config) Location() (*time.Location, error) {
	switch c.Relay.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Relay.Timezone)
	}
}

// Idents returns the configured sender idents in sorted order.
func (c *Config) Idents() []string {
	idents := make([]string, 0, len(c.Sources))
	for ident := range c.Sources {
		idents = append(idents, ident)
	}
	sort.Strings(idents)
	return idents
}

// NormalizeEncoding maps accepted spellings to a canonical encoding name.
func NormalizeEncoding(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, true
	case "utf-8", "utf8":
		return EncodingUTF8, true
	default:
		return "", false
	}
}

func validatePort(name string, port int) error {
	if port < 0 || port > 65535 {
		return invalid("Validate", fmt.Sprintf("%s %d out of range", name, port))
	}
	return nil
}

func invalid(method, action string) error {
	return errors.WrapFatal(errors.ErrInvalidConfig, "config", method, action)
}

// isValidSubjectPart reports whether s can be used as a NATS subject token prefix.
func isValidSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

// Loader reads a configuration file and applies environment overrides.
type Loader struct {
	envPrefix  string
	validation bool
	getenv     func(string) string
}

// NewLoader creates a loader reading TKLSERVER_* environment overrides.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TKLSERVER",
		validation: true,
		getenv:     os.Getenv,
	}
}

// EnableValidation enables or disables validation after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load reads and validates the configuration file at path with the default loader.
func Load(path string) (*Config, error) {
	return NewLoader().LoadFile(path)
}

// LoadFile loads the file at path on top of Default().
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "LoadFile", "read "+path)
	}
	return l.Parse(data)
}

// Parse decodes YAML (or JSON) configuration data on top of Default().
func (l *Loader) Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapFatal(errors.Join(errors.ErrInvalidConfig, err), "config", "Parse", "yaml decode")
	}

	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, errors.WrapFatal(errors.Join(errors.ErrInvalidConfig, err), "config", "Parse", "section scan")
	}
	for key, node := range sections {
		ident, ok := strings.CutPrefix(key, SourcePrefix)
		if !ok {
			continue
		}
		var src SourceConfig
		if err := node.Decode(&src); err != nil {
			return nil, errors.WrapFatal(errors.Join(errors.ErrInvalidConfig, err), "config", "Parse", key)
		}
		cfg.Sources[ident] = src
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if val := l.getenv(l.envPrefix + "_HOST"); val != "" {
		cfg.Relay.Host = val
	}
	if val := l.getenv(l.envPrefix + "_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return invalid("applyEnvOverrides", l.envPrefix+"_PORT "+strconv.Quote(val))
		}
		cfg.Relay.Port = port
	}
	if val := l.getenv(l.envPrefix + "_ENCODING"); val != "" {
		cfg.Relay.Encoding = val
	}
	if val := l.getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := l.getenv(l.envPrefix + "_NATS_USER"); val != "" {
		cfg.NATS.User = val
	}
	if val := l.getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := l.getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	return nil
}

// String renders the configuration as YAML with webhook URLs and NATS
// secrets redacted.
func (c *Config) String() string {
	redacted := *c
	redacted.Sources = nil
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "<redacted>"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "<redacted>"
	}
	data, _ := yaml.Marshal(&redacted)
	var b strings.Builder
	b.Write(data)
	for _, ident := range c.Idents() {
		fmt.Fprintf(&b, "%s%s:\n  webhook_url: <redacted>\n", SourcePrefix, ident)
	}
	return b.String()
}
