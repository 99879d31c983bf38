// Package webhook executes chat webhooks over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/registry"
)

// maxResponseBody caps how much of an error response is kept for logging.
const maxResponseBody = 512

// Config holds configuration for the webhook client.
type Config struct {
	APIBase   string
	Timeout   time.Duration
	UserAgent string
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.APIBase == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "api_base is required")
	}
	if _, err := url.Parse(c.APIBase); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "invalid api_base")
	}
	if c.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeout must not be negative")
	}
	return nil
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		APIBase:   "https://discord.com/api",
		Timeout:   10 * time.Second,
		UserAgent: "tklserver",
	}
}

// Deps holds runtime dependencies for the client.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client // optional; built from Config.Timeout when nil
}

// Client resolves and executes webhooks. Nothing is retried.
type Client struct {
	apiBase    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a webhook client.
func NewClient(cfg Config, deps Deps) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "webhook")
	}

	return &Client{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// snowflake accepts ids encoded either as JSON strings or numbers.
type snowflake uint64

func (s *snowflake) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*s = snowflake(v)
	return nil
}

type webhookInfo struct {
	ID    snowflake `json:"id"`
	Token string    `json:"token"`
}

// Resolve fetches the webhook object at webhookURL and returns its credentials.
func (c *Client) Resolve(ctx context.Context, webhookURL string) (registry.Destination, error) {
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return registry.Destination{}, errors.WrapInvalid(errors.Join(errors.ErrNotResolvable, err),
			"webhook", "Resolve", "parse url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		return registry.Destination{}, errors.WrapInvalid(err, "webhook", "Resolve", "build request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return registry.Destination{}, errors.WrapTransient(errors.Join(errors.ErrNotResolvable, err),
			"webhook", "Resolve", "http get")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return registry.Destination{}, classify(errors.Join(errors.ErrNotResolvable, err), resp.StatusCode, "Resolve")
	}

	var info webhookInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return registry.Destination{}, errors.WrapInvalid(errors.Join(errors.ErrNotResolvable, err),
			"webhook", "Resolve", "decode response")
	}
	if info.ID == 0 || info.Token == "" {
		return registry.Destination{}, errors.WrapInvalid(errors.ErrNotResolvable,
			"webhook", "Resolve", "response missing id or token")
	}

	return registry.Destination{ID: uint64(info.ID), Token: info.Token}, nil
}

// ExecuteURL returns the execution endpoint for dest.
func (c *Client) ExecuteURL(dest registry.Destination) string {
	return fmt.Sprintf("%s/webhooks/%d/%s", c.apiBase, dest.ID, url.PathEscape(dest.Token))
}

// Execute posts msg to dest. Messages with files are sent as multipart/form-data
// with the JSON payload in the payload_json part.
//
// HTTP 429 and 5xx responses are classified transient, other non-2xx invalid.
func (c *Client) Execute(ctx context.Context, dest registry.Destination, msg *Message) error {
	if msg == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "webhook", "Execute", "nil message")
	}

	payload := *msg
	if payload.AllowedMentions.Parse == nil {
		payload.AllowedMentions.Parse = []string{}
	}

	body, contentType, err := encode(&payload)
	if err != nil {
		return errors.WrapInvalid(err, "webhook", "Execute", "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ExecuteURL(dest), body)
	if err != nil {
		return errors.WrapInvalid(err, "webhook", "Execute", "build request")
	}
	req.Header.Set("Content-Type", contentType)
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(errors.Join(errors.ErrDeliveryFailed, err), "webhook", "Execute", "http post")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return classify(errors.Join(errors.ErrDeliveryFailed, err), resp.StatusCode, "Execute")
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug("Webhook executed", "webhook_id", dest.ID, "status", resp.StatusCode, "files", len(payload.Files))
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func encode(msg *Message) (io.Reader, string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, "", err
	}
	if len(msg.Files) == 0 {
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("payload_json", string(data)); err != nil {
		return nil, "", err
	}
	for i, f := range msg.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[%d]"; filename="%s"`, i, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}

// checkStatus drains a non-2xx response into an error carrying its status.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func classify(err error, status int, method string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.WrapTransient(errors.Join(errors.ErrRateLimited, err), "webhook", method, "status check")
	case status >= 500:
		return errors.WrapTransient(err, "webhook", method, "status check")
	default:
		return errors.WrapInvalid(err, "webhook", method, "status check")
	}
}
