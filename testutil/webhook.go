package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tuokri/tklserver/output/webhook"
)

// WebhookRequest is one execution received by a FakeWebhook.
type WebhookRequest struct {
	WebhookID uint64
	Token     string
	Message   webhook.Message
	Files     map[string][]byte // by file name
}

// FakeWebhook is an httptest server speaking the webhook API: GET resolves a
// webhook URL into {"id", "token"}, POST records an execution.
type FakeWebhook struct {
	Server *httptest.Server

	mu       sync.Mutex
	requests []WebhookRequest
	status   int
	notify   chan struct{}
}

// NewFakeWebhook starts a fake webhook server closed by t.Cleanup.
func NewFakeWebhook(t testing.TB) *FakeWebhook {
	t.Helper()

	f := &FakeWebhook{
		status: http.StatusNoContent,
		notify: make(chan struct{}, 1024),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/webhooks/{id}/{token}", f.handleResolve)
	mux.HandleFunc("POST /api/webhooks/{id}/{token}", f.handleExecute)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)

	return f
}

// APIBase is the api_base to configure clients with.
func (f *FakeWebhook) APIBase() string {
	return f.Server.URL + "/api"
}

// URL returns a webhook URL that resolves to id and token.
func (f *FakeWebhook) URL(id uint64, token string) string {
	return fmt.Sprintf("%s/webhooks/%d/%s", f.APIBase(), id, token)
}

// SetStatus sets the status code returned for executions.
func (f *FakeWebhook) SetStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Requests returns a copy of the executions received so far.
func (f *FakeWebhook) Requests() []WebhookRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WebhookRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// WaitForRequests waits until at least n executions arrived and returns them.
func (f *FakeWebhook) WaitForRequests(t testing.TB, n int, timeout time.Duration) []WebhookRequest {
	t.Helper()

	deadline := time.After(timeout)
	for {
		if reqs := f.Requests(); len(reqs) >= n {
			return reqs
		}
		select {
		case <-f.notify:
		case <-deadline:
			t.Fatalf("expected %d webhook requests, got %d", n, len(f.Requests()))
			return nil
		}
	}
}

func (f *FakeWebhook) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		http.Error(w, `{"message": "Unknown Webhook"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "token": r.PathValue("token")})
}

func (f *FakeWebhook) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusNotFound)
		return
	}

	req := WebhookRequest{WebhookID: id, Token: r.PathValue("token"), Files: map[string][]byte{}}
	if err := decodeExecution(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status := f.status
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}

	w.WriteHeader(status)
}

func decodeExecution(r *http.Request, req *WebhookRequest) error {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	if mediaType == "application/json" {
		return json.NewDecoder(r.Body).Decode(&req.Message)
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return err
		}
		if part.FormName() == "payload_json" {
			if err := json.Unmarshal(data, &req.Message); err != nil {
				return err
			}
			continue
		}
		req.Files[part.FileName()] = data
	}
}
