package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type capturedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (c *capturedEvents) trigger(_ context.Context, ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *capturedEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestHandler(cfg Config) (*Handler, *capturedEvents) {
	cap := &capturedEvents{}
	return New(cfg, cap.trigger, nil), cap
}

func post(h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhook_GLPIPayload(t *testing.T) {
	h, cap := newTestHandler(Config{BearerToken: "tok"})

	w := post(h, `{"event":"update","item":{"id":"12","name":"Printer"}}`, map[string]string{"Authorization": "Bearer tok"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if cap.count() != 1 || cap.events[0].TicketID != 12 || cap.events[0].Event != "update" {
		t.Errorf("events = %+v", cap.events)
	}
}

func TestWebhook_FlatPayloadAndEmptyBody(t *testing.T) {
	h, cap := newTestHandler(Config{BearerToken: "tok"})
	auth := map[string]string{"Authorization": "Bearer tok"}

	if w := post(h, `{"ticket_id":7}`, auth); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if w := post(h, "", auth); w.Code != http.StatusAccepted {
		t.Fatalf("empty body status = %d", w.Code)
	}
	if cap.count() != 2 || cap.events[0].TicketID != 7 || cap.events[1].TicketID != 0 {
		t.Errorf("events = %+v", cap.events)
	}
}

func TestWebhook_BearerAuth(t *testing.T) {
	h, cap := newTestHandler(Config{BearerToken: "tok"})

	if w := post(h, `{}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without auth, got %d", w.Code)
	}
	if w := post(h, `{}`, map[string]string{"Authorization": "Bearer nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
	if cap.count() != 0 {
		t.Error("rejected requests must not trigger")
	}
}

func TestWebhook_HMACAuth(t *testing.T) {
	secret := "webhook_secret_key"
	h, cap := newTestHandler(Config{Secret: secret})

	payload := `{"event":"new","item":{"id":3}}`
	sig := ComputeSignature([]byte(payload), secret)

	// With valid signature
	if w := post(h, payload, map[string]string{"X-Hub-Signature-256": sig}); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with valid HMAC, got %d", w.Code)
	}
	// Alternate header
	if w := post(h, payload, map[string]string{"X-Signature-256": sig}); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with X-Signature-256, got %d", w.Code)
	}
	// With invalid signature
	if w := post(h, payload, map[string]string{"X-Hub-Signature-256": "sha256=invalid"}); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with invalid HMAC, got %d", w.Code)
	}
	// Without signature
	if w := post(h, payload, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without signature, got %d", w.Code)
	}
	if cap.count() != 2 {
		t.Errorf("expected 2 triggers, got %d", cap.count())
	}
}

func TestWebhook_NoAuthConfiguredRejects(t *testing.T) {
	h, _ := newTestHandler(Config{})
	if w := post(h, `{}`, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(Config{BearerToken: "tok"})
	req := httptest.NewRequest(http.MethodGet, Path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(Config{BearerToken: "tok"})
	if w := post(h, "not json", map[string]string{"Authorization": "Bearer tok"}); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestComputeSignature(t *testing.T) {
	sig := ComputeSignature([]byte("test body"), "secret")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with sha256=: %q", sig)
	}
	// Verify it validates
	if !verifyHMAC([]byte("test body"), "secret", sig) {
		t.Error("signature should verify")
	}
}
