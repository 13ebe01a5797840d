package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/glpibot/glpibot/internal/glpi"
)

// Path is where the API server mounts the handler.
const Path = "/api/webhook/glpi"

// Config holds webhook authentication settings.
type Config struct {
	// Secret for HMAC-SHA256 signature verification (X-Hub-Signature-256 header).
	// If empty, Bearer auth is used instead.
	Secret string `json:"secret,omitempty"`
	// BearerToken for Authorization header auth. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// Event is a ticket notification pushed by GLPI. Both fields are optional;
// any authenticated request means something changed.
type Event struct {
	Event    string
	TicketID int
}

// payload accepts GLPI's webhook body ({"event":..,"item":{"id":..}}) and a
// flat {"ticket_id":..} form.
type payload struct {
	Event    string   `json:"event"`
	TicketID glpi.Int `json:"ticket_id"`
	Item     struct {
		ID glpi.Int `json:"id"`
	} `json:"item"`
}

// TriggerFunc reacts to a pushed event. It must not block.
type TriggerFunc func(ctx context.Context, ev Event)

// Handler receives GLPI webhook calls and turns them into poll triggers.
type Handler struct {
	config  Config
	trigger TriggerFunc
	logger  *slog.Logger
}

// New creates a new webhook handler.
func New(cfg Config, trigger TriggerFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		trigger: trigger,
		logger:  logger,
	}
}

// ServeHTTP handles POST requests at Path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.authenticate(r, body) {
		h.logger.Warn("webhook rejected", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var ev Event
	if len(strings.TrimSpace(string(body))) > 0 {
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		ev.Event = p.Event
		ev.TicketID = int(p.TicketID)
		if ev.TicketID == 0 {
			ev.TicketID = int(p.Item.ID)
		}
	}

	h.logger.Debug("webhook received", "event", ev.Event, "ticket", ev.TicketID)
	h.trigger(r.Context(), ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) authenticate(r *http.Request, body []byte) bool {
	// HMAC signature verification
	if h.config.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, h.config.Secret, sig)
	}

	// Bearer token
	if h.config.BearerToken != "" {
		auth := r.Header.Get("Authorization")
		return hmac.Equal([]byte(auth), []byte("Bearer "+h.config.BearerToken))
	}

	return false
}

// verifyHMAC checks an HMAC-SHA256 signature.
// Signature format: "sha256=<hex>"
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	expectedMAC, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expectedMAC)
}

// ComputeSignature generates an HMAC-SHA256 signature for testing/external use.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
