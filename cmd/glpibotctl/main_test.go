package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glpibot/glpibot/pkg/protocol"
)

func TestAPIJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		if r.Method != "POST" || r.URL.Path != "/api/poll" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"id":"c1","sessions":2,"notified":1}`))
	}))
	defer srv.Close()

	t.Setenv("GLPIBOT_API_URL", srv.URL+"/")
	t.Setenv("GLPIBOT_API_KEY", "k")

	var cycle protocol.CycleStats
	if err := apiJSON("POST", "/api/poll", &cycle); err != nil {
		t.Fatalf("apiJSON: %v", err)
	}
	if cycle.ID != "c1" || cycle.Sessions != 2 || cycle.Notified != 1 {
		t.Errorf("cycle = %+v", cycle)
	}

	t.Setenv("GLPIBOT_API_KEY", "wrong")
	err := apiJSON("POST", "/api/poll", &cycle)
	if err == nil || !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected 401 error, got %v", err)
	}
}

func TestFormatAttrs(t *testing.T) {
	got := formatAttrs(map[string]any{"ticket": 12, "chat_id": 5})
	if got != " chat_id=5 ticket=12" {
		t.Errorf("formatAttrs = %q", got)
	}
	if formatAttrs(nil) != "" {
		t.Error("empty attrs should render nothing")
	}
}
