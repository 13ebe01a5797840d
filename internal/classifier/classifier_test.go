package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeEmbedder maps texts to fixed vectors by prefix.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{0, 0, 0}
		for p, v := range f.vectors {
			if strings.HasPrefix(t, p) {
				out[i] = v
			}
		}
	}
	return out, nil
}

func testCategories() []Category {
	return []Category{
		{"Login", "password reset"},
		{"Hardware", "broken printers"},
	}
}

func TestClassify_BestMatch(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Login":    {1, 0, 0},
		"Hardware": {0, 1, 0},
		"printer":  {0.1, 0.9, 0},
	}}
	c := New(emb, WithCategories(testCategories()))

	label, score := c.Classify(context.Background(), "printer: it jams")
	if label != "Hardware" {
		t.Errorf("label = %q", label)
	}
	if score < 0.9 || score > 1 {
		t.Errorf("score = %f", score)
	}

	// Category embeddings are computed once.
	c.Classify(context.Background(), "printer: again")
	if emb.calls != 3 {
		t.Errorf("expected 3 embed calls (categories once + 2 texts), got %d", emb.calls)
	}
}

func TestClassify_BelowThreshold(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Login":    {1, 0, 0},
		"Hardware": {0, 1, 0},
		"weather":  {0.1, 0.1, 1},
	}}
	c := New(emb, WithCategories(testCategories()))

	label, score := c.Classify(context.Background(), "weather: sunny")
	if label != Fallback {
		t.Errorf("label = %q, want %q", label, Fallback)
	}
	if score >= DefaultThreshold {
		t.Errorf("score = %f", score)
	}
}

func TestClassify_EmptyAndUnavailable(t *testing.T) {
	c := New(&fakeEmbedder{})
	if label, score := c.Classify(context.Background(), " : "); label != Fallback || score != 0 {
		t.Errorf("empty text: %q %f", label, score)
	}

	if label, _ := New(nil).Classify(context.Background(), "printer"); label != Fallback {
		t.Errorf("nil embedder: %q", label)
	}

	failing := &fakeEmbedder{err: errors.New("boom")}
	if label, _ := New(failing).Classify(context.Background(), "printer"); label != Fallback {
		t.Errorf("failing embedder: %q", label)
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %f", got)
	}
	if got := cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch: %f", got)
	}
	if got := cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector: %f", got)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing auth header")
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}

		// Return out of order to exercise index handling.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("test-key", WithBaseURL(srv.URL+"/v1"), WithModel("test-model"))
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0 || vecs[1][0] != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}
