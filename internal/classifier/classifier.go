package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
)

// Fallback is the label used when no category is similar enough.
const Fallback = "Другое"

// DefaultThreshold is the minimum cosine similarity for a category to win.
const DefaultThreshold = 0.3

// Category is a ticket category described in natural language.
type Category struct {
	Name        string
	Description string
}

// DefaultCategories are the helpdesk categories tickets are tagged with.
var DefaultCategories = []Category{
	{"Авторизация", "Проблемы с входом в систему, сброс пароля, блокировка учетной записи"},
	{"Вопросы HR", "Кадровые вопросы, отпуска, больничные, оформление документов"},
	{"Вопросы о времени", "График работы, табель учета времени, опоздания, перенос встреч"},
	{"Технические проблемы", "Неисправности оборудования, проблемы с ПО, доступ к ресурсам"},
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Classifier picks the category whose description embedding is closest to a text.
type Classifier struct {
	embedder   Embedder
	categories []Category
	threshold  float64
	logger     *slog.Logger

	mu      sync.Mutex
	vectors [][]float32 // category embeddings, computed on first use
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCategories replaces the default category set.
func WithCategories(cats []Category) Option {
	return func(c *Classifier) { c.categories = cats }
}

// WithThreshold sets the minimum similarity.
func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a classifier. A nil embedder makes every text fall into Fallback.
func New(embedder Embedder, opts ...Option) *Classifier {
	c := &Classifier{
		embedder:   embedder,
		categories: DefaultCategories,
		threshold:  DefaultThreshold,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the best matching category and its similarity in [0,1].
// Below the threshold the label is Fallback. Embedding failures are logged
// and also yield Fallback.
func (c *Classifier) Classify(ctx context.Context, text string) (string, float64) {
	if strings.TrimSpace(strings.Trim(text, ":")) == "" || c.embedder == nil {
		return Fallback, 0
	}

	cats, err := c.categoryVectors(ctx)
	if err != nil {
		c.logger.Warn("category embeddings unavailable", "error", err)
		return Fallback, 0
	}

	vecs, err := c.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		c.logger.Warn("text embedding failed", "error", err)
		return Fallback, 0
	}

	best, bestScore := Fallback, 0.0
	for i, cv := range cats {
		score := cosine(vecs[0], cv)
		if score > bestScore {
			best, bestScore = c.categories[i].Name, score
		}
	}
	if bestScore < c.threshold {
		return Fallback, bestScore
	}
	return best, bestScore
}

// categoryVectors embeds the categories once. A failed attempt is retried
// on the next call.
func (c *Classifier) categoryVectors(ctx context.Context) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors != nil {
		return c.vectors, nil
	}

	texts := make([]string, len(c.categories))
	for i, cat := range c.categories {
		texts[i] = cat.Name + ": " + cat.Description
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("classifier: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	c.vectors = vecs
	return vecs, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
