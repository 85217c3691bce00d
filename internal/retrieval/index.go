// ABOUTME: Vector similarity index over ingested document chunks
// ABOUTME: SQLite-persisted vectors with deterministic cosine ranking

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/errandhq/errand-gateway/internal/store"
)

// Match is one query result, ordered by descending similarity.
type Match struct {
	DocumentID string
	Offset     int
	Content    string
	Score      float64
}

// Persistence is the durable side of the index.
type Persistence interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []*store.Chunk) error
	AllChunks(ctx context.Context) ([]*store.Chunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Config contains construction options for the Index.
type Config struct {
	Embedder    Embedder
	Persistence Persistence
	Logger      *slog.Logger
}

// Index answers nearest-neighbor queries over embedded document chunks.
// Updates are append-friendly: adding a document replaces only that
// document's chunks. Rebuild re-embeds everything and is an explicit
// maintenance operation, never triggered by a query.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	db       Persistence
	chunks   []*store.Chunk
	logger   *slog.Logger
}

// New creates an Index and loads previously persisted chunks into memory.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	idx := &Index{
		embedder: cfg.Embedder,
		db:       cfg.Persistence,
		logger:   cfg.Logger.With("component", "retrieval"),
	}

	chunks, err := cfg.Persistence.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persisted chunks: %w", err)
	}
	idx.chunks = chunks
	idx.logger.Info("retrieval index loaded", "chunks", len(chunks))
	return idx, nil
}

// Add embeds the given chunk texts and stores them under documentID,
// replacing any chunks previously indexed for that document.
func (i *Index) Add(ctx context.Context, documentID string, texts []string) error {
	chunks := make([]*store.Chunk, len(texts))
	for offset, text := range texts {
		chunks[offset] = &store.Chunk{
			DocumentID: documentID,
			Offset:     offset,
			Content:    text,
			Vector:     i.embedder.Embed(text),
		}
	}

	if err := i.db.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return fmt.Errorf("persisting chunks for %s: %w", documentID, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.chunks[:0]
	for _, c := range i.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	i.chunks = append(kept, chunks...)
	return nil
}

// Remove drops a document from the index and from persistence.
func (i *Index) Remove(ctx context.Context, documentID string) error {
	if err := i.db.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.chunks[:0]
	for _, c := range i.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	i.chunks = kept
	return nil
}

// Query embeds the text and returns the k most similar chunks by cosine
// similarity. Ties are broken by documentID, then chunk offset, so the
// ranking is deterministic for any fixed index state.
func (i *Index) Query(text string, k int) []Match {
	queryVec := i.embedder.Embed(text)

	i.mu.RLock()
	matches := make([]Match, 0, len(i.chunks))
	for _, c := range i.chunks {
		matches = append(matches, Match{
			DocumentID: c.DocumentID,
			Offset:     c.Offset,
			Content:    c.Content,
			Score:      cosine(queryVec, c.Vector),
		})
	}
	i.mu.RUnlock()

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		if matches[a].DocumentID != matches[b].DocumentID {
			return matches[a].DocumentID < matches[b].DocumentID
		}
		return matches[a].Offset < matches[b].Offset
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Size reports the number of indexed chunks.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

// Rebuild re-embeds every persisted chunk with the current embedder and
// rewrites persistence. Used after an embedder change, from maintenance.
func (i *Index) Rebuild(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	byDoc := make(map[string][]*store.Chunk)
	order := make([]string, 0)
	for _, c := range i.chunks {
		if _, seen := byDoc[c.DocumentID]; !seen {
			order = append(order, c.DocumentID)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}

	rebuilt := make([]*store.Chunk, 0, len(i.chunks))
	for _, docID := range order {
		chunks := byDoc[docID]
		for _, c := range chunks {
			c.Vector = i.embedder.Embed(c.Content)
		}
		if err := i.db.ReplaceChunks(ctx, docID, chunks); err != nil {
			return fmt.Errorf("rebuilding document %s: %w", docID, err)
		}
		rebuilt = append(rebuilt, chunks...)
	}
	i.chunks = rebuilt

	i.logger.Info("retrieval index rebuilt", "documents", len(order), "chunks", len(rebuilt))
	return nil
}

// cosine computes cosine similarity between two vectors. Mismatched
// lengths and zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
