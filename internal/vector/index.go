package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Document is a unit of content to embed and index, keyed by fid.
type Document struct {
	ID      string
	Content string
}

// Hit is a search result: a fid and its similarity score.
type Hit struct {
	ID    string
	Score float64
}

// Index is a brute-force cosine-similarity nearest-neighbour index over
// artifact embeddings. Mutation is guarded by a lock distinct from the
// artifact repository lock, so search readers never block on a rebuild.
type Index struct {
	provider Provider
	workers  int

	mu    sync.RWMutex
	ids   []string
	vecs  [][]float32
	byID  map[string]int
	dirty bool
}

// NewIndex builds an empty index backed by provider, using workers
// concurrent goroutines for bulk embedding.
func NewIndex(provider Provider, workers int) *Index {
	if workers < 1 {
		workers = 1
	}
	return &Index{provider: provider, workers: workers, byID: make(map[string]int)}
}

// AddDocuments embeds and inserts/replaces docs. Insertion is idempotent: a
// document whose id already exists has its vector replaced in place.
func (idx *Index) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	vecs := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, d := range docs {
		i, d := i, d
		g.Go(func() error {
			v, err := idx.provider.GetEmbedding(gctx, d.Content)
			if err != nil {
				return fmt.Errorf("vector: embed %s: %w", d.ID, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, d := range docs {
		if pos, ok := idx.byID[d.ID]; ok {
			idx.vecs[pos] = vecs[i]
			continue
		}
		idx.byID[d.ID] = len(idx.ids)
		idx.ids = append(idx.ids, d.ID)
		idx.vecs = append(idx.vecs, vecs[i])
	}
	idx.dirty = true
	return nil
}

// Remove drops id from the index, if present.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos, ok := idx.byID[id]
	if !ok {
		return
	}
	last := len(idx.ids) - 1
	idx.ids[pos] = idx.ids[last]
	idx.vecs[pos] = idx.vecs[last]
	idx.byID[idx.ids[pos]] = pos
	idx.ids = idx.ids[:last]
	idx.vecs = idx.vecs[:last]
	delete(idx.byID, id)
	idx.dirty = true
}

// Len reports how many documents are indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Dirty reports whether the index has unsaved mutations since the last Save.
func (idx *Index) Dirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty
}

// Search embeds queryText and returns the limit nearest documents by cosine
// similarity (equivalently, inner product, since every provider returns
// unit-length vectors).
func (idx *Index) Search(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	q, err := idx.provider.GetEmbedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	return idx.searchVector(q, limit), nil
}

func (idx *Index) searchVector(q []float32, limit int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.ids))
	for i, v := range idx.vecs {
		hits = append(hits, Hit{ID: idx.ids[i], Score: dot(q, v)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Rebuild replaces the index contents from scratch, re-embedding every
// document in docs. Used after a crash or bulk migration.
func (idx *Index) Rebuild(ctx context.Context, docs []Document) error {
	idx.mu.Lock()
	idx.ids = nil
	idx.vecs = nil
	idx.byID = make(map[string]int)
	idx.dirty = true
	idx.mu.Unlock()
	return idx.AddDocuments(ctx, docs)
}
