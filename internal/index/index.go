// Package index maintains per-exam embedding segments over question
// records and answers nearest-neighbor queries for retrieval.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"examtrainer/internal/model"
	"examtrainer/internal/store"
)

// Embedder is the consumed embedding collaborator. Vectors must be
// dimensionally consistent across calls for the lifetime of an index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one search hit, highest-similarity first.
type Result struct {
	QuestionID int64
	Score      float64
}

type entry struct {
	questionID int64
	pos        int64
	vec        []float32
}

// Index holds normalized vectors in per-exam segments, backed by the
// store's vectors table. Segments are loaded lazily and refreshed after
// ingestion commits. One active session per exam is assumed; the mutex
// only protects the process-internal cache.
type Index struct {
	store    *store.Store
	embedder Embedder

	mu       sync.RWMutex
	segments map[string][]entry
	dim      int
}

func New(st *store.Store, embedder Embedder) *Index {
	return &Index{
		store:    st,
		embedder: embedder,
		segments: make(map[string][]entry),
	}
}

// EmbedTexts embeds a batch of question texts for ingestion staging. The
// returned vectors are normalized and dimension-checked.
func (ix *Index) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := ix.embedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// Add embeds a single question's text and persists its vector. Used for
// out-of-pipeline additions; ingestion stages vectors through the store
// transaction instead and calls Refresh.
func (ix *Index) Add(ctx context.Context, questionID int64, examID, text string) error {
	vec, err := ix.embedQuery(ctx, text)
	if err != nil {
		return err
	}
	if err := ix.store.InsertVector(questionID, examID, vec); err != nil {
		return fmt.Errorf("persist vector: %w", err)
	}
	ix.invalidate(examID)
	return nil
}

// Remove deletes a question's vector. Absent ids are a no-op.
func (ix *Index) Remove(examID string, questionID int64) error {
	if err := ix.store.DeleteVector(questionID); err != nil {
		return err
	}
	ix.invalidate(examID)
	return nil
}

// Refresh reloads an exam's segment from the store. Call after an
// ingestion commit or cascade removal.
func (ix *Index) Refresh(examID string) {
	ix.invalidate(examID)
}

// DropExam discards the in-memory segment for a removed exam.
func (ix *Index) DropExam(examID string) {
	ix.invalidate(examID)
}

// Search embeds the query and returns the top-k question ids for the exam
// by cosine similarity (inner product over normalized vectors). Ties break
// by insertion order, earlier-ingested first. Every hit is validated
// against the live question store; a dangling id is an index-consistency
// bug and is surfaced, never silently dropped.
func (ix *Index) Search(ctx context.Context, query string, k int, examID string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	qvec, err := ix.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	seg, err := ix.segment(examID)
	if err != nil {
		return nil, err
	}
	if len(seg) == 0 {
		return nil, nil
	}

	// Segment is in insertion order; a stable sort on score keeps
	// earlier-ingested entries first on ties.
	results := make([]Result, 0, len(seg))
	for _, e := range seg {
		// A stored vector from a differently-dimensioned embed model is
		// an invariant violation, same policy as a dangling id.
		if len(e.vec) != len(qvec) {
			slog.Error("stored vector dimension differs from query",
				"exam", examID, "question_id", e.questionID,
				"stored", len(e.vec), "query", len(qvec))
			return nil, fmt.Errorf("vector for question %d has dimension %d, query has %d: %w",
				e.questionID, len(e.vec), len(qvec), model.ErrIndexInconsistency)
		}
		results = append(results, Result{QuestionID: e.questionID, Score: dot(qvec, e.vec)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}

	for _, r := range results {
		if _, err := ix.store.GetQuestion(r.QuestionID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				slog.Error("search returned dangling question id",
					"exam", examID, "question_id", r.QuestionID)
				return nil, fmt.Errorf("dangling vector for question %d: %w",
					r.QuestionID, model.ErrIndexInconsistency)
			}
			return nil, err
		}
	}
	return results, nil
}

func (ix *Index) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}

	ix.mu.Lock()
	if ix.dim == 0 {
		ix.dim = len(vec)
	}
	dim := ix.dim
	ix.mu.Unlock()
	if len(vec) != dim {
		return nil, fmt.Errorf("embedding dimension %d, index expects %d", len(vec), dim)
	}

	return normalize(vec), nil
}

func (ix *Index) segment(examID string) ([]entry, error) {
	ix.mu.RLock()
	seg, ok := ix.segments[examID]
	ix.mu.RUnlock()
	if ok {
		return seg, nil
	}

	rows, err := ix.store.LoadVectors(examID)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	seg = make([]entry, 0, len(rows))
	for _, row := range rows {
		seg = append(seg, entry{
			questionID: row.QuestionID,
			pos:        row.Pos,
			vec:        normalize(row.Embedding),
		})
	}

	ix.mu.Lock()
	ix.segments[examID] = seg
	if ix.dim == 0 && len(seg) > 0 {
		ix.dim = len(seg[0].vec)
	}
	ix.mu.Unlock()
	return seg, nil
}

func (ix *Index) invalidate(examID string) {
	ix.mu.Lock()
	delete(ix.segments, examID)
	ix.mu.Unlock()
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, f := range vec {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
