// Package selector serves original extracted questions, spreading serves
// across source documents in proportion to their question counts and
// avoiding recent repeats.
package selector

import (
	"fmt"
	"math/rand/v2"

	"examtrainer/internal/model"
	"examtrainer/internal/store"
)

// Selector picks questions for exact-reuse serving. Not safe for
// concurrent use on the same exam; per-exam mutable state assumes a single
// active session. Selections on different exams may run concurrently.
type Selector struct {
	store  *store.Store
	window int
	rng    *rand.Rand // nil means the shared top-level source
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand injects a seeded source for deterministic tests. The injected
// source is used without locking, so it binds the Selector to one
// goroutine; the default path stays on the race-safe top-level generator.
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) { s.rng = rng }
}

func New(st *store.Store, historyWindow int, opts ...Option) *Selector {
	s := &Selector{
		store:  st,
		window: historyWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) intN(n int) int {
	if s.rng != nil {
		return s.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Select picks one question for the exam:
//
//  1. the pool is every non-figure question,
//  2. minus anything in the served-question history window,
//  3. a source document is drawn with probability proportional to its
//     share of the eligible pool, so long-run serve counts track each
//     document's question-count share,
//  4. the question is drawn uniformly within the chosen document.
//
// The chosen id is appended to the history in the same transaction that
// records the serve, so a crash cannot separate the two.
func (s *Selector) Select(examID string) (model.Question, error) {
	pool, err := s.store.ListEligibleQuestions(examID)
	if err != nil {
		return model.Question{}, err
	}

	recent, err := s.store.RecentServed(examID)
	if err != nil {
		return model.Question{}, err
	}
	excluded := make(map[int64]bool, len(recent))
	for _, id := range recent {
		excluded[id] = true
	}

	byDoc := make(map[string][]model.Question)
	var docOrder []string
	eligible := 0
	for _, q := range pool {
		if excluded[q.ID] {
			continue
		}
		if _, ok := byDoc[q.DocumentID]; !ok {
			docOrder = append(docOrder, q.DocumentID)
		}
		byDoc[q.DocumentID] = append(byDoc[q.DocumentID], q)
		eligible++
	}
	if eligible == 0 {
		return model.Question{}, fmt.Errorf("exam %q: %w", examID, model.ErrExhaustedPool)
	}

	// Weighted document draw: a document holding 60% of the eligible
	// pool receives ~60% of serves.
	n := s.intN(eligible)
	var chosen []model.Question
	for _, docID := range docOrder {
		if n < len(byDoc[docID]) {
			chosen = byDoc[docID]
			break
		}
		n -= len(byDoc[docID])
	}

	q := chosen[s.intN(len(chosen))]
	if err := s.store.RecordServe(examID, q.ID, s.window); err != nil {
		return model.Question{}, fmt.Errorf("record serve: %w", err)
	}
	return q, nil
}
