// Package retrieve merges semantic search results across query variants
// into one ranked list. A single dense-vector query under-recalls when the
// caller's phrasing diverges from the source text; running a
// keyword-reduced variant alongside it recovers lexical matches without a
// second index.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"examtrainer/internal/index"
	"examtrainer/internal/model"
	"examtrainer/internal/store"
)

// Retriever runs hybrid retrieval over the semantic index.
type Retriever struct {
	store *store.Store
	index *index.Index
}

func New(st *store.Store, ix *index.Index) *Retriever {
	return &Retriever{store: st, index: ix}
}

type hit struct {
	questionID int64
	score      float64
	variant    int // variant that first produced the best score
}

// Retrieve runs each query variant against the index, unions the result
// sets keeping the highest score per question, and returns the top-k
// records. Determinism on equal scores: the record seen by the earlier
// variant wins, then the lower question id.
func (r *Retriever) Retrieve(ctx context.Context, examID, query string, k int) ([]model.ScoredQuestion, error) {
	if _, err := r.store.GetExam(examID); err != nil {
		return nil, err
	}

	variants := []string{query}
	if kw := KeywordQuery(query); kw != "" && kw != query {
		variants = append(variants, kw)
	}

	best := make(map[int64]hit)
	for vi, variant := range variants {
		results, err := r.index.Search(ctx, variant, k, examID)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", vi, err)
		}
		for _, res := range results {
			prev, ok := best[res.QuestionID]
			if !ok || res.Score > prev.score {
				best[res.QuestionID] = hit{questionID: res.QuestionID, score: res.Score, variant: vi}
			}
		}
	}

	merged := make([]hit, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		if merged[i].variant != merged[j].variant {
			return merged[i].variant < merged[j].variant
		}
		return merged[i].questionID < merged[j].questionID
	})
	if len(merged) > k {
		merged = merged[:k]
	}

	scored := make([]model.ScoredQuestion, 0, len(merged))
	for _, h := range merged {
		q, err := r.store.GetQuestion(h.questionID)
		if err != nil {
			return nil, err
		}
		scored = append(scored, model.ScoredQuestion{Question: q, Score: h.score})
	}
	return scored, nil
}
