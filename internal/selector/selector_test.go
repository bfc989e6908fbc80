package selector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examtrainer/internal/model"
	"examtrainer/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ingestDoc commits a document with the given question numbers; negative
// numbers mark figure-flagged questions.
func ingestDoc(t *testing.T, s *store.Store, examID, filename string, numbers []int) (model.Document, []model.Question) {
	t.Helper()
	h := sha256.Sum256([]byte(filename))
	doc := model.Document{
		ID:          uuid.NewString(),
		ExamID:      examID,
		ContentHash: hex.EncodeToString(h[:]),
		Filename:    filename,
		IngestedAt:  time.Now().UTC(),
	}
	var recs []store.IngestionRecord
	for _, n := range numbers {
		q := model.Question{Number: n, Text: filename, HasFigure: n < 0}
		if n < 0 {
			q.Number = -n
		}
		recs = append(recs, store.IngestionRecord{Question: q})
	}
	questions, err := s.CommitIngestion(doc, recs)
	require.NoError(t, err)
	return doc, questions
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

func TestSelectExcludesRecentlyServed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("Exclusion")
	require.NoError(t, err)
	ingestDoc(t, s, "exclusion", "a.pdf", []int{1, 2, 3, 4, 5, 6, 7, 8})

	const window = 4
	sel := New(s, window, WithRand(seededRand()))

	for range 40 {
		recentBefore, err := s.RecentServed("exclusion")
		require.NoError(t, err)

		q, err := sel.Select("exclusion")
		require.NoError(t, err)
		for _, id := range recentBefore {
			assert.NotEqual(t, id, q.ID, "served a question inside the history window")
		}
	}
}

func TestSelectSkipsFigureQuestions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("Figures")
	require.NoError(t, err)
	_, questions := ingestDoc(t, s, "figures", "a.pdf", []int{1, -2, 3, -4})

	figureIDs := map[int64]bool{questions[1].ID: true, questions[3].ID: true}
	sel := New(s, 1, WithRand(seededRand()))
	for range 20 {
		q, err := sel.Select("figures")
		require.NoError(t, err)
		assert.False(t, figureIDs[q.ID], "figure-flagged question served")
	}
}

func TestSelectExhaustedPool(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("Exhausted")
	require.NoError(t, err)
	ingestDoc(t, s, "exhausted", "a.pdf", []int{1, 2})

	// Window larger than the pool: after two serves everything is excluded.
	sel := New(s, 10, WithRand(seededRand()))
	_, err = sel.Select("exhausted")
	require.NoError(t, err)
	_, err = sel.Select("exhausted")
	require.NoError(t, err)

	_, err = sel.Select("exhausted")
	require.ErrorIs(t, err, model.ErrExhaustedPool)

	// Caller recovery: resetting the history reopens the pool.
	require.NoError(t, s.ClearHistory("exhausted"))
	_, err = sel.Select("exhausted")
	require.NoError(t, err)
}

func TestSelectOnlyFigureQuestions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("All Figures")
	require.NoError(t, err)
	ingestDoc(t, s, "all-figures", "a.pdf", []int{-1, -2})

	sel := New(s, 5, WithRand(seededRand()))
	_, err = sel.Select("all-figures")
	require.ErrorIs(t, err, model.ErrExhaustedPool)
}

func TestSelectUnknownExam(t *testing.T) {
	s := newTestStore(t)
	sel := New(s, 5, WithRand(seededRand()))
	_, err := sel.Select("missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSelectFairnessAcrossDocuments(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("Fairness")
	require.NoError(t, err)

	// 6 and 4 eligible questions: expect roughly 60/40 over 100 serves.
	docA, _ := ingestDoc(t, s, "fairness", "a.pdf", []int{1, 2, 3, 4, 5, 6})
	docB, _ := ingestDoc(t, s, "fairness", "b.pdf", []int{1, 2, 3, 4})

	sel := New(s, 5, WithRand(seededRand()))
	counts := map[string]int{}
	for range 100 {
		q, err := sel.Select("fairness")
		require.NoError(t, err)
		counts[q.DocumentID]++
	}

	assert.Equal(t, 100, counts[docA.ID]+counts[docB.ID])
	assert.InDelta(t, 60, counts[docA.ID], 12, "document A share diverged from its 60%% question share")
	assert.InDelta(t, 40, counts[docB.ID], 12, "document B share diverged from its 40%% question share")
}

func TestSelectConcurrentExams(t *testing.T) {
	// One default-source Selector shared across goroutines, each serving
	// its own exam. Run under the race detector this covers the shared
	// randomness path; different exams must not cross-talk.
	s, err := store.New(filepath.Join(t.TempDir(), "selector.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	examIDs := []string{"conc-a", "conc-b", "conc-c", "conc-d"}
	for _, name := range []string{"Conc A", "Conc B", "Conc C", "Conc D"} {
		_, err := s.RegisterExam(name)
		require.NoError(t, err)
	}
	for _, examID := range examIDs {
		ingestDoc(t, s, examID, "a.pdf", []int{1, 2, 3, 4, 5, 6})
	}

	sel := New(s, 2)
	errCh := make(chan error, len(examIDs)*20)
	var wg sync.WaitGroup
	for _, examID := range examIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				q, err := sel.Select(examID)
				if err != nil {
					errCh <- err
					return
				}
				if q.ExamID != examID {
					errCh <- fmt.Errorf("question from exam %q served for %q", q.ExamID, examID)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestSelectRecordsHistoryAtomically(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterExam("Atomic History")
	require.NoError(t, err)
	ingestDoc(t, s, "atomic-history", "a.pdf", []int{1, 2, 3})

	sel := New(s, 5, WithRand(seededRand()))
	q, err := sel.Select("atomic-history")
	require.NoError(t, err)

	recent, err := s.RecentServed("atomic-history")
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, q.ID, recent[0], "serve must land in history immediately")
}
