// Package ledger tracks missed questions per exam and drives Sequential
// Retry: entries are re-presented strictly in first-missed order and
// removed once answered correctly or acknowledged as remembered.
package ledger

import (
	"fmt"

	"examtrainer/internal/model"
	"examtrainer/internal/store"
)

// Ledger is the wrong-answer ledger for all exams, backed by the store.
type Ledger struct {
	store *store.Store
}

func New(st *store.Store) *Ledger {
	return &Ledger{store: st}
}

// RecordMiss adds a question to the exam's ledger, or increments the
// wrong-count of its existing entry. The snapshot fields keep the entry
// usable even if the learner later prunes source documents.
func (l *Ledger) RecordMiss(examID string, questionID int64, questionText, answer, source string) error {
	if _, err := l.store.GetExam(examID); err != nil {
		return err
	}
	if err := l.store.UpsertWrongAnswer(examID, questionID, questionText, answer, source); err != nil {
		return fmt.Errorf("record miss: %w", err)
	}
	return nil
}

// Entries returns the ledger in first-missed order.
func (l *Ledger) Entries(examID string) ([]model.WrongAnswer, error) {
	if _, err := l.store.GetExam(examID); err != nil {
		return nil, err
	}
	return l.store.ListWrongAnswers(examID)
}

// EntriesByRecency returns the ledger ordered by most recent miss.
func (l *Ledger) EntriesByRecency(examID string) ([]model.WrongAnswer, error) {
	if _, err := l.store.GetExam(examID); err != nil {
		return nil, err
	}
	return l.store.ListWrongAnswersByRecency(examID)
}

// MarkCorrect removes a question's entry after a correct retry answer.
// Absent entries are a no-op.
func (l *Ledger) MarkCorrect(examID string, questionID int64) error {
	return l.store.DeleteWrongAnswer(examID, questionID)
}

// MarkRemembered removes a question's entry the learner acknowledged
// without re-answering. Absent entries are a no-op.
func (l *Ledger) MarkRemembered(examID string, questionID int64) error {
	return l.store.DeleteWrongAnswer(examID, questionID)
}

// ClearAll removes every entry for the exam.
func (l *Ledger) ClearAll(examID string) error {
	if _, err := l.store.GetExam(examID); err != nil {
		return err
	}
	return l.store.ClearWrongAnswers(examID)
}

// StartSequentialRetry returns a cursor over the exam's ledger in
// insertion order. The cursor reads the live ledger: entries removed
// mid-pass (via MarkCorrect or MarkRemembered) are never yielded again,
// and re-invoking after mutation reflects the current state rather than a
// frozen snapshot.
func (l *Ledger) StartSequentialRetry(examID string) *RetryCursor {
	return &RetryCursor{ledger: l, examID: examID}
}

// RetryCursor walks the ledger in seq order. Zero value is not usable;
// obtain one from StartSequentialRetry.
type RetryCursor struct {
	ledger  *Ledger
	examID  string
	lastSeq int64
}

// Next returns the next live entry, or ok=false when the pass is done.
func (c *RetryCursor) Next() (model.WrongAnswer, bool, error) {
	entry, ok, err := c.ledger.store.NextWrongAnswer(c.examID, c.lastSeq)
	if err != nil || !ok {
		return model.WrongAnswer{}, false, err
	}
	c.lastSeq = entry.Seq
	return entry, true, nil
}
