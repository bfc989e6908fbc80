package store

import (
	"fmt"
	"time"
)

// RecordServe appends a question id to the exam's served-question history
// and trims the history to the recency window, both in one transaction.
// The append is the durable record of the serve event itself, so a crash
// can never lose a selection that was already returned to the caller.
func (s *Store) RecordServe(examID string, questionID int64, window int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO served_history (exam_id, question_id, served_at) VALUES (?, ?, ?)`,
		examID, questionID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record serve: %w", err)
	}

	if window > 0 {
		_, err = tx.Exec(
			`DELETE FROM served_history WHERE exam_id = ? AND id NOT IN (
				SELECT id FROM served_history WHERE exam_id = ? ORDER BY id DESC LIMIT ?
			)`,
			examID, examID, window,
		)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return tx.Commit()
}

// RecentServed returns the exam's served-question history, most recent
// first. The slice length is bounded by the recency window RecordServe
// was called with.
func (s *Store) RecentServed(examID string) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT question_id FROM served_history WHERE exam_id = ? ORDER BY id DESC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearHistory removes the exam's served-question history. Exposed for the
// caller's exhausted-pool recovery action.
func (s *Store) ClearHistory(examID string) error {
	_, err := s.db.Exec(`DELETE FROM served_history WHERE exam_id = ?`, examID)
	return err
}
