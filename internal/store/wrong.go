package store

import (
	"database/sql"
	"time"

	"examtrainer/internal/model"
)

const wrongCols = `seq, exam_id, question_id, question_text, answer, source, wrong_count, first_missed_at, last_missed_at`

func scanWrong(row interface{ Scan(...any) error }) (model.WrongAnswer, error) {
	var w model.WrongAnswer
	err := row.Scan(&w.Seq, &w.ExamID, &w.QuestionID, &w.QuestionText, &w.Answer,
		&w.Source, &w.WrongCount, &w.FirstMissedAt, &w.LastMissedAt)
	return w, err
}

// UpsertWrongAnswer records a miss. A first miss appends a new ledger entry;
// a repeated miss increments wrong_count and updates last_missed_at on the
// existing entry, preserving its position in first-missed order.
func (s *Store) UpsertWrongAnswer(examID string, questionID int64, questionText, answer, source string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO wrong_answers
		   (exam_id, question_id, question_text, answer, source, wrong_count, first_missed_at, last_missed_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(exam_id, question_id) DO UPDATE SET
		   wrong_count = wrong_count + 1,
		   last_missed_at = ?`,
		examID, questionID, questionText, answer, source, now, now, now,
	)
	return err
}

// GetWrongAnswer returns the ledger entry for a question, or false if the
// question has no entry.
func (s *Store) GetWrongAnswer(examID string, questionID int64) (model.WrongAnswer, bool, error) {
	w, err := scanWrong(s.db.QueryRow(
		`SELECT `+wrongCols+` FROM wrong_answers WHERE exam_id = ? AND question_id = ?`,
		examID, questionID,
	))
	if err == sql.ErrNoRows {
		return model.WrongAnswer{}, false, nil
	}
	if err != nil {
		return model.WrongAnswer{}, false, err
	}
	return w, true, nil
}

// NextWrongAnswer returns the first ledger entry with seq greater than
// afterSeq, in insertion order. This is the cursor step for Sequential
// Retry: entries removed since the last step are simply never reached.
func (s *Store) NextWrongAnswer(examID string, afterSeq int64) (model.WrongAnswer, bool, error) {
	w, err := scanWrong(s.db.QueryRow(
		`SELECT `+wrongCols+` FROM wrong_answers WHERE exam_id = ? AND seq > ? ORDER BY seq LIMIT 1`,
		examID, afterSeq,
	))
	if err == sql.ErrNoRows {
		return model.WrongAnswer{}, false, nil
	}
	if err != nil {
		return model.WrongAnswer{}, false, err
	}
	return w, true, nil
}

// ListWrongAnswers returns the exam's ledger in insertion (first-missed)
// order.
func (s *Store) ListWrongAnswers(examID string) ([]model.WrongAnswer, error) {
	return s.queryWrong(
		`SELECT `+wrongCols+` FROM wrong_answers WHERE exam_id = ? ORDER BY seq`, examID,
	)
}

// ListWrongAnswersByRecency returns the ledger ordered by most recent miss,
// for review listings.
func (s *Store) ListWrongAnswersByRecency(examID string) ([]model.WrongAnswer, error) {
	return s.queryWrong(
		`SELECT `+wrongCols+` FROM wrong_answers WHERE exam_id = ? ORDER BY last_missed_at DESC, seq DESC`,
		examID,
	)
}

// DeleteWrongAnswer removes a ledger entry. Deleting an absent entry is a
// no-op, not an error.
func (s *Store) DeleteWrongAnswer(examID string, questionID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM wrong_answers WHERE exam_id = ? AND question_id = ?`, examID, questionID,
	)
	return err
}

// ClearWrongAnswers removes every ledger entry for an exam.
func (s *Store) ClearWrongAnswers(examID string) error {
	_, err := s.db.Exec(`DELETE FROM wrong_answers WHERE exam_id = ?`, examID)
	return err
}

// WrongAnswerCount returns the number of ledger entries for an exam.
func (s *Store) WrongAnswerCount(examID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM wrong_answers WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}

func (s *Store) queryWrong(query string, args ...any) ([]model.WrongAnswer, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.WrongAnswer
	for rows.Next() {
		w, err := scanWrong(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, w)
	}
	return entries, rows.Err()
}
