package store

import (
	"database/sql"
	"fmt"

	"examtrainer/internal/model"
)

const questionCols = `id, exam_id, document_id, number, text, answer, has_figure`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	err := row.Scan(&q.ID, &q.ExamID, &q.DocumentID, &q.Number, &q.Text, &q.Answer, &q.HasFigure)
	return q, err
}

// GetQuestion returns a question record by id.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(
		`SELECT `+questionCols+` FROM questions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return model.Question{}, fmt.Errorf("question %d: %w", id, model.ErrNotFound)
	}
	return q, err
}

// ListQuestions returns all question records for an exam in insertion order.
func (s *Store) ListQuestions(examID string) ([]model.Question, error) {
	if _, err := s.GetExam(examID); err != nil {
		return nil, err
	}
	return s.queryQuestions(`SELECT `+questionCols+` FROM questions WHERE exam_id = ? ORDER BY id`, examID)
}

// ListEligibleQuestions returns the default selection pool: every question
// for the exam that is not figure-flagged.
func (s *Store) ListEligibleQuestions(examID string) ([]model.Question, error) {
	if _, err := s.GetExam(examID); err != nil {
		return nil, err
	}
	return s.queryQuestions(
		`SELECT `+questionCols+` FROM questions WHERE exam_id = ? AND has_figure = 0 ORDER BY id`,
		examID,
	)
}

// QuestionCount returns the number of live question records for an exam.
func (s *Store) QuestionCount(examID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
