package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"examtrainer/internal/model"
)

// VectorRow is one persisted embedding. Pos is a global autoincrement that
// preserves insertion order for deterministic tie-breaking in search.
type VectorRow struct {
	QuestionID int64
	Pos        int64
	Embedding  []float32
}

// LoadVectors returns every vector for an exam in insertion order.
func (s *Store) LoadVectors(examID string) ([]VectorRow, error) {
	rows, err := s.db.Query(
		`SELECT question_id, pos, dim, embedding FROM vectors WHERE exam_id = ? ORDER BY pos`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []VectorRow
	for rows.Next() {
		var v VectorRow
		var dim int
		var blob []byte
		if err := rows.Scan(&v.QuestionID, &v.Pos, &dim, &blob); err != nil {
			return nil, err
		}
		v.Embedding, err = decodeVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("vector for question %d: %w", v.QuestionID, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// InsertVector persists or replaces the embedding for a question outside
// the ingestion transaction.
func (s *Store) InsertVector(questionID int64, examID string, vec []float32) error {
	_, err := s.db.Exec(
		`INSERT INTO vectors (question_id, exam_id, dim, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT(question_id) DO UPDATE SET dim = excluded.dim, embedding = excluded.embedding`,
		questionID, examID, len(vec), encodeVector(vec),
	)
	return err
}

// DeleteVector removes a single vector. Removing an absent id is a no-op
// (idempotent tombstone).
func (s *Store) DeleteVector(questionID int64) error {
	_, err := s.db.Exec(`DELETE FROM vectors WHERE question_id = ?`, questionID)
	return err
}

// VectorCount returns the number of vectors stored for an exam.
func (s *Store) VectorCount(examID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM vectors WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d: %w",
			len(blob), 4*dim, model.ErrIndexInconsistency)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
