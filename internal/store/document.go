package store

import (
	"database/sql"
	"fmt"

	"examtrainer/internal/model"
)

// FindDocumentByHash returns the document with the given content hash under
// an exam, or model.ErrNotFound. Ingestion uses this for the duplicate
// short-circuit: identical bytes under the same exam never create a second
// document.
func (s *Store) FindDocumentByHash(examID, contentHash string) (model.Document, error) {
	var d model.Document
	err := s.db.QueryRow(
		`SELECT id, exam_id, content_hash, filename, ingested_at, byte_size
		 FROM documents WHERE exam_id = ? AND content_hash = ?`,
		examID, contentHash,
	).Scan(&d.ID, &d.ExamID, &d.ContentHash, &d.Filename, &d.IngestedAt, &d.ByteSize)
	if err == sql.ErrNoRows {
		return model.Document{}, fmt.Errorf("document hash %s: %w", contentHash, model.ErrNotFound)
	}
	return d, err
}

// GetDocument returns a document by id.
func (s *Store) GetDocument(id string) (model.Document, error) {
	var d model.Document
	err := s.db.QueryRow(
		`SELECT id, exam_id, content_hash, filename, ingested_at, byte_size
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.ExamID, &d.ContentHash, &d.Filename, &d.IngestedAt, &d.ByteSize)
	if err == sql.ErrNoRows {
		return model.Document{}, fmt.Errorf("document %q: %w", id, model.ErrNotFound)
	}
	return d, err
}

// ListDocuments returns an exam's documents in ingestion order.
func (s *Store) ListDocuments(examID string) ([]model.Document, error) {
	if _, err := s.GetExam(examID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, exam_id, content_hash, filename, ingested_at, byte_size
		 FROM documents WHERE exam_id = ? ORDER BY ingested_at, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.ExamID, &d.ContentHash, &d.Filename, &d.IngestedAt, &d.ByteSize); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// IngestionRecord is one extracted question plus its embedding, staged for
// a single-transaction commit.
type IngestionRecord struct {
	Question model.Question
	Vector   []float32
}

// CommitIngestion persists a document together with its question records
// and their index vectors in one transaction. Nothing becomes visible to
// retrieval until the commit succeeds, so a crash mid-ingestion never
// leaves a partially indexed document. Returns the questions with their
// assigned ids.
func (s *Store) CommitIngestion(doc model.Document, recs []IngestionRecord) ([]model.Question, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO documents (id, exam_id, content_hash, filename, ingested_at, byte_size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ExamID, doc.ContentHash, doc.Filename, doc.IngestedAt, doc.ByteSize,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	questions := make([]model.Question, 0, len(recs))
	for _, rec := range recs {
		q := rec.Question
		q.ExamID = doc.ExamID
		q.DocumentID = doc.ID

		res, err := tx.Exec(
			`INSERT INTO questions (exam_id, document_id, number, text, answer, has_figure)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			q.ExamID, q.DocumentID, q.Number, q.Text, q.Answer, q.HasFigure,
		)
		if err != nil {
			return nil, fmt.Errorf("insert question %d: %w", q.Number, err)
		}
		q.ID, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}

		if len(rec.Vector) > 0 {
			_, err = tx.Exec(
				`INSERT INTO vectors (question_id, exam_id, dim, embedding) VALUES (?, ?, ?, ?)`,
				q.ID, q.ExamID, len(rec.Vector), encodeVector(rec.Vector),
			)
			if err != nil {
				return nil, fmt.Errorf("insert vector for question %d: %w", q.Number, err)
			}
		}

		questions = append(questions, q)
	}

	return questions, tx.Commit()
}

// RemoveDocument deletes a document and cascades to its question records,
// their vectors, and any serve-history or ledger entries that reference
// them. One transaction, same as the exam cascade.
func (s *Store) RemoveDocument(id string) error {
	if _, err := s.GetDocument(id); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM wrong_answers WHERE question_id IN (SELECT id FROM questions WHERE document_id = ?)`,
		`DELETE FROM served_history WHERE question_id IN (SELECT id FROM questions WHERE document_id = ?)`,
		`DELETE FROM vectors WHERE question_id IN (SELECT id FROM questions WHERE document_id = ?)`,
		`DELETE FROM questions WHERE document_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("remove document %q: %w", id, err)
		}
	}
	return tx.Commit()
}
