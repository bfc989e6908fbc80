package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"examtrainer/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the durable registry for exams, documents, question records,
// serve history, the wrong-answer ledger, and index vectors. All writes
// that must be crash-consistent (ingestion, cascade removal, serve events)
// go through a single transaction.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		ingested_at DATETIME NOT NULL,
		byte_size INTEGER NOT NULL DEFAULT 0,
		UNIQUE (exam_id, content_hash),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		text TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		has_figure INTEGER NOT NULL DEFAULT 0,
		UNIQUE (document_id, number),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);

	CREATE TABLE IF NOT EXISTS vectors (
		pos INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL UNIQUE,
		exam_id TEXT NOT NULL,
		dim INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS served_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		served_at DATETIME NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS wrong_answers (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		wrong_count INTEGER NOT NULL DEFAULT 1,
		first_missed_at DATETIME NOT NULL,
		last_missed_at DATETIME NOT NULL,
		UNIQUE (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable exam id from a display name.
func Slugify(name string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

// RegisterExam creates a new exam from a display name. The id is the
// slugified name; a collision returns model.ErrDuplicateExam.
func (s *Store) RegisterExam(name string) (model.Exam, error) {
	id := Slugify(name)
	if id == "" {
		return model.Exam{}, fmt.Errorf("exam name %q produces an empty id", name)
	}

	var existing string
	err := s.db.QueryRow(`SELECT id FROM exams WHERE id = ?`, id).Scan(&existing)
	if err == nil {
		return model.Exam{}, fmt.Errorf("exam %q: %w", id, model.ErrDuplicateExam)
	}
	if err != sql.ErrNoRows {
		return model.Exam{}, err
	}

	exam := model.Exam{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	_, err = s.db.Exec(
		`INSERT INTO exams (id, name, created_at) VALUES (?, ?, ?)`,
		exam.ID, exam.Name, exam.CreatedAt,
	)
	if err != nil {
		return model.Exam{}, err
	}
	return exam, nil
}

// GetExam returns an exam by id.
func (s *Store) GetExam(id string) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, name, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Exam{}, fmt.Errorf("exam %q: %w", id, model.ErrNotFound)
	}
	return e, err
}

// ListExams returns all exams ordered by creation time.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// RemoveExam deletes an exam and everything it owns: documents, questions,
// vectors, serve history, and wrong-answer entries. The cascade is one
// transaction, so a failure leaves all of the exam's data in place.
func (s *Store) RemoveExam(id string) error {
	if _, err := s.GetExam(id); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM wrong_answers WHERE exam_id = ?`,
		`DELETE FROM served_history WHERE exam_id = ?`,
		`DELETE FROM vectors WHERE exam_id = ?`,
		`DELETE FROM questions WHERE exam_id = ?`,
		`DELETE FROM documents WHERE exam_id = ?`,
		`DELETE FROM exams WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("remove exam %q: %w", id, err)
		}
	}
	return tx.Commit()
}
