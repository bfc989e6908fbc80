package model

import "time"

// Exam is a named collection of source documents and their extracted
// questions. It is the unit of isolation: removing an exam removes every
// document, question, index vector, serve history entry, and wrong-answer
// entry that belongs to it.
type Exam struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is one ingested source file. The content hash is unique within
// an exam; re-uploading identical bytes is reported as a duplicate instead
// of creating a second document.
type Document struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"exam_id"`
	ContentHash string    `json:"content_hash"`
	Filename    string    `json:"filename"`
	IngestedAt  time.Time `json:"ingested_at"`
	ByteSize    int64     `json:"byte_size"`
}

// Question is one extracted exam question. Number is the printed question
// number (1-999) and is unique only within its owning document. Questions
// flagged HasFigure stay in the index but are excluded from the default
// selection pool.
type Question struct {
	ID         int64  `json:"id"`
	ExamID     string `json:"exam_id"`
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	Text       string `json:"text"`
	Answer     string `json:"answer,omitempty"`
	HasFigure  bool   `json:"has_figure"`
}

// ScoredQuestion pairs a question with a retrieval similarity score.
type ScoredQuestion struct {
	Question Question `json:"question"`
	Score    float64  `json:"score"`
}

// WrongAnswer is one entry in the per-exam wrong-answer ledger. Seq is the
// ledger insertion order (first-missed order); repeated misses increment
// WrongCount instead of appending a second entry.
type WrongAnswer struct {
	Seq           int64     `json:"seq"`
	ExamID        string    `json:"exam_id"`
	QuestionID    int64     `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	Answer        string    `json:"answer"`
	Source        string    `json:"source"`
	WrongCount    int       `json:"wrong_count"`
	FirstMissedAt time.Time `json:"first_missed_at"`
	LastMissedAt  time.Time `json:"last_missed_at"`
}

// GeneratedQuestion is a question produced by the generation collaborator
// and accepted by the validation collaborator. Sources lists the documents
// whose questions supplied the supporting context.
type GeneratedQuestion struct {
	Text    string   `json:"text"`
	Context string   `json:"context,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// Validation is the validation collaborator's verdict on a generated
// question.
type Validation struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// Evaluation is the outcome of judging a learner's answer.
type Evaluation struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}
