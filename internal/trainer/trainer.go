// Package trainer wires the store, index, retrieval, selection, and
// ledger components together with the LLM collaborators into the
// operations the transport layer exposes: ingesting documents, serving
// exact or generated questions, grading answers, and driving Sequential
// Retry over missed questions.
package trainer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"examtrainer/internal/extract"
	"examtrainer/internal/index"
	"examtrainer/internal/ledger"
	"examtrainer/internal/model"
	"examtrainer/internal/retrieve"
	"examtrainer/internal/selector"
	"examtrainer/internal/store"
)

// Generator produces one candidate question from the exam name and
// optional supporting context.
type Generator interface {
	Generate(ctx context.Context, examName, supportingContext string) (string, error)
}

// Validator reviews a generated question before it is served.
type Validator interface {
	Validate(ctx context.Context, questionText, supportingContext string) (model.Validation, error)
}

// Evaluator judges a learner's answer against a question and its answer
// key.
type Evaluator interface {
	EvaluateAnswer(ctx context.Context, questionText, answerKey, userAnswer string) (model.Evaluation, error)
}

// Config bounds the service's loops and windows.
type Config struct {
	// HistoryWindow is how many recently served questions stay excluded
	// from exact-mode selection.
	HistoryWindow int
	// MaxGenAttempts is how many generate/validate rounds to run before
	// giving up on a serve request.
	MaxGenAttempts int
	// RetrieveK is how many past questions to retrieve as generation
	// context.
	RetrieveK int
}

// DefaultConfig returns the defaults used when a field is unset.
func DefaultConfig() Config {
	return Config{HistoryWindow: 10, MaxGenAttempts: 3, RetrieveK: 5}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.MaxGenAttempts <= 0 {
		c.MaxGenAttempts = def.MaxGenAttempts
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = def.RetrieveK
	}
	return c
}

// Service is the application core behind the HTTP handlers and CLI
// commands.
type Service struct {
	store     *store.Store
	index     *index.Index
	retriever *retrieve.Retriever
	selector  *selector.Selector
	ledger    *ledger.Ledger

	extractor extract.TextExtractor
	generator Generator
	validator Validator
	evaluator Evaluator

	cfg Config
}

// New builds the service and its internal components around the shared
// store and index.
func New(st *store.Store, ix *index.Index, extractor extract.TextExtractor,
	gen Generator, val Validator, eval Evaluator, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store:     st,
		index:     ix,
		retriever: retrieve.New(st, ix),
		selector:  selector.New(st, cfg.HistoryWindow),
		ledger:    ledger.New(st),
		extractor: extractor,
		generator: gen,
		validator: val,
		evaluator: eval,
		cfg:       cfg,
	}
}

// RegisterExam creates an exam from its display name.
func (s *Service) RegisterExam(name string) (model.Exam, error) {
	return s.store.RegisterExam(name)
}

// GetExam returns one exam by id.
func (s *Service) GetExam(examID string) (model.Exam, error) {
	return s.store.GetExam(examID)
}

// ListExams returns all registered exams.
func (s *Service) ListExams() ([]model.Exam, error) {
	return s.store.ListExams()
}

// RemoveExam deletes an exam and all of its dependent state.
func (s *Service) RemoveExam(examID string) error {
	if err := s.store.RemoveExam(examID); err != nil {
		return err
	}
	s.index.DropExam(examID)
	return nil
}

// ListDocuments returns an exam's ingested documents.
func (s *Service) ListDocuments(examID string) ([]model.Document, error) {
	return s.store.ListDocuments(examID)
}

// RemoveDocument deletes one document and everything extracted from it.
func (s *Service) RemoveDocument(documentID string) error {
	doc, err := s.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveDocument(documentID); err != nil {
		return err
	}
	s.index.Refresh(doc.ExamID)
	return nil
}

// IngestReport describes the outcome of ingesting one document.
type IngestReport struct {
	Document  model.Document   `json:"document"`
	Duplicate bool             `json:"duplicate"`
	Questions []model.Question `json:"questions,omitempty"`
}

// IngestDocument runs the full pipeline for one file: content-hash
// duplicate check, text extraction, question segmentation, embedding,
// and a single-transaction commit. A duplicate upload returns the
// existing document with Duplicate set and changes nothing.
func (s *Service) IngestDocument(ctx context.Context, examID string, data []byte, filename string) (IngestReport, error) {
	if _, err := s.store.GetExam(examID); err != nil {
		return IngestReport{}, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.store.FindDocumentByHash(examID, hash)
	switch {
	case err == nil:
		slog.Info("duplicate document skipped",
			"exam", examID, "filename", filename, "existing", existing.ID)
		return IngestReport{Document: existing, Duplicate: true}, nil
	case !errors.Is(err, model.ErrNotFound):
		// A failed duplicate check must not fall through to extraction:
		// the commit would then die on the hash constraint with a
		// misleading error.
		return IngestReport{}, fmt.Errorf("duplicate check for %s: %w", filename, err)
	}

	pages, err := s.extractor.ExtractText(ctx, data)
	if err != nil {
		return IngestReport{}, &model.ExtractionError{Filename: filename, Err: err}
	}
	questions := extract.Questions(pages)

	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Text
	}
	vectors, err := s.index.EmbedTexts(ctx, texts)
	if err != nil {
		return IngestReport{}, fmt.Errorf("embed questions from %s: %w", filename, err)
	}

	doc := model.Document{
		ID:          uuid.NewString(),
		ExamID:      examID,
		ContentHash: hash,
		Filename:    filename,
		IngestedAt:  time.Now().UTC(),
		ByteSize:    int64(len(data)),
	}
	recs := make([]store.IngestionRecord, len(questions))
	for i, q := range questions {
		recs[i] = store.IngestionRecord{Question: q, Vector: vectors[i]}
	}
	committed, err := s.store.CommitIngestion(doc, recs)
	if err != nil {
		return IngestReport{}, fmt.Errorf("commit %s: %w", filename, err)
	}
	s.index.Refresh(examID)

	slog.Info("document ingested",
		"exam", examID, "filename", filename, "questions", len(committed))
	return IngestReport{Document: doc, Questions: committed}, nil
}

// IngestFile is one named input to IngestBatch.
type IngestFile struct {
	Name string
	Data []byte
}

// BatchItem is the per-file outcome of a batch ingestion.
type BatchItem struct {
	Filename string
	Report   IngestReport
	Err      error
}

// IngestBatch ingests each file independently. A failing file is
// reported in its item and never aborts the rest of the batch.
func (s *Service) IngestBatch(ctx context.Context, examID string, files []IngestFile) []BatchItem {
	items := make([]BatchItem, 0, len(files))
	for _, f := range files {
		report, err := s.IngestDocument(ctx, examID, f.Data, f.Name)
		if err != nil {
			slog.Warn("ingestion failed", "exam", examID, "filename", f.Name, "error", err)
		}
		items = append(items, BatchItem{Filename: f.Name, Report: report, Err: err})
	}
	return items
}

// ServeExact picks one original extracted question, excluding anything
// figure-flagged or recently served.
func (s *Service) ServeExact(examID string) (model.Question, error) {
	if _, err := s.store.GetExam(examID); err != nil {
		return model.Question{}, err
	}
	return s.selector.Select(examID)
}

// ServeGenerated produces a new question grounded in retrieved past
// questions. Each candidate passes through the validation collaborator;
// after MaxGenAttempts rejections the request fails with
// model.ErrGenerationQuality. Nothing is persisted, so an abandoned
// request leaves no partial state behind.
func (s *Service) ServeGenerated(ctx context.Context, examID, topic string) (model.GeneratedQuestion, error) {
	exam, err := s.store.GetExam(examID)
	if err != nil {
		return model.GeneratedQuestion{}, err
	}

	query := topic
	if strings.TrimSpace(query) == "" {
		query = exam.Name
	}
	scored, err := s.retriever.Retrieve(ctx, examID, query, s.cfg.RetrieveK)
	if err != nil {
		return model.GeneratedQuestion{}, err
	}
	supporting, sources := s.buildContext(scored)

	var lastReason string
	for attempt := 1; attempt <= s.cfg.MaxGenAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.GeneratedQuestion{}, err
		}

		text, err := s.generator.Generate(ctx, exam.Name, supporting)
		if err != nil {
			return model.GeneratedQuestion{}, fmt.Errorf("generate (attempt %d): %w", attempt, err)
		}
		verdict, err := s.validator.Validate(ctx, text, supporting)
		if err != nil {
			return model.GeneratedQuestion{}, fmt.Errorf("validate (attempt %d): %w", attempt, err)
		}
		if verdict.Accept {
			return model.GeneratedQuestion{Text: text, Context: supporting, Sources: sources}, nil
		}
		lastReason = verdict.Reason
		slog.Warn("generated question rejected",
			"exam", examID, "attempt", attempt, "reason", verdict.Reason)
	}
	return model.GeneratedQuestion{}, fmt.Errorf(
		"%d attempts, last rejection %q: %w",
		s.cfg.MaxGenAttempts, lastReason, model.ErrGenerationQuality)
}

// buildContext joins retrieved question texts into the supporting
// context and collects the distinct source filenames. Figure-flagged
// questions are indexed for retrieval but excluded here: a generated
// question must stand without the figure its reference depended on.
func (s *Service) buildContext(scored []model.ScoredQuestion) (string, []string) {
	var parts []string
	var sources []string
	seen := make(map[string]bool)
	for _, sq := range scored {
		if sq.Question.HasFigure {
			continue
		}
		parts = append(parts, sq.Question.Text)
		if seen[sq.Question.DocumentID] {
			continue
		}
		seen[sq.Question.DocumentID] = true
		if doc, err := s.store.GetDocument(sq.Question.DocumentID); err == nil {
			sources = append(sources, doc.Filename)
		}
	}
	return strings.Join(parts, "\n\n"), sources
}

// SubmitAnswer grades a learner's answer to a stored question. An
// incorrect answer is recorded in the wrong-answer ledger.
func (s *Service) SubmitAnswer(ctx context.Context, examID string, questionID int64, answer string) (model.Evaluation, error) {
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return model.Evaluation{}, err
	}
	if q.ExamID != examID {
		return model.Evaluation{}, fmt.Errorf("question %d not in exam %q: %w",
			questionID, examID, model.ErrNotFound)
	}

	eval, err := s.evaluator.EvaluateAnswer(ctx, q.Text, q.Answer, answer)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate answer: %w", err)
	}
	if !eval.Correct {
		source := ""
		if doc, err := s.store.GetDocument(q.DocumentID); err == nil {
			source = doc.Filename
		}
		if err := s.ledger.RecordMiss(examID, q.ID, q.Text, q.Answer, source); err != nil {
			return model.Evaluation{}, err
		}
	}
	return eval, nil
}

// WrongAnswers returns the ledger in first-missed order.
func (s *Service) WrongAnswers(examID string) ([]model.WrongAnswer, error) {
	return s.ledger.Entries(examID)
}

// WrongAnswersByRecency returns the ledger ordered by most recent miss.
func (s *Service) WrongAnswersByRecency(examID string) ([]model.WrongAnswer, error) {
	return s.ledger.EntriesByRecency(examID)
}

// StartSequentialRetry opens a cursor over the exam's missed questions
// in first-missed order.
func (s *Service) StartSequentialRetry(examID string) (*ledger.RetryCursor, error) {
	if _, err := s.store.GetExam(examID); err != nil {
		return nil, err
	}
	return s.ledger.StartSequentialRetry(examID), nil
}

// WrongAnswerEntry returns one ledger entry by question id.
func (s *Service) WrongAnswerEntry(examID string, questionID int64) (model.WrongAnswer, error) {
	if _, err := s.store.GetExam(examID); err != nil {
		return model.WrongAnswer{}, err
	}
	entry, ok, err := s.store.GetWrongAnswer(examID, questionID)
	if err != nil {
		return model.WrongAnswer{}, err
	}
	if !ok {
		return model.WrongAnswer{}, fmt.Errorf("no ledger entry for question %d: %w",
			questionID, model.ErrNotFound)
	}
	return entry, nil
}

// RetryAnswer grades a retry attempt against a ledger entry's snapshot.
// A correct answer removes the entry; a wrong one increments its count
// without moving it in the retry order.
func (s *Service) RetryAnswer(ctx context.Context, examID string, entry model.WrongAnswer, answer string) (model.Evaluation, error) {
	eval, err := s.evaluator.EvaluateAnswer(ctx, entry.QuestionText, entry.Answer, answer)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate retry answer: %w", err)
	}
	if eval.Correct {
		if err := s.ledger.MarkCorrect(examID, entry.QuestionID); err != nil {
			return model.Evaluation{}, err
		}
		return eval, nil
	}
	if err := s.ledger.RecordMiss(examID, entry.QuestionID, entry.QuestionText, entry.Answer, entry.Source); err != nil {
		return model.Evaluation{}, err
	}
	return eval, nil
}

// MarkRemembered removes a ledger entry the learner acknowledged
// without re-answering.
func (s *Service) MarkRemembered(examID string, questionID int64) error {
	if _, err := s.store.GetExam(examID); err != nil {
		return err
	}
	return s.ledger.MarkRemembered(examID, questionID)
}

// ClearWrongAnswers empties the exam's ledger.
func (s *Service) ClearWrongAnswers(examID string) error {
	return s.ledger.ClearAll(examID)
}

// ResetHistory clears the served-question history, recovering from an
// exhausted selection pool.
func (s *Service) ResetHistory(examID string) error {
	if _, err := s.store.GetExam(examID); err != nil {
		return err
	}
	return s.store.ClearHistory(examID)
}

// Retrieve exposes hybrid retrieval directly, for search endpoints and
// diagnostics.
func (s *Service) Retrieve(ctx context.Context, examID, query string, k int) ([]model.ScoredQuestion, error) {
	if k <= 0 {
		k = s.cfg.RetrieveK
	}
	return s.retriever.Retrieve(ctx, examID, query, k)
}
