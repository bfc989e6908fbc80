// Package handler exposes the trainer service as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"examtrainer/internal/model"
	"examtrainer/internal/trainer"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc *trainer.Service
}

// New creates a new Handler.
func New(svc *trainer.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/exams", h.handleCreateExam)
	r.Get("/exams", h.handleListExams)
	r.Get("/exams/{examID}", h.handleGetExam)
	r.Delete("/exams/{examID}", h.handleDeleteExam)

	r.Post("/exams/{examID}/documents", h.handleUploadDocuments)
	r.Get("/exams/{examID}/documents", h.handleListDocuments)
	r.Delete("/exams/{examID}/documents/{documentID}", h.handleDeleteDocument)

	r.Get("/exams/{examID}/search", h.handleSearch)
	r.Post("/exams/{examID}/serve", h.handleServe)
	r.Post("/exams/{examID}/answers", h.handleSubmitAnswer)
	r.Post("/exams/{examID}/history/reset", h.handleResetHistory)

	r.Get("/exams/{examID}/wrong-answers", h.handleListWrongAnswers)
	r.Get("/exams/{examID}/wrong-answers/next", h.handleRetryNext)
	r.Post("/exams/{examID}/wrong-answers/{questionID}/answer", h.handleRetryAnswer)
	r.Post("/exams/{examID}/wrong-answers/{questionID}/remembered", h.handleMarkRemembered)
	r.Delete("/exams/{examID}/wrong-answers", h.handleClearWrongAnswers)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var extractErr *model.ExtractionError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateExam):
		status = http.StatusConflict
	case errors.Is(err, model.ErrExhaustedPool):
		status = http.StatusConflict
	case errors.As(err, &extractErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrGenerationQuality):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "body must be a JSON object with a non-empty name", http.StatusBadRequest)
		return
	}
	exam, err := h.svc.RegisterExam(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.svc.ListExams()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.svc.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveExam(chi.URLParam(r, "examID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadResult is the per-file outcome reported to the client. A
// duplicate upload succeeds with Duplicate set rather than erroring.
type uploadResult struct {
	Filename  string           `json:"filename"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Document  *model.Document  `json:"document,omitempty"`
	Questions []model.Question `json:"questions,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (h *Handler) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, err := h.svc.GetExam(examID); err != nil {
		writeError(w, err)
		return
	}

	const maxUpload = 64 << 20
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "expected multipart form upload", http.StatusBadRequest)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		http.Error(w, `at least one "file" part is required`, http.StatusBadRequest)
		return
	}

	var files []trainer.IngestFile
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		files = append(files, trainer.IngestFile{Name: fh.Filename, Data: data})
	}

	items := h.svc.IngestBatch(r.Context(), examID, files)
	results := make([]uploadResult, 0, len(items))
	for _, item := range items {
		res := uploadResult{Filename: item.Filename}
		if item.Err != nil {
			res.Error = item.Err.Error()
		} else {
			res.Duplicate = item.Report.Duplicate
			doc := item.Report.Document
			res.Document = &doc
			res.Questions = item.Report.Questions
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveDocument(chi.URLParam(r, "documentID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `query parameter "q" is required`, http.StatusBadRequest)
		return
	}
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))

	scored, err := h.svc.Retrieve(r.Context(), chi.URLParam(r, "examID"), query, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scored)
}

func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	var req struct {
		Mode  string `json:"mode"`
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	switch req.Mode {
	case "exact":
		q, err := h.svc.ServeExact(examID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mode": "exact", "question": q})
	case "generate", "":
		q, err := h.svc.ServeGenerated(r.Context(), examID, req.Topic)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mode": "generate", "question": q})
	default:
		http.Error(w, `mode must be "exact" or "generate"`, http.StatusBadRequest)
	}
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID int64  `json:"question_id"`
		Answer     string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		http.Error(w, "body must carry question_id and a non-empty answer", http.StatusBadRequest)
		return
	}

	eval, err := h.svc.SubmitAnswer(r.Context(), chi.URLParam(r, "examID"), req.QuestionID, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetHistory(chi.URLParam(r, "examID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListWrongAnswers(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	var (
		entries []model.WrongAnswer
		err     error
	)
	if r.URL.Query().Get("order") == "recent" {
		entries, err = h.svc.WrongAnswersByRecency(examID)
	} else {
		entries, err = h.svc.WrongAnswers(examID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRetryNext advances a Sequential Retry pass. The client passes
// the seq of the entry it just finished (0 to start); the response is
// the next live entry or 204 when the pass is done. Entries removed
// since the last call are skipped because the cursor reads live state.
func (h *Handler) handleRetryNext(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, err := h.svc.GetExam(examID); err != nil {
		writeError(w, err)
		return
	}
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

	cursor, err := h.svc.StartSequentialRetry(examID)
	if err != nil {
		writeError(w, err)
		return
	}
	for {
		entry, ok, err := cursor.Next()
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if entry.Seq > afterSeq {
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}
}

func (h *Handler) handleRetryAnswer(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		http.Error(w, "body must carry a non-empty answer", http.StatusBadRequest)
		return
	}

	entry, err := h.svc.WrongAnswerEntry(examID, questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	eval, err := h.svc.RetryAnswer(r.Context(), examID, entry, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) handleMarkRemembered(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	if err := h.svc.MarkRemembered(chi.URLParam(r, "examID"), questionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearWrongAnswers(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearWrongAnswers(chi.URLParam(r, "examID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
