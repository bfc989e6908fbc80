package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examtrainer/internal/extract"
	"examtrainer/internal/index"
	"examtrainer/internal/model"
	"examtrainer/internal/store"
	"examtrainer/internal/trainer"
)

type textParser struct{}

func (textParser) ExtractText(_ context.Context, data []byte) ([]extract.Page, error) {
	return []extract.Page{{Text: string(data)}}, nil
}

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	return []float32{float32(sum[0]) + 1, float32(sum[1]) + 1, float32(sum[2]) + 1}, nil
}

type acceptAll struct{}

func (acceptAll) Generate(_ context.Context, examName, _ string) (string, error) {
	return "Generated question for " + examName, nil
}

func (acceptAll) Validate(_ context.Context, _, _ string) (model.Validation, error) {
	return model.Validation{Accept: true}, nil
}

func (acceptAll) EvaluateAnswer(_ context.Context, _, answerKey, userAnswer string) (model.Evaluation, error) {
	return model.Evaluation{Correct: strings.EqualFold(answerKey, userAnswer)}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ix := index.New(s, hashEmbedder{})
	svc := trainer.New(s, ix, textParser{}, acceptAll{}, acceptAll{}, acceptAll{}, trainer.Config{})

	r := chi.NewRouter()
	New(svc).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func uploadFile(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const uploadDoc = "1. What is BGP?\nAnswer: a routing protocol\n\n2. What is ARP?\nAnswer: address resolution\n"

func TestExamLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	exam := decode[model.Exam](t, resp)
	assert.Equal(t, "net-basics", exam.ID)

	resp = doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/exams/net-basics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/exams/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/exams/net-basics", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUploadAndDuplicate(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})

	resp := uploadFile(t, srv.URL+"/exams/net-basics/documents", "a.pdf", uploadDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]uploadResult](t, resp)
	require.Len(t, results, 1)
	assert.False(t, results[0].Duplicate)
	assert.Len(t, results[0].Questions, 2)

	// Same bytes under a new name: success, flagged as duplicate.
	resp = uploadFile(t, srv.URL+"/exams/net-basics/documents", "b.pdf", uploadDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results = decode[[]uploadResult](t, resp)
	require.Len(t, results, 1)
	assert.True(t, results[0].Duplicate)
	assert.Empty(t, results[0].Error)
}

func TestServeModes(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})
	uploadFile(t, srv.URL+"/exams/net-basics/documents", "a.pdf", uploadDoc)

	resp := doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "exact"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "generate", "topic": "routing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "generate", body["mode"])

	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExhaustedPoolMapsToConflict(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})
	uploadFile(t, srv.URL+"/exams/net-basics/documents", "a.pdf", "1. Single question here.\n")

	resp := doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "exact"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "exact"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/history/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/serve", map[string]string{"mode": "exact"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWrongAnswerRoutes(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/exams", map[string]string{"name": "Net Basics"})
	resp := uploadFile(t, srv.URL+"/exams/net-basics/documents", "a.pdf", uploadDoc)
	results := decode[[]uploadResult](t, resp)
	q := results[0].Questions[0]

	// Miss the question, then walk the retry pass.
	resp = doJSON(t, http.MethodPost, srv.URL+"/exams/net-basics/answers",
		map[string]any{"question_id": q.ID, "answer": "wrong"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	eval := decode[model.Evaluation](t, resp)
	require.False(t, eval.Correct)

	resp = doJSON(t, http.MethodGet, srv.URL+"/exams/net-basics/wrong-answers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]model.WrongAnswer](t, resp)
	require.Len(t, entries, 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/exams/net-basics/wrong-answers/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decode[model.WrongAnswer](t, resp)
	assert.Equal(t, q.ID, entry.QuestionID)

	resp = doJSON(t, http.MethodPost,
		srv.URL+"/exams/net-basics/wrong-answers/"+strconv.FormatInt(q.ID, 10)+"/answer",
		map[string]string{"answer": "a routing protocol"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	eval = decode[model.Evaluation](t, resp)
	assert.True(t, eval.Correct)

	// Entry removed: the pass is over.
	resp = doJSON(t, http.MethodGet, srv.URL+"/exams/net-basics/wrong-answers/next", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
