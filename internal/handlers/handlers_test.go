package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

type fakeEvaluations struct {
	startErr  error
	resultErr error
	result    *models.ResultResponse
	started   []string
}

func (f *fakeEvaluations) StartEvaluation(_ context.Context, jobTitle, cvFileID, projectFileID string) (*models.EvaluateResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, jobTitle, cvFileID, projectFileID)
	return &models.EvaluateResponse{ID: "job-1", Status: string(models.StatusQueued), JobTitle: jobTitle, CreatedAt: time.Now()}, nil
}

func (f *fakeEvaluations) GetJobResult(_ context.Context, jobID string) (*models.ResultResponse, error) {
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

type fakeDocuments struct {
	err      error
	uploaded []string
}

func (f *fakeDocuments) Upload(_ context.Context, file *multipart.FileHeader, fileType string) (*models.UploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, fileType)
	return &models.UploadResponse{ID: uuid.NewString(), OriginalName: file.Filename, FileType: fileType}, nil
}

func newTestApp(evals *fakeEvaluations, docs *fakeDocuments) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/api/v1"),
		NewUploadHandler(docs, nil),
		NewEvaluationHandler(evals, validator.New(), nil),
		NewResultHandler(evals, nil),
	)
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeEvaluations{}, &fakeDocuments{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode(t, resp)["status"])
}

func TestHandleEvaluate(t *testing.T) {
	cvID, projectID := uuid.NewString(), uuid.NewString()

	t.Run("accepted", func(t *testing.T) {
		evals := &fakeEvaluations{}
		app := newTestApp(evals, &fakeDocuments{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/evaluate", models.EvaluateRequest{
			JobTitle: "Backend Developer", CVDocumentID: cvID, ProjectDocumentID: projectID,
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "job-1", body["id"])
		assert.Equal(t, "QUEUED", body["status"])
		assert.Equal(t, []string{"Backend Developer", cvID, projectID}, evals.started)
	})

	t.Run("validation", func(t *testing.T) {
		evals := &fakeEvaluations{}
		app := newTestApp(evals, &fakeDocuments{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/evaluate", models.EvaluateRequest{
			CVDocumentID: "not-a-uuid", ProjectDocumentID: projectID,
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		fields := decode(t, resp)["fields"].(map[string]any)
		assert.Equal(t, "required", fields["JobTitle"])
		assert.Equal(t, "uuid", fields["CVDocumentID"])
		assert.Empty(t, evals.started)
	})

	t.Run("malformed body", func(t *testing.T) {
		app := newTestApp(&fakeEvaluations{}, &fakeDocuments{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown document", func(t *testing.T) {
		evals := &fakeEvaluations{startErr: fmt.Errorf("CV document: %w", services.ErrNotFound)}
		app := newTestApp(evals, &fakeDocuments{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/evaluate", models.EvaluateRequest{
			JobTitle: "Backend Developer", CVDocumentID: cvID, ProjectDocumentID: projectID,
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, decode(t, resp)["error"], "CV document")
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		evals := &fakeEvaluations{startErr: errors.New("pq: connection refused")}
		app := newTestApp(evals, &fakeDocuments{})

		resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/evaluate", models.EvaluateRequest{
			JobTitle: "Backend Developer", CVDocumentID: cvID, ProjectDocumentID: projectID,
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "internal server error", decode(t, resp)["error"])
	})
}

func TestHandleGetResult(t *testing.T) {
	msg := "all providers exhausted"
	evals := &fakeEvaluations{result: &models.ResultResponse{ID: "job-1", Status: string(models.StatusFailed), ErrorMessage: &msg}}
	app := newTestApp(evals, &fakeDocuments{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/result/job-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "FAILED", body["status"])
	assert.Nil(t, body["result"])

	evals.resultErr = fmt.Errorf("evaluation: %w", services.ErrNotFound)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/result/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func multipartRequest(t *testing.T, parts map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, filename := range parts {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandleUpload(t *testing.T) {
	docs := &fakeDocuments{}
	app := newTestApp(&fakeEvaluations{}, docs)

	resp, err := app.Test(multipartRequest(t, map[string]string{"cv": "cv.pdf", "project_report": "report.pdf"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, decode(t, resp)["documents"], 2)
	assert.Equal(t, []string{models.FileTypeCV, models.FileTypeProjectReport}, docs.uploaded)
}

func TestHandleUploadErrors(t *testing.T) {
	app := newTestApp(&fakeEvaluations{}, &fakeDocuments{})
	resp, err := app.Test(multipartRequest(t, map[string]string{"other": "x.pdf"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	app = newTestApp(&fakeEvaluations{}, &fakeDocuments{err: fmt.Errorf("%w: only PDF files are accepted", services.ErrInvalidUpload)})
	resp, err = app.Test(multipartRequest(t, map[string]string{"cv": "cv.docx"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "only PDF")
}
