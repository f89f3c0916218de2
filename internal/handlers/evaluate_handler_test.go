package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-evaluator/internal/models"
	"ai-evaluator/internal/repositories"
)

type fakeDocRepo struct {
	docs map[uuid.UUID]*models.Document
}

func (f *fakeDocRepo) Create(*models.Document) error { return nil }

func (f *fakeDocRepo) FindByID(id uuid.UUID) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, repositories.ErrDocumentNotFound
	}
	return doc, nil
}

type fakeEvalRepo struct {
	created []*models.Evaluation
	eval    *models.Evaluation
}

func (f *fakeEvalRepo) Create(eval *models.Evaluation) error {
	f.created = append(f.created, eval)
	return nil
}

func (f *fakeEvalRepo) FindByID(id uuid.UUID) (*models.Evaluation, error) {
	if f.eval == nil || f.eval.ID != id {
		return nil, repositories.ErrEvaluationNotFound
	}
	return f.eval, nil
}

func (f *fakeEvalRepo) MarkProcessing(uuid.UUID) error                       { return nil }
func (f *fakeEvalRepo) Complete(uuid.UUID, *models.EvaluationResult) error   { return nil }
func (f *fakeEvalRepo) Fail(uuid.UUID, string) error                         { return nil }
func (f *fakeEvalRepo) FindPendingJobs(int) ([]models.Evaluation, error)     { return nil, nil }

type fakeWorker struct {
	enqueued []uuid.UUID
}

func (f *fakeWorker) Start(context.Context)      {}
func (f *fakeWorker) Stop()                      {}
func (f *fakeWorker) EnqueueJob(evalID uuid.UUID) { f.enqueued = append(f.enqueued, evalID) }

func newEvaluateApp(evalRepo *fakeEvalRepo, docRepo *fakeDocRepo, worker *fakeWorker) *fiber.App {
	app := fiber.New()
	handler := NewEvaluationHandler(evalRepo, docRepo, worker)
	app.Post("/evaluate", handler.HandleEvaluate)
	return app
}

func postEvaluate(t *testing.T, app *fiber.App, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestHandleEvaluateAcceptsAndEnqueues(t *testing.T) {
	cvID := uuid.New()
	projectID := uuid.New()
	docRepo := &fakeDocRepo{docs: map[uuid.UUID]*models.Document{
		cvID:      {ID: cvID},
		projectID: {ID: projectID},
	}}
	evalRepo := &fakeEvalRepo{}
	worker := &fakeWorker{}

	resp := postEvaluate(t, newEvaluateApp(evalRepo, docRepo, worker), models.EvaluateRequest{
		JobTitle:          "Backend Engineer",
		CVDocumentID:      cvID.String(),
		ProjectDocumentID: projectID.String(),
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body models.EvaluateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "queued", body.Status)

	require.Len(t, evalRepo.created, 1)
	assert.Equal(t, models.StatusQueued, evalRepo.created[0].Status)
	require.Len(t, worker.enqueued, 1)
	assert.Equal(t, evalRepo.created[0].ID, worker.enqueued[0])
}

func TestHandleEvaluateResubmissionCreatesNewJob(t *testing.T) {
	cvID := uuid.New()
	projectID := uuid.New()
	docRepo := &fakeDocRepo{docs: map[uuid.UUID]*models.Document{
		cvID:      {ID: cvID},
		projectID: {ID: projectID},
	}}
	evalRepo := &fakeEvalRepo{}
	worker := &fakeWorker{}
	app := newEvaluateApp(evalRepo, docRepo, worker)

	req := models.EvaluateRequest{
		JobTitle:          "Backend Engineer",
		CVDocumentID:      cvID.String(),
		ProjectDocumentID: projectID.String(),
	}
	postEvaluate(t, app, req)
	postEvaluate(t, app, req)

	require.Len(t, evalRepo.created, 2)
	assert.NotEqual(t, evalRepo.created[0].ID, evalRepo.created[1].ID)
}

func TestHandleEvaluateMissingDocumentIs404BeforeJobCreation(t *testing.T) {
	cvID := uuid.New()
	docRepo := &fakeDocRepo{docs: map[uuid.UUID]*models.Document{
		cvID: {ID: cvID},
	}}
	evalRepo := &fakeEvalRepo{}
	worker := &fakeWorker{}

	resp := postEvaluate(t, newEvaluateApp(evalRepo, docRepo, worker), models.EvaluateRequest{
		JobTitle:          "Backend Engineer",
		CVDocumentID:      cvID.String(),
		ProjectDocumentID: uuid.New().String(),
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, evalRepo.created)
	assert.Empty(t, worker.enqueued)
}

func TestHandleEvaluateValidatesRequest(t *testing.T) {
	docRepo := &fakeDocRepo{docs: map[uuid.UUID]*models.Document{}}
	app := newEvaluateApp(&fakeEvalRepo{}, docRepo, &fakeWorker{})

	tests := []struct {
		name string
		req  models.EvaluateRequest
	}{
		{"missing job title", models.EvaluateRequest{
			CVDocumentID:      uuid.New().String(),
			ProjectDocumentID: uuid.New().String(),
		}},
		{"missing cv document id", models.EvaluateRequest{
			JobTitle:          "Backend Engineer",
			ProjectDocumentID: uuid.New().String(),
		}},
		{"malformed document id", models.EvaluateRequest{
			JobTitle:          "Backend Engineer",
			CVDocumentID:      "not-a-uuid",
			ProjectDocumentID: uuid.New().String(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postEvaluate(t, app, tt.req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}
