package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/store"
)

func TestRunHandlerListRunsFiltersStatus(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{
		runs: []store.SyncRun{
			{ID: uuid.New(), Status: store.RunPartial, StartedAt: time.Now().Add(-time.Minute), Categories: 12, Errors: 2},
			{ID: uuid.New(), Status: store.RunSuccess, StartedAt: time.Now().Add(-time.Hour), Categories: 12},
		},
	}
	handler := NewRunHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=partial&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, repo.lastLimit)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "partial", body.Runs[0].Status)
	require.Equal(t, 2, body.Runs[0].Errors)
}

func TestRunHandlerListRunsBadQuery(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{}, zap.NewNop())
	for _, target := range []string{"/api/runs?limit=-1", "/api/runs?limit=abc", "/api/runs?status=exploded"} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunHandlerClampsLimit(t *testing.T) {
	t.Parallel()

	repo := &mockRunRepo{}
	handler := NewRunHandler(repo, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=100000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxRunLimit, repo.lastLimit)
}

func TestRunHandlerRepositoryFailure(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{err: errors.New("disk I/O error")}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	unavailable := NewRunHandler(nil, nil)
	rec = httptest.NewRecorder()
	unavailable.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunHandlerGetRun(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	note := "Heroics: HTTP 503"
	repo := &mockRunRepo{runs: []store.SyncRun{{ID: runID, Status: store.RunPartial, Note: &note}}}
	handler := NewRunHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+runID.String(), nil), runID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, runID.String(), body.Run.ID)
	require.NotNil(t, body.Run.Note)
	require.Equal(t, note, *body.Run.Note)
}

func TestRunHandlerGetRunErrors(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(&mockRunRepo{err: store.ErrNotFound}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil), "nope"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	missing := uuid.New()
	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/runs/"+missing.String(), nil), missing.String()))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type mockRunRepo struct {
	runs      []store.SyncRun
	err       error
	lastLimit int
}

func (m *mockRunRepo) GetRun(_ context.Context, id uuid.UUID) (store.SyncRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	if m.err != nil {
		return store.SyncRun{}, m.err
	}
	return store.SyncRun{}, store.ErrNotFound
}

func (m *mockRunRepo) ListRuns(_ context.Context, limit int) ([]store.SyncRun, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
