package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/store"
)

type exampleRunRepo struct {
	runs []store.SyncRun
}

func (e *exampleRunRepo) GetRun(context.Context, uuid.UUID) (store.SyncRun, error) {
	return e.runs[0], nil
}

func (e *exampleRunRepo) ListRuns(context.Context, int) ([]store.SyncRun, error) {
	return e.runs, nil
}

// ExampleRunHandler_ListRuns shows how to serve the /api/runs endpoint.
func ExampleRunHandler_ListRuns() {
	repo := &exampleRunRepo{
		runs: []store.SyncRun{{
			ID:        uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
			Status:    store.RunSuccess,
			StartedAt: time.Unix(0, 0),
		}},
	}
	handler := NewRunHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d\n", len(payload.Runs))
	// Output:
	// returned runs: 1
}
