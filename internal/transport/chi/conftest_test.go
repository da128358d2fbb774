package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/db/memory"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	"github.com/kailas-cloud/searchcore/internal/repository/index"
	keyrepo "github.com/kailas-cloud/searchcore/internal/repository/key"
	taskrepo "github.com/kailas-cloud/searchcore/internal/repository/task"
	"github.com/kailas-cloud/searchcore/internal/storage"
	dumpuc "github.com/kailas-cloud/searchcore/internal/usecase/dump"
	healthuc "github.com/kailas-cloud/searchcore/internal/usecase/health"
	taskuc "github.com/kailas-cloud/searchcore/internal/usecase/task"
)

const masterKey = "master-key"

type api struct {
	handler http.Handler
	tasks   *taskuc.Service
	keys    *keyrepo.Repo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := memory.NewStore()
	live := taskrepo.New(db, "test:")
	keys := keyrepo.New(db, "test:")
	engine := index.NewEngine()
	dir, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	logger := zap.NewNop()
	tasks := taskuc.New(live, engine, settings.AllFeatures(), logger)
	dumps := dumpuc.New(
		dumpuc.Stores{Tasks: live, Keys: keys},
		dumpuc.Stores{Tasks: taskrepo.New(db, "test:staging:"), Keys: keyrepo.New(db, "test:staging:")},
		engine, dir, tasks, settings.AllFeatures(), uuid.New(), logger,
	)
	server := NewServer(tasks, dumps, healthuc.New(db, dir, logger), logger)
	return &api{
		handler: NewRouter(server, NewAuthenticator(masterKey, keys), logger),
		tasks:   tasks,
		keys:    keys,
	}
}

func (a *api) enqueue(t *testing.T, n int) {
	t.Helper()
	for range n {
		if _, err := a.tasks.Enqueue(context.Background(), "movies", domtask.IndexCreation{}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
}

func (a *api) apiKey(t *testing.T, actions ...domkey.Action) string {
	t.Helper()
	k, errs := domkey.New("test", "", actions, []string{"*"}, nil, time.Now())
	if len(errs) > 0 {
		t.Fatalf("key: %v", errs)
	}
	if err := a.keys.Put(context.Background(), k); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return k.Value(masterKey)
}

func (a *api) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Errorf("status: got %d, want %d", rr.Code, status)
	}
	resp := decode[errorResponse](t, rr)
	if resp.Code != code {
		t.Errorf("error code: got %s, want %s", resp.Code, code)
	}
}
