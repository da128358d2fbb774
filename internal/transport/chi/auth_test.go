package chi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	logpkg "github.com/kailas-cloud/searchcore/internal/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/tasks", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type failingKeys struct{}

func (failingKeys) List(context.Context) ([]domkey.Key, error) { return nil, errors.New("store down") }

func TestAuth_EmptyMasterKey_PassThrough(t *testing.T) {
	h := NewAuthenticator("", nil).Require(domkey.ActionTasksGet)(okHandler())
	if rr := serve(h, ""); rr.Code != http.StatusOK {
		t.Errorf("empty master key: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_Rejections(t *testing.T) {
	h := NewAuthenticator("secret", nil).Require(domkey.ActionTasksGet)(okHandler())
	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing_authorization_header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "missing_authorization_header"},
		{"wrong token", "Bearer nope", http.StatusForbidden, "invalid_api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, serve(h, tt.header), tt.status, tt.code)
		})
	}
}

func TestAuth_MasterKey(t *testing.T) {
	h := NewAuthenticator("secret", failingKeys{}).Require(domkey.ActionDumpsCreate)(okHandler())
	if rr := serve(h, "Bearer secret"); rr.Code != http.StatusOK {
		t.Errorf("master key: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_KeyStoreError(t *testing.T) {
	h := NewAuthenticator("secret", failingKeys{}).Require(domkey.ActionTasksGet)(okHandler())
	expectError(t, serve(h, "Bearer other"), http.StatusInternalServerError, "internal")
}

func TestAuth_APIKeyActions(t *testing.T) {
	a := newAPI(t)
	token := a.apiKey(t, domkey.ActionTasksGet)

	if rr := a.do("GET", "/tasks", token); rr.Code != http.StatusOK {
		t.Errorf("granted action: got %d, want %d", rr.Code, http.StatusOK)
	}
	expectError(t, a.do("POST", "/dumps", token), http.StatusForbidden, "invalid_api_key")
}

func TestAuth_ExemptPaths(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/health", "/metrics"} {
		if rr := a.do("GET", path, ""); rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestAuth_PrincipalOnRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logging := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusOK)
	})
	h := NewAuthenticator("secret", nil).Require(domkey.ActionTasksGet)(logging)

	req := httptest.NewRequest("GET", "/tasks", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	req = req.WithContext(logpkg.ContextWithLogger(req.Context(), zap.New(core)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["principal"]; got != "master" {
		t.Errorf("principal = %v, want master", got)
	}
}
