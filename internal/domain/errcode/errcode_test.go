package errcode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"syscall"
	"testing"

	"github.com/kailas-cloud/searchcore/internal/domain"
)

func TestCatalogue_Total(t *testing.T) {
	seen := make(map[string]Code)
	for _, c := range All() {
		if c.Name() == "" {
			t.Errorf("code %d has no name", int(c))
		}
		switch c.Type() {
		case TypeInvalidRequest, TypeInternal, TypeAuth, TypeSystem:
		default:
			t.Errorf("code %s has unknown type %q", c, c.Type())
		}
		if c.HTTPStatus() < 400 || c.HTTPStatus() > 599 {
			t.Errorf("code %s has status %d", c, c.HTTPStatus())
		}
		if prev, dup := seen[c.Name()]; dup {
			t.Errorf("name %q used by %d and %d", c.Name(), int(prev), int(c))
		}
		seen[c.Name()] = c
	}
}

// Codes are persisted by number nowhere, but by name everywhere; pin a few anchors so
// an accidental reorder of the catalogue still shows up.
func TestCatalogue_StableNames(t *testing.T) {
	tests := []struct {
		code Code
		name string
		typ  Type
	}{
		{IndexNotFound, "index_not_found", TypeInvalidRequest},
		{InvalidSettingsRankingRules, "invalid_settings_ranking_rules", TypeInvalidRequest},
		{TaskNotCancelable, "task_not_cancelable", TypeInvalidRequest},
		{DumpProcessFailed, "dump_process_failed", TypeInternal},
		{InvalidAPIKey, "invalid_api_key", TypeAuth},
		{NoSpaceLeftOnDevice, "no_space_left_on_device", TypeSystem},
	}
	for _, tt := range tests {
		if tt.code.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", tt.code.Name(), tt.name)
		}
		if tt.code.Type() != tt.typ {
			t.Errorf("%s Type() = %q, want %q", tt.name, tt.code.Type(), tt.typ)
		}
		got, ok := ParseCode(tt.name)
		if !ok || got != tt.code {
			t.Errorf("ParseCode(%q) = %v, %v", tt.name, got, ok)
		}
	}
}

func TestInvalidCode_FallsBackToInternal(t *testing.T) {
	var c Code
	if c.Valid() {
		t.Fatal("zero code must be invalid")
	}
	if c.Name() != "internal" {
		t.Errorf("Name() = %q", c.Name())
	}
	if _, err := c.MarshalText(); err == nil {
		t.Error("expected error marshaling invalid code")
	}
}

func TestPath_Composition(t *testing.T) {
	leaf := New(InvalidSettingsRankingRules, "`INVALID_RULE` is not a valid ranking rule")
	wrapped := leaf.At(2).In("rankingRules")

	if wrapped.Code() != InvalidSettingsRankingRules {
		t.Errorf("code lost: %s", wrapped.Code())
	}
	if got := wrapped.Path().String(); got != "rankingRules[2]" {
		t.Errorf("path = %q", got)
	}
	if len(leaf.Path()) != 0 {
		t.Error("In/At must not mutate the original error")
	}
	want := "Invalid value at `.rankingRules[2]`: `INVALID_RULE` is not a valid ranking rule"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q\nwant      %q", wrapped.Error(), want)
	}

	nested := New(InvalidSettingsTypoTolerance, "bad").In("oneTypo").In("minWordSizeForTypos").In("typoTolerance")
	if got := nested.Path().String(); got != "typoTolerance.minWordSizeForTypos.oneTypo" {
		t.Errorf("nested path = %q", got)
	}
}

func TestErrors_FirstAndWrap(t *testing.T) {
	var es Errors
	if es.First() != nil || es.Err() != nil {
		t.Fatal("empty Errors must be nil")
	}
	es = append(es, New(InvalidSettingsStopWords, "a"), New(InvalidSettingsSynonyms, "b"))
	wrapped := es.In("settings")
	if wrapped.First().Code() != InvalidSettingsStopWords {
		t.Errorf("First() = %s", wrapped.First().Code())
	}
	if wrapped[1].Path().String() != "settings" {
		t.Errorf("path = %q", wrapped[1].Path())
	}
	if !errors.Is(wrapped.Err(), New(InvalidSettingsSynonyms, "")) {
		t.Error("errors.Is must reach aggregated errors")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"catalogued", New(TaskNotFound, "x"), TaskNotFound},
		{"wrapped catalogued", fmt.Errorf("ctx: %w", New(IndexNotFound, "x")), IndexNotFound},
		{"sentinel", fmt.Errorf("get: %w", domain.ErrTaskNotFound), TaskNotFound},
		{"operation", domain.NewOperationError("documentAdditionOrUpdate", "movies", 3, domain.ErrIndexNotFound), IndexNotFound},
		{"disk full", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, NoSpaceLeftOnDevice},
		{"fd limit", syscall.EMFILE, TooManyOpenFiles},
		{"io", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, IOError},
		{"unknown", errors.New("boom"), Internal},
		{"nil", nil, Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyRender_Deterministic(t *testing.T) {
	for _, c := range All() {
		err := New(c, "message for %s", c)
		a := Render(FromError(err))
		b := Render(FromError(err))
		if a != b {
			t.Errorf("render of %s not deterministic: %+v vs %+v", c, a, b)
		}
		if a.Code != c.Name() || a.Type != c.Type() || a.Status != c.HTTPStatus() {
			t.Errorf("render of %s = %+v", c, a)
		}
	}
}

func TestFromError_OpaqueInternal(t *testing.T) {
	cause := errors.New("btree page 42 corrupted")
	e := FromError(cause)
	if e.Code() != Internal {
		t.Fatalf("code = %s", e.Code())
	}
	if e.Message() != opaqueMessage {
		t.Errorf("message leaks internals: %q", e.Message())
	}
	if !errors.Is(e, cause) {
		t.Error("cause must stay reachable for logging")
	}
	if Render(e).Status != http.StatusInternalServerError {
		t.Errorf("status = %d", Render(e).Status)
	}
}

func TestError_JSONRoundTrip(t *testing.T) {
	orig := New(InvalidSettingsEmbedders, "`model` is not allowed").In("model").In("default").In("embedders")
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Error
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("round trip mismatch:\n got %q %q\nwant %q %q", got.Code(), got.Error(), orig.Code(), orig.Error())
	}

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["code"] != "invalid_settings_embedders" || raw["type"] != "invalid_request" {
		t.Errorf("wire form = %s", data)
	}
}

func TestError_UnmarshalUnknownCode(t *testing.T) {
	var e Error
	err := json.Unmarshal([]byte(`{"message":"x","code":"from_the_future","type":"internal"}`), &e)
	if err == nil {
		t.Fatal("expected error for unknown code")
	}
}
