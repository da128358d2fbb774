package settings

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

// EmbedderSource selects how vectors are produced.
type EmbedderSource string

// Embedder sources.
const (
	SourceOpenAI       EmbedderSource = "openAi"
	SourceHuggingFace  EmbedderSource = "huggingFace"
	SourceOllama       EmbedderSource = "ollama"
	SourceREST         EmbedderSource = "rest"
	SourceUserProvided EmbedderSource = "userProvided"
)

// Embedder configures one named vector source of an index.
type Embedder struct {
	Source                   Setting[EmbedderSource] `json:"source,omitzero"`
	Model                    Setting[string]         `json:"model,omitzero"`
	APIKey                   Setting[string]         `json:"apiKey,omitzero"`
	Dimensions               Setting[int]            `json:"dimensions,omitzero"`
	URL                      Setting[string]         `json:"url,omitzero"`
	DocumentTemplate         Setting[string]         `json:"documentTemplate,omitzero"`
	DocumentTemplateMaxBytes Setting[int]            `json:"documentTemplateMaxBytes,omitzero"`
	Request                  Setting[any]            `json:"request,omitzero"`
	Response                 Setting[any]            `json:"response,omitzero"`
	BinaryQuantized          Setting[bool]           `json:"binaryQuantized,omitzero"`
}

func (e Embedder) merge(p Embedder) Embedder {
	return Embedder{
		Source:                   e.Source.Merge(p.Source),
		Model:                    e.Model.Merge(p.Model),
		APIKey:                   e.APIKey.Merge(p.APIKey),
		Dimensions:               e.Dimensions.Merge(p.Dimensions),
		URL:                      e.URL.Merge(p.URL),
		DocumentTemplate:         e.DocumentTemplate.Merge(p.DocumentTemplate),
		DocumentTemplateMaxBytes: e.DocumentTemplateMaxBytes.Merge(p.DocumentTemplateMaxBytes),
		Request:                  e.Request.Merge(p.Request),
		Response:                 e.Response.Merge(p.Response),
		BinaryQuantized:          e.BinaryQuantized.Merge(p.BinaryQuantized),
	}
}

func (e Embedder) resetUnset() Embedder {
	return Embedder{
		Source:                   resetIfUnset(e.Source),
		Model:                    resetIfUnset(e.Model),
		APIKey:                   resetIfUnset(e.APIKey),
		Dimensions:               resetIfUnset(e.Dimensions),
		URL:                      resetIfUnset(e.URL),
		DocumentTemplate:         resetIfUnset(e.DocumentTemplate),
		DocumentTemplateMaxBytes: resetIfUnset(e.DocumentTemplateMaxBytes),
		Request:                  resetIfUnset(e.Request),
		Response:                 resetIfUnset(e.Response),
		BinaryQuantized:          resetIfUnset(e.BinaryQuantized),
	}
}

// withoutResets turns Reset parameters into NotSet. A stored embedder falls back to its
// source defaults for both.
func (e Embedder) withoutResets() Embedder {
	return Embedder{
		Source:                   unsetIfReset(e.Source),
		Model:                    unsetIfReset(e.Model),
		APIKey:                   unsetIfReset(e.APIKey),
		Dimensions:               unsetIfReset(e.Dimensions),
		URL:                      unsetIfReset(e.URL),
		DocumentTemplate:         unsetIfReset(e.DocumentTemplate),
		DocumentTemplateMaxBytes: unsetIfReset(e.DocumentTemplateMaxBytes),
		Request:                  unsetIfReset(e.Request),
		Response:                 unsetIfReset(e.Response),
		BinaryQuantized:          unsetIfReset(e.BinaryQuantized),
	}
}

// Embedders maps embedder names to their configuration. A Set entry is merged with the
// embedder of the same name, a Reset entry removes it, and names the patch leaves out
// are kept. JSON is a plain object keyed by name.
type Embedders struct {
	byName map[string]Setting[Embedder]
	// replace is left by a Reset followed by a value: merging it drops every name it
	// does not carry.
	replace bool
}

// NewEmbedders wraps byName. The map is copied.
func NewEmbedders(byName map[string]Setting[Embedder]) Embedders {
	out := Embedders{byName: make(map[string]Setting[Embedder], len(byName))}
	for name, e := range byName {
		out.byName[name] = e
	}
	return out
}

// Get returns the entry for name, NotSet when absent.
func (m Embedders) Get(name string) Setting[Embedder] { return m.byName[name] }

// Len returns the number of entries, Reset ones included.
func (m Embedders) Len() int { return len(m.byName) }

// Names returns the entry names in lexical order.
func (m Embedders) Names() []string { return sortedKeys(m.byName) }

func (m Embedders) merge(p Embedders) Embedders {
	if p.replace {
		return p.clone()
	}
	out := m.clone()
	for name, e := range p.byName {
		out.byName[name] = out.byName[name].Merge(e)
	}
	return out
}

func (m Embedders) resetUnset() Embedders {
	out := m.clone()
	out.replace = true
	return out
}

func (m Embedders) clone() Embedders {
	out := NewEmbedders(m.byName)
	out.replace = m.replace
	return out
}

// MarshalJSON writes the entries as an object.
func (m Embedders) MarshalJSON() ([]byte, error) {
	if m.byName == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.byName)
}

// UnmarshalJSON reads an object of entries.
func (m *Embedders) UnmarshalJSON(b []byte) error {
	var byName map[string]Setting[Embedder]
	if err := json.Unmarshal(b, &byName); err != nil {
		return err //nolint:wrapcheck // the json error already names the offending type
	}
	*m = NewEmbedders(byName)
	return nil
}

type paramRule uint8

const (
	forbidden paramRule = iota
	allowed
	required
)

type embedderParam struct {
	name  string
	isSet func(Embedder) bool
	rules map[EmbedderSource]paramRule
}

// Parameter matrix per source, in the order errors are reported.
var embedderParams = []embedderParam{
	{"model", func(e Embedder) bool { return !e.Model.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceHuggingFace: allowed, SourceOllama: required,
	}},
	{"apiKey", func(e Embedder) bool { return !e.APIKey.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceOllama: allowed, SourceREST: allowed,
	}},
	{"dimensions", func(e Embedder) bool { return !e.Dimensions.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceOllama: allowed, SourceREST: allowed, SourceUserProvided: required,
	}},
	{"url", func(e Embedder) bool { return !e.URL.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceOllama: allowed, SourceREST: required,
	}},
	{"documentTemplate", func(e Embedder) bool { return !e.DocumentTemplate.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceHuggingFace: allowed, SourceOllama: allowed, SourceREST: allowed,
	}},
	{"documentTemplateMaxBytes", func(e Embedder) bool { return !e.DocumentTemplateMaxBytes.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceHuggingFace: allowed, SourceOllama: allowed, SourceREST: allowed,
	}},
	{"request", func(e Embedder) bool { return !e.Request.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceREST: required,
	}},
	{"response", func(e Embedder) bool { return !e.Response.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceREST: required,
	}},
	{"binaryQuantized", func(e Embedder) bool { return !e.BinaryQuantized.IsNotSet() }, map[EmbedderSource]paramRule{
		SourceOpenAI: allowed, SourceHuggingFace: allowed, SourceOllama: allowed,
		SourceREST: allowed, SourceUserProvided: allowed,
	}},
}

func validSource(s EmbedderSource) bool {
	switch s {
	case SourceOpenAI, SourceHuggingFace, SourceOllama, SourceREST, SourceUserProvided:
		return true
	}
	return false
}

func validateEmbedder(e Embedder) errcode.Errors {
	src, ok := e.Source.Get()
	if !ok {
		return errcode.Errors{newEmbedderError("missing `source`").In("source")}
	}
	if !validSource(src) {
		return errcode.Errors{newEmbedderError(
			"unknown source `%s`, expected one of `openAi`, `huggingFace`, `ollama`, `rest`, `userProvided`", src,
		).In("source")}
	}

	var errs errcode.Errors
	for _, p := range embedderParams {
		rule := p.rules[src]
		set := p.isSet(e)
		switch {
		case set && rule == forbidden:
			errs = append(errs, newEmbedderError("`%s` is not allowed for source `%s`", p.name, src).In(p.name))
		case !set && rule == required:
			errs = append(errs, newEmbedderError("missing `%s` for source `%s`", p.name, src).In(p.name))
		}
	}
	if d, ok := e.Dimensions.Get(); ok && d <= 0 {
		errs = append(errs, newEmbedderError("`dimensions` must be positive, got %d", d).In("dimensions"))
	}
	if n, ok := e.DocumentTemplateMaxBytes.Get(); ok && n <= 0 {
		errs = append(errs, newEmbedderError("`documentTemplateMaxBytes` must be positive, got %d", n).In("documentTemplateMaxBytes"))
	}
	return errs
}

func newEmbedderError(format string, args ...any) *errcode.Error {
	return errcode.New(errcode.InvalidSettingsEmbedders, "%s", fmt.Sprintf(format, args...))
}
