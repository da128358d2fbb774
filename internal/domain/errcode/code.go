// Package errcode is the closed error catalogue shared by tasks, settings and dumps.
//
// Codes are persisted by name inside dumps and task history, so entries are append-only:
// never reorder, rename or delete a line of the catalogue.
package errcode

import (
	"fmt"
	"net/http"
)

// Type is the top-level error category.
type Type string

// Error categories.
const (
	TypeInvalidRequest Type = "invalid_request"
	TypeInternal       Type = "internal"
	TypeAuth           Type = "auth"
	TypeSystem         Type = "system"
)

// Code is a stable, machine-readable error kind. The zero value is not a valid code.
type Code int

// Error codes. Append new codes at the end of the block.
const (
	_ Code = iota

	// Index errors.
	IndexCreationFailed
	IndexAlreadyExists
	IndexNotFound
	InvalidIndexUID
	IndexPrimaryKeyAlreadyExists
	InvalidIndexPrimaryKey

	// Document errors.
	MissingDocumentID
	InvalidDocumentID
	InvalidDocumentFields
	DocumentNotFound
	MaxFieldsLimitExceeded
	MissingPayload
	MalformedPayload
	PayloadTooLarge

	// Settings errors.
	InvalidSettingsRankingRules
	InvalidSettingsDisplayedAttributes
	InvalidSettingsSearchableAttributes
	InvalidSettingsFilterableAttributes
	InvalidSettingsSortableAttributes
	InvalidSettingsStopWords
	InvalidSettingsSynonyms
	InvalidSettingsDistinctAttribute
	InvalidSettingsTypoTolerance
	InvalidSettingsFaceting
	InvalidSettingsPagination
	InvalidSettingsEmbedders
	InvalidSettingsLocalizedAttributes
	InvalidSettingsSeparatorTokens
	InvalidSettingsNonSeparatorTokens
	InvalidSettingsDictionary
	InvalidSettingsProximityPrecision
	InvalidSettingsSearchCutoffMs
	UnsupportedLocale

	// Task errors.
	TaskNotFound
	TaskNotCancelable
	InvalidTaskUIDs
	InvalidTaskStatuses
	InvalidTaskTypes
	InvalidTaskIndexUIDs
	InvalidTaskDates
	InvalidTaskLimit
	MissingTaskFilters
	InvalidTaskTransition
	BatchNotFound

	// Dump errors.
	DumpAlreadyProcessing
	DumpProcessFailed
	DumpNotFound

	// Auth errors.
	MissingAuthorizationHeader
	InvalidAPIKey
	APIKeyNotFound
	InvalidAPIKeyActions
	InvalidAPIKeyIndexes
	InvalidAPIKeyExpiresAt

	// System errors.
	NoSpaceLeftOnDevice
	TooManyOpenFiles
	IOError
	DatabaseSizeLimitReached

	// Internal errors.
	Internal
	InvalidState
	UnretrievableDocument

	endOfCatalogue
)

type entry struct {
	name   string
	typ    Type
	status int
}

var catalogue = [endOfCatalogue]entry{
	IndexCreationFailed:          {"index_creation_failed", TypeInternal, http.StatusInternalServerError},
	IndexAlreadyExists:           {"index_already_exists", TypeInvalidRequest, http.StatusConflict},
	IndexNotFound:                {"index_not_found", TypeInvalidRequest, http.StatusNotFound},
	InvalidIndexUID:              {"invalid_index_uid", TypeInvalidRequest, http.StatusBadRequest},
	IndexPrimaryKeyAlreadyExists: {"index_primary_key_already_exists", TypeInvalidRequest, http.StatusBadRequest},
	InvalidIndexPrimaryKey:       {"invalid_index_primary_key", TypeInvalidRequest, http.StatusBadRequest},

	MissingDocumentID:      {"missing_document_id", TypeInvalidRequest, http.StatusBadRequest},
	InvalidDocumentID:      {"invalid_document_id", TypeInvalidRequest, http.StatusBadRequest},
	InvalidDocumentFields:  {"invalid_document_fields", TypeInvalidRequest, http.StatusBadRequest},
	DocumentNotFound:       {"document_not_found", TypeInvalidRequest, http.StatusNotFound},
	MaxFieldsLimitExceeded: {"max_fields_limit_exceeded", TypeInvalidRequest, http.StatusBadRequest},
	MissingPayload:         {"missing_payload", TypeInvalidRequest, http.StatusBadRequest},
	MalformedPayload:       {"malformed_payload", TypeInvalidRequest, http.StatusBadRequest},
	PayloadTooLarge:        {"payload_too_large", TypeInvalidRequest, http.StatusRequestEntityTooLarge},

	InvalidSettingsRankingRules:         {"invalid_settings_ranking_rules", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsDisplayedAttributes:  {"invalid_settings_displayed_attributes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsSearchableAttributes: {"invalid_settings_searchable_attributes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsFilterableAttributes: {"invalid_settings_filterable_attributes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsSortableAttributes:   {"invalid_settings_sortable_attributes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsStopWords:            {"invalid_settings_stop_words", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsSynonyms:             {"invalid_settings_synonyms", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsDistinctAttribute:    {"invalid_settings_distinct_attribute", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsTypoTolerance:        {"invalid_settings_typo_tolerance", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsFaceting:             {"invalid_settings_faceting", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsPagination:           {"invalid_settings_pagination", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsEmbedders:            {"invalid_settings_embedders", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsLocalizedAttributes:  {"invalid_settings_localized_attributes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsSeparatorTokens:      {"invalid_settings_separator_tokens", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsNonSeparatorTokens:   {"invalid_settings_non_separator_tokens", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsDictionary:           {"invalid_settings_dictionary", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsProximityPrecision:   {"invalid_settings_proximity_precision", TypeInvalidRequest, http.StatusBadRequest},
	InvalidSettingsSearchCutoffMs:       {"invalid_settings_search_cutoff_ms", TypeInvalidRequest, http.StatusBadRequest},
	UnsupportedLocale:                   {"unsupported_locale", TypeInvalidRequest, http.StatusBadRequest},

	TaskNotFound:          {"task_not_found", TypeInvalidRequest, http.StatusNotFound},
	TaskNotCancelable:     {"task_not_cancelable", TypeInvalidRequest, http.StatusConflict},
	InvalidTaskUIDs:       {"invalid_task_uids", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskStatuses:   {"invalid_task_statuses", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskTypes:      {"invalid_task_types", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskIndexUIDs:  {"invalid_task_index_uids", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskDates:      {"invalid_task_dates", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskLimit:      {"invalid_task_limit", TypeInvalidRequest, http.StatusBadRequest},
	MissingTaskFilters:    {"missing_task_filters", TypeInvalidRequest, http.StatusBadRequest},
	InvalidTaskTransition: {"invalid_task_transition", TypeInternal, http.StatusInternalServerError},
	BatchNotFound:         {"batch_not_found", TypeInvalidRequest, http.StatusNotFound},

	DumpAlreadyProcessing: {"dump_already_processing", TypeInvalidRequest, http.StatusConflict},
	DumpProcessFailed:     {"dump_process_failed", TypeInternal, http.StatusInternalServerError},
	DumpNotFound:          {"dump_not_found", TypeInvalidRequest, http.StatusNotFound},

	MissingAuthorizationHeader: {"missing_authorization_header", TypeAuth, http.StatusUnauthorized},
	InvalidAPIKey:              {"invalid_api_key", TypeAuth, http.StatusForbidden},
	APIKeyNotFound:             {"api_key_not_found", TypeInvalidRequest, http.StatusNotFound},
	InvalidAPIKeyActions:       {"invalid_api_key_actions", TypeInvalidRequest, http.StatusBadRequest},
	InvalidAPIKeyIndexes:       {"invalid_api_key_indexes", TypeInvalidRequest, http.StatusBadRequest},
	InvalidAPIKeyExpiresAt:     {"invalid_api_key_expires_at", TypeInvalidRequest, http.StatusBadRequest},

	NoSpaceLeftOnDevice:      {"no_space_left_on_device", TypeSystem, http.StatusInternalServerError},
	TooManyOpenFiles:         {"too_many_open_files", TypeSystem, http.StatusInternalServerError},
	IOError:                  {"io_error", TypeSystem, http.StatusInternalServerError},
	DatabaseSizeLimitReached: {"database_size_limit_reached", TypeSystem, http.StatusInternalServerError},

	Internal:              {"internal", TypeInternal, http.StatusInternalServerError},
	InvalidState:          {"invalid_state", TypeInternal, http.StatusInternalServerError},
	UnretrievableDocument: {"unretrievable_document", TypeInternal, http.StatusInternalServerError},
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(catalogue))
	for c := Code(1); c < endOfCatalogue; c++ {
		m[catalogue[c].name] = c
	}
	return m
}()

// Valid reports whether c is part of the catalogue.
func (c Code) Valid() bool { return c > 0 && c < endOfCatalogue }

// lookup falls back to Internal for codes outside the catalogue.
func (c Code) lookup() entry {
	if !c.Valid() {
		return catalogue[Internal]
	}
	return catalogue[c]
}

// Name returns the machine-readable code, e.g. "index_not_found".
func (c Code) Name() string { return c.lookup().name }

// Type returns the error category.
func (c Code) Type() Type { return c.lookup().typ }

// HTTPStatus returns the HTTP-equivalent status.
func (c Code) HTTPStatus() int { return c.lookup().status }

func (c Code) String() string { return c.Name() }

// MarshalText encodes the code by its stable name.
func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("errcode: invalid code %d", int(c))
	}
	return []byte(c.Name()), nil
}

// UnmarshalText decodes a code from its stable name.
func (c *Code) UnmarshalText(b []byte) error {
	code, ok := ParseCode(string(b))
	if !ok {
		return fmt.Errorf("errcode: unknown code %q", string(b))
	}
	*c = code
	return nil
}

// ParseCode looks a code up by name.
func ParseCode(name string) (Code, bool) {
	c, ok := byName[name]
	return c, ok
}

// All returns every catalogued code in declaration order.
func All() []Code {
	out := make([]Code, 0, int(endOfCatalogue)-1)
	for c := Code(1); c < endOfCatalogue; c++ {
		out = append(out, c)
	}
	return out
}
