package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
)

// Details is the kind-specific payload of a task. The set of implementations is closed.
type Details interface {
	Kind() Kind
	validate(features settings.Features) errcode.Errors
}

// DocumentMethod selects how incoming documents combine with stored ones.
type DocumentMethod string

// Document methods.
const (
	MethodReplace DocumentMethod = "replace"
	MethodUpdate  DocumentMethod = "update"
)

// DocumentAdditionOrUpdate adds or updates documents from a payload.
type DocumentAdditionOrUpdate struct {
	PrimaryKey        string         `json:"primaryKey,omitempty"`
	Method            DocumentMethod `json:"method"`
	ReceivedDocuments uint64         `json:"receivedDocuments"`
	IndexedDocuments  *uint64        `json:"indexedDocuments,omitempty"`
}

// DocumentDeletion deletes documents by id or by filter.
type DocumentDeletion struct {
	ProvidedIDs      []string `json:"providedIds,omitempty"`
	OriginalFilter   string   `json:"originalFilter,omitempty"`
	DeletedDocuments *uint64  `json:"deletedDocuments,omitempty"`
}

// DocumentEdition runs an edition function over filtered documents.
type DocumentEdition struct {
	Function        string         `json:"function"`
	Context         map[string]any `json:"context,omitempty"`
	OriginalFilter  string         `json:"originalFilter,omitempty"`
	EditedDocuments *uint64        `json:"editedDocuments,omitempty"`
}

// SettingsUpdate changes index settings.
type SettingsUpdate struct {
	Settings settings.Settings[settings.Unchecked] `json:"settings"`
}

// IndexCreation creates an index.
type IndexCreation struct {
	PrimaryKey string `json:"primaryKey,omitempty"`
}

// IndexUpdate changes the primary key or renames an index.
type IndexUpdate struct {
	PrimaryKey  string `json:"primaryKey,omitempty"`
	NewIndexUID string `json:"newIndexUid,omitempty"`
}

// IndexDeletion deletes an index with its documents.
type IndexDeletion struct {
	DeletedDocuments *uint64 `json:"deletedDocuments,omitempty"`
}

// IndexSwapPair names two indexes whose contents are exchanged.
type IndexSwapPair struct {
	Indexes [2]string `json:"indexes"`
}

// IndexSwap exchanges indexes pairwise in one step.
type IndexSwap struct {
	Swaps []IndexSwapPair `json:"swaps"`
}

// TaskCancelation cancels enqueued or processing tasks.
type TaskCancelation struct {
	OriginalFilter string   `json:"originalFilter"`
	TaskUIDs       []uint32 `json:"taskUids,omitempty"`
	MatchedTasks   uint64   `json:"matchedTasks"`
	CanceledTasks  *uint64  `json:"canceledTasks,omitempty"`
}

// TaskDeletion removes finished tasks from the history.
type TaskDeletion struct {
	OriginalFilter string   `json:"originalFilter"`
	TaskUIDs       []uint32 `json:"taskUids,omitempty"`
	MatchedTasks   uint64   `json:"matchedTasks"`
	DeletedTasks   *uint64  `json:"deletedTasks,omitempty"`
}

// DumpCreation exports the engine state.
type DumpCreation struct {
	DumpUID string `json:"dumpUid,omitempty"`
}

// SnapshotCreation copies the raw database files.
type SnapshotCreation struct{}

// Upgrade migrates the database between engine versions.
type Upgrade struct {
	UpgradeFrom string `json:"upgradeFrom"`
	UpgradeTo   string `json:"upgradeTo"`
}

func (DocumentAdditionOrUpdate) Kind() Kind { return KindDocumentAdditionOrUpdate }
func (DocumentDeletion) Kind() Kind         { return KindDocumentDeletion }
func (DocumentEdition) Kind() Kind          { return KindDocumentEdition }
func (SettingsUpdate) Kind() Kind           { return KindSettingsUpdate }
func (IndexCreation) Kind() Kind            { return KindIndexCreation }
func (IndexUpdate) Kind() Kind              { return KindIndexUpdate }
func (IndexDeletion) Kind() Kind            { return KindIndexDeletion }
func (IndexSwap) Kind() Kind                { return KindIndexSwap }
func (TaskCancelation) Kind() Kind          { return KindTaskCancelation }
func (TaskDeletion) Kind() Kind             { return KindTaskDeletion }
func (DumpCreation) Kind() Kind             { return KindDumpCreation }
func (SnapshotCreation) Kind() Kind         { return KindSnapshotCreation }
func (Upgrade) Kind() Kind                  { return KindUpgrade }

func (d DocumentAdditionOrUpdate) validate(settings.Features) errcode.Errors {
	var errs errcode.Errors
	if d.PrimaryKey != "" && strings.ContainsAny(d.PrimaryKey, " \t\n") {
		errs = append(errs, errcode.New(errcode.InvalidIndexPrimaryKey,
			"primary key `%s` must not contain whitespace", d.PrimaryKey).In("primaryKey"))
	}
	if d.Method != MethodReplace && d.Method != MethodUpdate {
		errs = append(errs, errcode.New(errcode.MalformedPayload,
			"unknown method `%s`, expected `replace` or `update`", d.Method).In("method"))
	}
	return errs
}

func (d DocumentDeletion) validate(settings.Features) errcode.Errors {
	if len(d.ProvidedIDs) == 0 && d.OriginalFilter == "" {
		return errcode.Errors{errcode.New(errcode.MissingPayload, "either document ids or a filter is required")}
	}
	for i, id := range d.ProvidedIDs {
		if id == "" {
			return errcode.Errors{errcode.New(errcode.InvalidDocumentID, "document id must not be empty").
				At(i).In("providedIds")}
		}
	}
	return nil
}

func (d DocumentEdition) validate(settings.Features) errcode.Errors {
	if strings.TrimSpace(d.Function) == "" {
		return errcode.Errors{errcode.New(errcode.MissingPayload, "an edition function is required").In("function")}
	}
	return nil
}

func (d SettingsUpdate) validate(features settings.Features) errcode.Errors {
	_, errs := settings.Validate(d.Settings, features)
	return errs
}

func (IndexCreation) validate(settings.Features) errcode.Errors { return nil }

func (d IndexUpdate) validate(settings.Features) errcode.Errors {
	if d.NewIndexUID == "" {
		return nil
	}
	if err := ValidateIndexUID(d.NewIndexUID); err != nil {
		return errcode.Errors{err.In("newIndexUid")}
	}
	return nil
}

func (IndexDeletion) validate(settings.Features) errcode.Errors { return nil }

func (d IndexSwap) validate(settings.Features) errcode.Errors {
	var errs errcode.Errors
	seen := make(map[string]bool)
	for i, s := range d.Swaps {
		for j, uid := range s.Indexes {
			at := func(e *errcode.Error) *errcode.Error { return e.At(j).In("indexes").At(i).In("swaps") }
			if err := ValidateIndexUID(uid); err != nil {
				errs = append(errs, at(err))
				continue
			}
			if seen[uid] {
				errs = append(errs, at(errcode.New(errcode.InvalidIndexUID,
					"index `%s` appears in more than one swap", uid)))
			}
			seen[uid] = true
		}
	}
	return errs
}

func (d TaskCancelation) validate(settings.Features) errcode.Errors {
	if d.OriginalFilter == "" {
		return errcode.Errors{errcode.New(errcode.MissingTaskFilters,
			"a task cancelation needs at least one filter")}
	}
	return nil
}

func (d TaskDeletion) validate(settings.Features) errcode.Errors {
	if d.OriginalFilter == "" {
		return errcode.Errors{errcode.New(errcode.MissingTaskFilters,
			"a task deletion needs at least one filter")}
	}
	return nil
}

func (DumpCreation) validate(settings.Features) errcode.Errors     { return nil }
func (SnapshotCreation) validate(settings.Features) errcode.Errors { return nil }

func (d Upgrade) validate(settings.Features) errcode.Errors {
	if d.UpgradeFrom == "" || d.UpgradeTo == "" {
		return errcode.Errors{errcode.New(errcode.MalformedPayload, "upgrade needs both versions")}
	}
	return nil
}

// ValidateDetails checks a payload before the task is enqueued.
func ValidateDetails(d Details, features settings.Features) errcode.Errors {
	if d == nil {
		return errcode.Errors{errcode.New(errcode.MissingPayload, "task details are required")}
	}
	return d.validate(features)
}

const maxIndexUIDLen = 400

// ValidateIndexUID checks an index identifier: 1 to 400 ASCII alphanumerics, '-' or '_'.
func ValidateIndexUID(uid string) *errcode.Error {
	if uid == "" || len(uid) > maxIndexUIDLen {
		return errcode.New(errcode.InvalidIndexUID,
			"`%s` is not a valid index uid. It must be 1 to %d characters long", uid, maxIndexUIDLen)
	}
	for _, r := range uid {
		ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return errcode.New(errcode.InvalidIndexUID,
				"`%s` is not a valid index uid. It can only contain alphanumeric characters, hyphens and underscores", uid)
		}
	}
	return nil
}

type detailsEnvelope struct {
	Type    Kind            `json:"type"`
	Details json.RawMessage `json:"details,omitempty"`
}

func decodeAs[T Details](raw json.RawMessage) (Details, error) {
	var d T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", d.Kind(), err)
		}
	}
	return d, nil
}

var newDetails = map[Kind]func(json.RawMessage) (Details, error){
	KindDocumentAdditionOrUpdate: decodeAs[DocumentAdditionOrUpdate],
	KindDocumentDeletion:         decodeAs[DocumentDeletion],
	KindDocumentEdition:          decodeAs[DocumentEdition],
	KindSettingsUpdate:           decodeAs[SettingsUpdate],
	KindIndexCreation:            decodeAs[IndexCreation],
	KindIndexUpdate:              decodeAs[IndexUpdate],
	KindIndexDeletion:            decodeAs[IndexDeletion],
	KindIndexSwap:                decodeAs[IndexSwap],
	KindTaskCancelation:          decodeAs[TaskCancelation],
	KindTaskDeletion:             decodeAs[TaskDeletion],
	KindDumpCreation:             decodeAs[DumpCreation],
	KindSnapshotCreation:         decodeAs[SnapshotCreation],
	KindUpgrade:                  decodeAs[Upgrade],
}

// MarshalDetails encodes d as {"type": kind, "details": {...}}.
func MarshalDetails(d Details) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s details: %w", d.Kind(), err)
	}
	b, err := json.Marshal(detailsEnvelope{Type: d.Kind(), Details: raw})
	if err != nil {
		return nil, fmt.Errorf("encode details envelope: %w", err)
	}
	return b, nil
}

// UnmarshalDetails decodes the tagged form written by MarshalDetails.
func UnmarshalDetails(b []byte) (Details, error) {
	var env detailsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode details envelope: %w", err)
	}
	decode, ok := newDetails[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", env.Type)
	}
	return decode(env.Details)
}
