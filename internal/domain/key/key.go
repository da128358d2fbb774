// Package key models API keys: who may perform which actions on which indexes.
package key

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

// Action is a permission an API key grants.
type Action string

// Actions. A `group.*` action grants every action of the group.
const (
	ActionAll             Action = "*"
	ActionSearch          Action = "search"
	ActionDocumentsAll    Action = "documents.*"
	ActionDocumentsAdd    Action = "documents.add"
	ActionDocumentsGet    Action = "documents.get"
	ActionDocumentsDelete Action = "documents.delete"
	ActionIndexesAll      Action = "indexes.*"
	ActionIndexesCreate   Action = "indexes.create"
	ActionIndexesGet      Action = "indexes.get"
	ActionIndexesUpdate   Action = "indexes.update"
	ActionIndexesDelete   Action = "indexes.delete"
	ActionIndexesSwap     Action = "indexes.swap"
	ActionTasksAll        Action = "tasks.*"
	ActionTasksGet        Action = "tasks.get"
	ActionTasksCancel     Action = "tasks.cancel"
	ActionTasksDelete     Action = "tasks.delete"
	ActionSettingsAll     Action = "settings.*"
	ActionSettingsGet     Action = "settings.get"
	ActionSettingsUpdate  Action = "settings.update"
	ActionStatsGet        Action = "stats.get"
	ActionDumpsCreate     Action = "dumps.create"
	ActionSnapshotsCreate Action = "snapshots.create"
	ActionVersion         Action = "version"
	ActionKeysGet         Action = "keys.get"
	ActionKeysCreate      Action = "keys.create"
	ActionKeysUpdate      Action = "keys.update"
	ActionKeysDelete      Action = "keys.delete"
)

var knownActions = []Action{
	ActionAll, ActionSearch,
	ActionDocumentsAll, ActionDocumentsAdd, ActionDocumentsGet, ActionDocumentsDelete,
	ActionIndexesAll, ActionIndexesCreate, ActionIndexesGet, ActionIndexesUpdate, ActionIndexesDelete, ActionIndexesSwap,
	ActionTasksAll, ActionTasksGet, ActionTasksCancel, ActionTasksDelete,
	ActionSettingsAll, ActionSettingsGet, ActionSettingsUpdate,
	ActionStatsGet, ActionDumpsCreate, ActionSnapshotsCreate, ActionVersion,
	ActionKeysGet, ActionKeysCreate, ActionKeysUpdate, ActionKeysDelete,
}

// grants reports whether a granted action covers the requested one.
func (a Action) grants(req Action) bool {
	if a == ActionAll || a == req {
		return true
	}
	prefix, ok := strings.CutSuffix(string(a), "*")
	return ok && strings.HasSuffix(prefix, ".") && strings.HasPrefix(string(req), prefix)
}

// Key is an API key record (immutable value object).
type Key struct {
	uid         uuid.UUID
	name        string
	description string
	actions     []Action
	indexes     []string
	expiresAt   *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// New validates and creates a key with a random uid.
func New(name, description string, actions []Action, indexes []string, expiresAt *time.Time, now time.Time) (Key, errcode.Errors) {
	var errs errcode.Errors
	if len(actions) == 0 {
		errs = append(errs, errcode.New(errcode.InvalidAPIKeyActions, "at least one action is required").In("actions"))
	}
	for i, a := range actions {
		if !slices.Contains(knownActions, a) {
			errs = append(errs, errcode.New(errcode.InvalidAPIKeyActions, "unknown action `%s`", a).At(i).In("actions"))
		}
	}
	if len(indexes) == 0 {
		errs = append(errs, errcode.New(errcode.InvalidAPIKeyIndexes, "at least one index pattern is required").In("indexes"))
	}
	for i, p := range indexes {
		if _, err := path.Match(p, ""); err != nil || p == "" {
			errs = append(errs, errcode.New(errcode.InvalidAPIKeyIndexes, "`%s` is not a valid index pattern", p).At(i).In("indexes"))
		}
	}
	if expiresAt != nil && !expiresAt.After(now) {
		errs = append(errs, errcode.New(errcode.InvalidAPIKeyExpiresAt,
			"`%s` is in the past", expiresAt.Format(time.RFC3339)).In("expiresAt"))
	}
	if len(errs) > 0 {
		return Key{}, errs
	}
	now = now.UTC()
	return Key{
		uid:         uuid.New(),
		name:        name,
		description: description,
		actions:     slices.Clone(actions),
		indexes:     slices.Clone(indexes),
		expiresAt:   expiresAt,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// UID returns the key identifier.
func (k Key) UID() uuid.UUID { return k.uid }

// Name returns the display name.
func (k Key) Name() string { return k.name }

// Description returns the free-form description.
func (k Key) Description() string { return k.description }

// Actions returns the granted actions.
func (k Key) Actions() []Action { return slices.Clone(k.actions) }

// Indexes returns the index patterns the key is restricted to.
func (k Key) Indexes() []string { return slices.Clone(k.indexes) }

// ExpiresAt returns the expiry, nil for keys that never expire.
func (k Key) ExpiresAt() *time.Time { return k.expiresAt }

// CreatedAt returns the creation time.
func (k Key) CreatedAt() time.Time { return k.createdAt }

// UpdatedAt returns the last update time.
func (k Key) UpdatedAt() time.Time { return k.updatedAt }

// Expired reports whether the key is no longer valid at now.
func (k Key) Expired(now time.Time) bool {
	return k.expiresAt != nil && !now.Before(*k.expiresAt)
}

// Authorizes reports whether the key allows action on index at now. An empty index is
// used for engine-wide actions.
func (k Key) Authorizes(action Action, index string, now time.Time) bool {
	if k.Expired(now) {
		return false
	}
	granted := slices.ContainsFunc(k.actions, func(a Action) bool { return a.grants(action) })
	if !granted {
		return false
	}
	if index == "" {
		return true
	}
	return slices.ContainsFunc(k.indexes, func(p string) bool {
		ok, _ := path.Match(p, index)
		return ok
	})
}

// Value derives the secret presented by clients from the key uid and the master key.
func (k Key) Value(masterKey string) string {
	mac := hmac.New(sha256.New, []byte(masterKey))
	mac.Write([]byte(k.uid.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// WithName returns a copy with an updated name and description.
func (k Key) WithName(name, description string, now time.Time) Key {
	next := k
	next.name = name
	next.description = description
	next.updatedAt = now.UTC()
	return next
}

// Record is the persisted and dumped form of a key.
type Record struct {
	UID         uuid.UUID  `json:"uid"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Actions     []Action   `json:"actions"`
	Indexes     []string   `json:"indexes"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Record returns the persisted form.
func (k Key) Record() Record {
	return Record{
		UID:         k.uid,
		Name:        k.name,
		Description: k.description,
		Actions:     slices.Clone(k.actions),
		Indexes:     slices.Clone(k.indexes),
		ExpiresAt:   k.expiresAt,
		CreatedAt:   k.createdAt,
		UpdatedAt:   k.updatedAt,
	}
}

// Reconstruct hydrates a key from storage without re-checking expiry.
func Reconstruct(r Record) (Key, error) {
	if r.UID == uuid.Nil {
		return Key{}, fmt.Errorf("key record has no uid")
	}
	for _, a := range r.Actions {
		if !slices.Contains(knownActions, a) {
			return Key{}, fmt.Errorf("key %s: unknown action %q", r.UID, a)
		}
	}
	return Key{
		uid:         r.UID,
		name:        r.Name,
		description: r.Description,
		actions:     slices.Clone(r.Actions),
		indexes:     slices.Clone(r.Indexes),
		expiresAt:   r.ExpiresAt,
		createdAt:   r.CreatedAt,
		updatedAt:   r.UpdatedAt,
	}, nil
}
