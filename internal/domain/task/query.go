package task

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

// Query limits.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Query filters the task history. Empty lists match everything. Tasks are listed by
// descending uid unless Reverse is set.
type Query struct {
	UIDs       []uint32
	BatchUIDs  []uint32
	Statuses   []Status
	Types      []Kind
	IndexUIDs  []string
	CanceledBy []uint32

	BeforeEnqueuedAt, AfterEnqueuedAt time.Time
	BeforeStartedAt, AfterStartedAt   time.Time
	BeforeFinishedAt, AfterFinishedAt time.Time

	From    *uint32
	Limit   int
	Reverse bool
}

// HasFilters reports whether any filter beyond paging is set. Cancelation and deletion
// refuse unfiltered queries.
func (q Query) HasFilters() bool {
	return len(q.UIDs) > 0 || len(q.BatchUIDs) > 0 || len(q.Statuses) > 0 || len(q.Types) > 0 ||
		len(q.IndexUIDs) > 0 || len(q.CanceledBy) > 0 ||
		!q.BeforeEnqueuedAt.IsZero() || !q.AfterEnqueuedAt.IsZero() ||
		!q.BeforeStartedAt.IsZero() || !q.AfterStartedAt.IsZero() ||
		!q.BeforeFinishedAt.IsZero() || !q.AfterFinishedAt.IsZero()
}

// Matches reports whether t passes every filter. Paging is not considered.
func (q Query) Matches(t Task) bool {
	if len(q.UIDs) > 0 && !slices.Contains(q.UIDs, t.UID()) {
		return false
	}
	if len(q.BatchUIDs) > 0 {
		b, ok := t.BatchUID()
		if !ok || !slices.Contains(q.BatchUIDs, b) {
			return false
		}
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, t.Status()) {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, t.Kind()) {
		return false
	}
	if len(q.IndexUIDs) > 0 && !matchesIndex(q.IndexUIDs, t) {
		return false
	}
	if len(q.CanceledBy) > 0 {
		by, ok := t.CanceledBy()
		if !ok || !slices.Contains(q.CanceledBy, by) {
			return false
		}
	}
	return inRange(t.EnqueuedAt(), q.AfterEnqueuedAt, q.BeforeEnqueuedAt) &&
		inRange(t.StartedAt(), q.AfterStartedAt, q.BeforeStartedAt) &&
		inRange(t.FinishedAt(), q.AfterFinishedAt, q.BeforeFinishedAt)
}

// InWindow reports whether uid is at or past the From cursor in listing order.
func (q Query) InWindow(uid uint32) bool {
	if q.From == nil {
		return true
	}
	if q.Reverse {
		return uid >= *q.From
	}
	return uid <= *q.From
}

// matchesIndex also matches index swaps by any of the swapped indexes.
func matchesIndex(uids []string, t Task) bool {
	if slices.Contains(uids, t.IndexUID()) {
		return true
	}
	if s, ok := t.Details().(IndexSwap); ok {
		for _, p := range s.Swaps {
			if slices.Contains(uids, p.Indexes[0]) || slices.Contains(uids, p.Indexes[1]) {
				return true
			}
		}
	}
	return false
}

// inRange treats an unset bound as open; a time not reached yet fails any set bound.
func inRange(v, after, before time.Time) bool {
	if after.IsZero() && before.IsZero() {
		return true
	}
	if v.IsZero() {
		return false
	}
	if !after.IsZero() && !v.After(after) {
		return false
	}
	if !before.IsZero() && !v.Before(before) {
		return false
	}
	return true
}

// ParseQuery reads a query from URL parameters. Lists are comma-separated and `*` means
// no restriction. Dates are RFC 3339 or YYYY-MM-DD.
func ParseQuery(v url.Values) (Query, errcode.Errors) {
	q := Query{Limit: DefaultLimit}
	var errs errcode.Errors

	for _, f := range []struct {
		param string
		dst   *[]uint32
	}{{"uids", &q.UIDs}, {"batchUids", &q.BatchUIDs}, {"canceledBy", &q.CanceledBy}} {
		for i, s := range listParam(v, f.param) {
			n, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				errs = append(errs, errcode.New(errcode.InvalidTaskUIDs,
					"`%s` is not a valid task uid", s).At(i).In(f.param))
				continue
			}
			*f.dst = append(*f.dst, uint32(n))
		}
	}
	for i, s := range listParam(v, "statuses") {
		st, err := ParseStatus(s)
		if err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskStatuses,
				"`%s` is not a valid task status", s).At(i).In("statuses"))
			continue
		}
		q.Statuses = append(q.Statuses, st)
	}
	for i, s := range listParam(v, "types") {
		k, err := ParseKind(s)
		if err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskTypes,
				"`%s` is not a valid task type", s).At(i).In("types"))
			continue
		}
		q.Types = append(q.Types, k)
	}
	for i, s := range listParam(v, "indexUids") {
		if err := ValidateIndexUID(s); err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskIndexUIDs, "%s", err.Message()).At(i).In("indexUids"))
			continue
		}
		q.IndexUIDs = append(q.IndexUIDs, s)
	}

	for _, f := range []struct {
		param string
		after bool
		dst   *time.Time
	}{
		{"beforeEnqueuedAt", false, &q.BeforeEnqueuedAt}, {"afterEnqueuedAt", true, &q.AfterEnqueuedAt},
		{"beforeStartedAt", false, &q.BeforeStartedAt}, {"afterStartedAt", true, &q.AfterStartedAt},
		{"beforeFinishedAt", false, &q.BeforeFinishedAt}, {"afterFinishedAt", true, &q.AfterFinishedAt},
	} {
		s := v.Get(f.param)
		if s == "" {
			continue
		}
		ts, err := parseDate(s, f.after)
		if err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskDates,
				"`%s` is not a valid date. It should be RFC 3339 or YYYY-MM-DD", s).In(f.param))
			continue
		}
		*f.dst = ts
	}

	if s := v.Get("from"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskLimit, "`%s` is not a valid task uid", s).In("from"))
		} else {
			from := uint32(n)
			q.From = &from
		}
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			errs = append(errs, errcode.New(errcode.InvalidTaskLimit, "`%s` is not a positive integer", s).In("limit"))
		} else {
			q.Limit = min(n, MaxLimit)
		}
	}
	if s := v.Get("reverse"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, errcode.New(errcode.InvalidTaskLimit, "`%s` is not a boolean", s).In("reverse"))
		} else {
			q.Reverse = b
		}
	}

	if len(errs) > 0 {
		return Query{}, errs
	}
	return q, nil
}

// listParam splits a comma-separated parameter; `*` or absence yields nil.
func listParam(v url.Values, name string) []string {
	raw := v.Get(name)
	if raw == "" || raw == "*" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseDate accepts RFC 3339 or a bare date. A bare date used as a lower bound means
// the end of that day.
func parseDate(s string, after bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err //nolint:wrapcheck // replaced by a catalogued error at the call site
	}
	if after {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

// Values encodes the filters back into URL parameters, the form kept as the original
// filter of cancelation and deletion tasks.
func (q Query) Values() url.Values {
	v := url.Values{}
	joinUIDs := func(name string, uids []uint32) {
		if len(uids) == 0 {
			return
		}
		parts := make([]string, len(uids))
		for i, u := range uids {
			parts[i] = strconv.FormatUint(uint64(u), 10)
		}
		v.Set(name, strings.Join(parts, ","))
	}
	joinUIDs("uids", q.UIDs)
	joinUIDs("batchUids", q.BatchUIDs)
	joinUIDs("canceledBy", q.CanceledBy)
	if len(q.Statuses) > 0 {
		parts := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			parts[i] = string(s)
		}
		v.Set("statuses", strings.Join(parts, ","))
	}
	if len(q.Types) > 0 {
		parts := make([]string, len(q.Types))
		for i, k := range q.Types {
			parts[i] = string(k)
		}
		v.Set("types", strings.Join(parts, ","))
	}
	if len(q.IndexUIDs) > 0 {
		v.Set("indexUids", strings.Join(q.IndexUIDs, ","))
	}
	for name, ts := range map[string]time.Time{
		"beforeEnqueuedAt": q.BeforeEnqueuedAt, "afterEnqueuedAt": q.AfterEnqueuedAt,
		"beforeStartedAt": q.BeforeStartedAt, "afterStartedAt": q.AfterStartedAt,
		"beforeFinishedAt": q.BeforeFinishedAt, "afterFinishedAt": q.AfterFinishedAt,
	} {
		if !ts.IsZero() {
			v.Set(name, ts.Format(time.RFC3339Nano))
		}
	}
	return v
}
