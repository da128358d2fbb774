package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// record is a loosely decoded JSON object. Numbers stay json.Number so that
// re-encoding is lossless.
type record = map[string]any

// upgrade turns records of one format version into the next one. Each step is a pure
// function; older archives run every step up to CurrentVersion.
type upgrade struct {
	settings func(record) record
	task     func(record) (record, error)
}

var upgrades = map[int]upgrade{
	1: {settings: settingsV1ToV2, task: taskV1ToV2},
	2: {task: taskV2ToV3},
}

func decodeRecord(raw []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("decode record: not an object")
	}
	return rec, nil
}

func encodeRecord(rec record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

// upgradeSettings brings an index settings entry of version from to the current shape.
func upgradeSettings(from int, raw []byte) ([]byte, error) {
	return runUpgrades(from, raw, func(u upgrade, rec record) (record, error) {
		if u.settings == nil {
			return rec, nil
		}
		return u.settings(rec), nil
	})
}

// upgradeTask brings a task record of version from to the current shape.
func upgradeTask(from int, raw []byte) ([]byte, error) {
	return runUpgrades(from, raw, func(u upgrade, rec record) (record, error) {
		if u.task == nil {
			return rec, nil
		}
		return u.task(rec)
	})
}

func runUpgrades(from int, raw []byte, step func(upgrade, record) (record, error)) ([]byte, error) {
	if from >= CurrentVersion {
		return raw, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	for v := from; v < CurrentVersion; v++ {
		if rec, err = step(upgrades[v], rec); err != nil {
			return nil, fmt.Errorf("upgrade from v%d: %w", v, err)
		}
	}
	return encodeRecord(rec)
}

// settingsV1ToV2 rewrites `asc(attr)` ranking rules as `attr:asc`.
func settingsV1ToV2(rec record) record {
	rules, ok := rec["rankingRules"].([]any)
	if !ok {
		return rec
	}
	out := make([]any, len(rules))
	for i, r := range rules {
		s, ok := r.(string)
		if !ok {
			out[i] = r
			continue
		}
		out[i] = legacyRankingRule(s)
	}
	rec["rankingRules"] = out
	return rec
}

func legacyRankingRule(rule string) string {
	for _, dir := range []string{"asc", "desc"} {
		if attr, ok := strings.CutPrefix(rule, dir+"("); ok {
			if attr, ok = strings.CutSuffix(attr, ")"); ok {
				return attr + ":" + dir
			}
		}
	}
	return rule
}

var v1TaskTypes = map[string]struct {
	kind  string
	patch func(details record)
}{
	"documentAddition": {"documentAdditionOrUpdate", func(d record) { d["method"] = "replace" }},
	"documentPartial":  {"documentAdditionOrUpdate", func(d record) { d["method"] = "update" }},
	"clearAll":         {"documentDeletion", func(d record) { d["originalFilter"] = "*" }},
	"settingsUpdate":   {"settingsUpdate", func(d record) { settingsV1ToV2(d) }},
}

var v1Statuses = map[string]string{
	"processed": "succeeded",
}

// taskV1ToV2 renames legacy task types and statuses and reshapes errors from
// {message, errorCode, errorType, errorLink} to {message, code, type}.
func taskV1ToV2(rec record) (record, error) {
	if typ, ok := rec["type"].(string); ok {
		if m, ok := v1TaskTypes[typ]; ok {
			details, _ := rec["details"].(record)
			if details == nil {
				details = record{}
			}
			m.patch(details)
			rec["type"] = m.kind
			rec["details"] = details
		}
	}
	if status, ok := rec["status"].(string); ok {
		if renamed, ok := v1Statuses[status]; ok {
			rec["status"] = renamed
		}
	}
	if e, ok := rec["error"].(record); ok {
		code, ok := e["errorCode"].(string)
		if !ok {
			return nil, fmt.Errorf("task %v: legacy error without errorCode", rec["uid"])
		}
		rec["error"] = record{
			"message": e["message"],
			"code":    code,
			"type":    e["errorType"],
		}
	}
	return rec, nil
}

// taskV2ToV3 nests flattened settings-update details under "settings" and adds the
// batch reference introduced with batches.
func taskV2ToV3(rec record) (record, error) {
	if rec["type"] == "settingsUpdate" {
		details, _ := rec["details"].(record)
		if details == nil {
			details = record{}
		}
		rec["details"] = record{"settings": details}
	}
	if _, ok := rec["batchUid"]; !ok {
		rec["batchUid"] = nil
	}
	return rec, nil
}
