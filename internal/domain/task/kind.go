package task

import "fmt"

// Kind is the type of operation a task performs. Wire names are stable; new kinds are
// appended without touching existing ones.
type Kind string

// Task kinds.
const (
	KindDocumentAdditionOrUpdate Kind = "documentAdditionOrUpdate"
	KindDocumentDeletion         Kind = "documentDeletion"
	KindDocumentEdition          Kind = "documentEdition"
	KindSettingsUpdate           Kind = "settingsUpdate"
	KindIndexCreation            Kind = "indexCreation"
	KindIndexUpdate              Kind = "indexUpdate"
	KindIndexDeletion            Kind = "indexDeletion"
	KindIndexSwap                Kind = "indexSwap"
	KindTaskCancelation          Kind = "taskCancelation"
	KindTaskDeletion             Kind = "taskDeletion"
	KindDumpCreation             Kind = "dumpCreation"
	KindSnapshotCreation         Kind = "snapshotCreation"
	KindUpgrade                  Kind = "upgradeDatabase"
)

// Kinds lists every kind.
var Kinds = []Kind{
	KindDocumentAdditionOrUpdate, KindDocumentDeletion, KindDocumentEdition, KindSettingsUpdate,
	KindIndexCreation, KindIndexUpdate, KindIndexDeletion, KindIndexSwap,
	KindTaskCancelation, KindTaskDeletion, KindDumpCreation, KindSnapshotCreation, KindUpgrade,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := newDetails[k]
	return ok
}

// ParseKind converts a wire name to a Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if !k.Valid() {
		return "", fmt.Errorf("unknown task type %q", name)
	}
	return k, nil
}

// IndexScoped reports whether tasks of this kind target a single index.
func (k Kind) IndexScoped() bool {
	switch k {
	case KindDocumentAdditionOrUpdate, KindDocumentDeletion, KindDocumentEdition, KindSettingsUpdate,
		KindIndexCreation, KindIndexUpdate, KindIndexDeletion:
		return true
	}
	return false
}
