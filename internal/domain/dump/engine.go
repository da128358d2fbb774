package dump

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/searchcore/internal/domain/settings"
)

// IndexSnapshot is a point-in-time view of one index. Documents yields them in ascending
// internal id order; the i-th document carries the i-th id of DocIDs.
type IndexSnapshot struct {
	Metadata  IndexMetadata
	Settings  settings.Settings[settings.Unchecked]
	Documents iter.Seq2[json.RawMessage, error]
	DocIDs    *roaring.Bitmap
}

// IndexStager receives restored indexes in archive order. Nothing is visible to readers
// until Commit; Abort discards everything staged.
type IndexStager interface {
	Index(meta IndexMetadata, s settings.Settings[settings.Checked]) error
	Document(indexUID string, doc json.RawMessage) error
	DocIDs(indexUID string, ids *roaring.Bitmap) error
	Commit(ctx context.Context) error
	Abort()
}
