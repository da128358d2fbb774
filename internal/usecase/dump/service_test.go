package dump

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchcore/internal/db/memory"
	"github.com/kailas-cloud/searchcore/internal/domain"
	"github.com/kailas-cloud/searchcore/internal/domain/dump"
	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/domain/settings"
	domtask "github.com/kailas-cloud/searchcore/internal/domain/task"
	"github.com/kailas-cloud/searchcore/internal/metrics"
	"github.com/kailas-cloud/searchcore/internal/repository/index"
	keyrepo "github.com/kailas-cloud/searchcore/internal/repository/key"
	taskrepo "github.com/kailas-cloud/searchcore/internal/repository/task"
	"github.com/kailas-cloud/searchcore/internal/storage"
	taskuc "github.com/kailas-cloud/searchcore/internal/usecase/task"
)

var t0 = time.Date(2025, 3, 14, 9, 26, 53, 123_000_000, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type node struct {
	svc     *Service
	tasks   *taskuc.Service
	engine  *index.Engine
	live    *taskrepo.Repo
	keys    *keyrepo.Repo
	staging *taskrepo.Repo
	store   storage.Storage
}

func newNode(t *testing.T) *node {
	t.Helper()
	db := memory.NewStore()
	live := taskrepo.New(db, "live:").WithPageSize(2)
	staging := taskrepo.New(db, "live:staging:").WithPageSize(2)
	keys := keyrepo.New(db, "live:")
	engine := index.NewEngine()
	dir, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	c := &clock{t: t0}
	tasks := taskuc.New(live, engine, settings.AllFeatures(), zap.NewNop()).WithClock(c.now)
	svc := New(
		Stores{Tasks: live, Keys: keys},
		Stores{Tasks: staging, Keys: keyrepo.New(db, "live:staging:")},
		engine, dir, tasks, settings.AllFeatures(), uuid.New(), zap.NewNop(),
	).WithClock(c.now).WithChunkSize(2)
	return &node{svc: svc, tasks: tasks, engine: engine, live: live, keys: keys, staging: staging, store: dir}
}

func (n *node) run(t *testing.T, indexUID string, d domtask.Details, body func() *errcode.Error) domtask.Task {
	t.Helper()
	ctx := context.Background()
	tk, err := n.tasks.Enqueue(ctx, indexUID, d)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := n.tasks.Transition(ctx, tk.UID(), domtask.StatusProcessing, nil); err != nil {
		t.Fatalf("start %d: %v", tk.UID(), err)
	}
	if failure := body(); failure != nil {
		tk, err = n.tasks.Transition(ctx, tk.UID(), domtask.StatusFailed, failure)
	} else {
		tk, err = n.tasks.Succeed(ctx, tk.UID(), nil)
	}
	if err != nil {
		t.Fatalf("finish %d: %v", tk.UID(), err)
	}
	return tk
}

// seed creates one index with three documents, two succeeded tasks, one failed task and
// one API key.
func (n *node) seed(t *testing.T) domkey.Key {
	t.Helper()
	n.run(t, "movies", domtask.IndexCreation{PrimaryKey: "id"}, func() *errcode.Error {
		if err := n.engine.CreateIndex("movies", "id", t0); err != nil {
			t.Fatalf("CreateIndex: %v", err)
		}
		return nil
	})
	n.run(t, "movies", domtask.DocumentAdditionOrUpdate{Method: domtask.MethodReplace, ReceivedDocuments: 3}, func() *errcode.Error {
		docs := []json.RawMessage{
			json.RawMessage(`{"id":1,"title":"Carol"}`),
			json.RawMessage(`{"id":2,"title":"Wonder Woman"}`),
			json.RawMessage(`{"id":3,"title":"Life of Pi"}`),
		}
		if _, err := n.engine.AddDocuments("movies", docs, t0); err != nil {
			t.Fatalf("AddDocuments: %v", err)
		}
		return nil
	})
	n.run(t, "movies", domtask.DocumentDeletion{ProvidedIDs: []string{"42"}}, func() *errcode.Error {
		return errcode.New(errcode.InvalidDocumentID, "document `42` has no valid id")
	})
	k, errs := domkey.New("search", "", []domkey.Action{domkey.ActionSearch}, []string{"*"}, nil, t0)
	if len(errs) > 0 {
		t.Fatalf("key: %v", errs)
	}
	if err := n.keys.Put(context.Background(), k); err != nil {
		t.Fatalf("Put key: %v", err)
	}
	return k
}

func (n *node) history(t *testing.T) []domtask.Task {
	t.Helper()
	var out []domtask.Task
	for tk, err := range n.live.All(context.Background()) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		out = append(out, tk)
	}
	return out
}

func (n *node) archive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := n.svc.Write(context.Background(), &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

// --- Tests ---

func TestDumpUID(t *testing.T) {
	if got := DumpUID(t0); got != "20250314-092653123" {
		t.Errorf("DumpUID() = %q", got)
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newNode(t)
	k := src.seed(t)

	tk, err := src.svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.Status() != domtask.StatusSucceeded || tk.Kind() != domtask.KindDumpCreation {
		t.Fatalf("dump task = %s %s", tk.Kind(), tk.Status())
	}
	dumpUID := tk.Details().(domtask.DumpCreation).DumpUID
	names, err := src.store.List(ctx)
	if err != nil || len(names) != 1 || names[0] != storage.ArchiveName(dumpUID) {
		t.Fatalf("List = %v, %v", names, err)
	}

	dst := newNode(t)
	rc, err := src.store.Open(ctx, names[0])
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	meta, err := dst.svc.Import(ctx, rc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if meta.DumpVersion != dump.CurrentVersion {
		t.Errorf("DumpVersion = %d", meta.DumpVersion)
	}

	info, err := dst.engine.Index("movies")
	if err != nil || info.NumberOfDocs != 3 || info.Metadata.PrimaryKey != "id" {
		t.Fatalf("Index = %+v, %v", info, err)
	}
	doc, err := dst.engine.Document("movies", 1)
	if err != nil || !bytes.Contains(doc, []byte("Wonder Woman")) {
		t.Errorf("Document(1) = %s, %v", doc, err)
	}

	got := dst.history(t)
	if len(got) != 4 {
		t.Fatalf("imported %d tasks, want 4", len(got))
	}
	failed := got[2]
	if failed.Status() != domtask.StatusFailed || failed.Failure().Code() != errcode.InvalidDocumentID {
		t.Errorf("failed task = %s %v", failed.Status(), failed.Failure())
	}
	self := got[3]
	if self.Kind() != domtask.KindDumpCreation || self.Status() != domtask.StatusSucceeded {
		t.Errorf("archived dump task = %s %s", self.Kind(), self.Status())
	}
	if !self.FinishedAt().Equal(meta.CreatedAt) || self.StartedAt().After(self.FinishedAt()) {
		t.Errorf("archived dump task started %v, finished %v, dump created %v",
			self.StartedAt(), self.FinishedAt(), meta.CreatedAt)
	}

	imported, err := dst.keys.Get(ctx, k.UID())
	if err != nil || imported.Value("master") != k.Value("master") {
		t.Errorf("key = %v, %v", imported.UID(), err)
	}

	next, err := dst.live.NextTaskUID(ctx)
	if err != nil || next != 4 {
		t.Errorf("NextTaskUID() = %d, %v, want 4", next, err)
	}
	for tk, err := range dst.staging.All(ctx) {
		t.Errorf("staging not cleared: %v, %v", tk.UID(), err)
	}
}

func TestCreate_AlreadyProcessing(t *testing.T) {
	n := newNode(t)
	n.svc.busy.Store(true)
	if _, err := n.svc.Create(context.Background()); !errors.Is(err, domain.ErrDumpAlreadyProcessing) {
		t.Errorf("err = %v", err)
	}
	if _, err := n.svc.Import(context.Background(), bytes.NewReader(nil)); !errors.Is(err, domain.ErrDumpAlreadyProcessing) {
		t.Errorf("err = %v", err)
	}
	if _, err := n.svc.Write(context.Background(), io.Discard); !errors.Is(err, domain.ErrDumpAlreadyProcessing) {
		t.Errorf("err = %v", err)
	}
}

type failingStorage struct{ storage.Storage }

func (failingStorage) Create(context.Context, string) (storage.Writer, error) {
	return nil, errors.New("disk on fire")
}

func TestCreate_StorageFailureFailsTask(t *testing.T) {
	n := newNode(t)
	n.svc.store = failingStorage{n.store}
	before := testutil.ToFloat64(metrics.DumpFailuresTotal.WithLabelValues("create"))

	tk, err := n.svc.Create(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if tk.Status() != domtask.StatusFailed || tk.Failure().Code() != errcode.DumpProcessFailed {
		t.Errorf("task = %s %v", tk.Status(), tk.Failure())
	}
	if after := testutil.ToFloat64(metrics.DumpFailuresTotal.WithLabelValues("create")); after != before+1 {
		t.Errorf("failures counter moved by %v", after-before)
	}
}

// mutatingWriter runs mutate once, on the first write into the archive.
type mutatingWriter struct {
	bytes.Buffer
	mutate func()
	done   bool
}

func (w *mutatingWriter) Write(p []byte) (int, error) {
	if !w.done {
		w.done = true
		w.mutate()
	}
	return w.Buffer.Write(p)
}

type collected struct {
	tasks []domtask.Task
	docs  int
}

func (c *collected) Index(dump.IndexMetadata, settings.Settings[settings.Unchecked]) error {
	return nil
}

func (c *collected) Document(string, json.RawMessage) error {
	c.docs++
	return nil
}

func (c *collected) DocIDs(string, *roaring.Bitmap) error { return nil }

func (c *collected) Task(t domtask.Task) error {
	c.tasks = append(c.tasks, t)
	return nil
}

func (c *collected) Batch(domtask.Batch) error { return nil }

func (c *collected) Key(domkey.Key) error { return nil }

func TestWrite_HistoryIsPointInTime(t *testing.T) {
	ctx := context.Background()
	n := newNode(t)
	n.seed(t)
	pending, err := n.tasks.Enqueue(ctx, "movies", domtask.IndexDeletion{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := &mutatingWriter{mutate: func() {
		if _, _, err := n.tasks.Cancel(ctx, domtask.Query{UIDs: []uint32{pending.UID()}}); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if _, err := n.tasks.Enqueue(ctx, "movies", domtask.IndexDeletion{}); err != nil {
			t.Fatalf("late Enqueue: %v", err)
		}
	}}
	if _, err := n.svc.Write(ctx, w); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !w.done {
		t.Fatal("archive was never written")
	}

	dr, err := dump.Open(bytes.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var c collected
	if err := dr.Walk(&c); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(c.tasks) != 4 {
		t.Fatalf("archived %d tasks, want 4", len(c.tasks))
	}
	archived := c.tasks[3]
	if archived.UID() != pending.UID() || archived.Status() != domtask.StatusEnqueued {
		t.Errorf("archived task %d = %s, want enqueued", archived.UID(), archived.Status())
	}
	if by, ok := archived.CanceledBy(); ok {
		t.Errorf("archived task canceled by %d", by)
	}
	if c.docs != 3 {
		t.Errorf("archived %d documents, want 3", c.docs)
	}

	got := n.history(t)
	if len(got) != 6 {
		t.Fatalf("live history has %d tasks, want 6", len(got))
	}
	if got[3].Status() != domtask.StatusCanceled {
		t.Errorf("live task %d = %s, want canceled", got[3].UID(), got[3].Status())
	}
	for tk, err := range n.staging.All(ctx) {
		t.Errorf("staging not cleared: %v, %v", tk.UID(), err)
	}
}

// untouched checks that dst still holds exactly its own state.
func untouched(t *testing.T, dst *node) {
	t.Helper()
	if !dst.engine.Exists("books") || dst.engine.Exists("movies") {
		t.Errorf("indexes changed: %+v", dst.engine.List())
	}
	if got := dst.history(t); len(got) != 1 || got[0].IndexUID() != "books" {
		t.Errorf("history changed: %d tasks", len(got))
	}
	for tk, err := range dst.staging.All(context.Background()) {
		t.Errorf("staging not cleared: %v, %v", tk.UID(), err)
	}
}

func booksNode(t *testing.T) *node {
	t.Helper()
	dst := newNode(t)
	dst.run(t, "books", domtask.IndexCreation{}, func() *errcode.Error {
		if err := dst.engine.CreateIndex("books", "", t0); err != nil {
			t.Fatalf("CreateIndex: %v", err)
		}
		return nil
	})
	return dst
}

func TestImport_FutureVersionLeavesStateUntouched(t *testing.T) {
	dst := booksNode(t)
	future := futureArchive(t, dump.CurrentVersion+1)

	_, err := dst.svc.Import(context.Background(), bytes.NewReader(future))
	if !errors.Is(err, dump.ErrUnsupportedVersion) {
		t.Fatalf("err = %v", err)
	}
	if code := errcode.Classify(err); code != errcode.DumpProcessFailed {
		t.Errorf("code = %s", code)
	}
	untouched(t, dst)
}

func TestImport_TruncatedArchiveLeavesStateUntouched(t *testing.T) {
	src := newNode(t)
	src.seed(t)
	archive := src.archive(t)
	dst := booksNode(t)
	before := testutil.ToFloat64(metrics.DumpFailuresTotal.WithLabelValues("import"))

	_, err := dst.svc.Import(context.Background(), bytes.NewReader(archive[:len(archive)/2]))
	if err == nil {
		t.Fatal("truncated archive imported")
	}
	if code := errcode.Classify(err); code != errcode.DumpProcessFailed {
		t.Errorf("code = %s", code)
	}
	untouched(t, dst)
	if after := testutil.ToFloat64(metrics.DumpFailuresTotal.WithLabelValues("import")); after != before+1 {
		t.Errorf("failures counter moved by %v", after-before)
	}
}

func TestImport_InvalidSettingsLeavesStateUntouched(t *testing.T) {
	dst := booksNode(t)
	var buf bytes.Buffer
	w, err := dump.NewWriter(&buf, dump.Metadata{CreatedAt: t0})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	bad := settings.Settings[settings.Unchecked]{RankingRules: settings.Set([]string{"INVALID_RULE"})}
	noDocs := func(func(json.RawMessage, error) bool) {}
	if err := w.WriteIndex(dump.IndexMetadata{UID: "movies", CreatedAt: t0, UpdatedAt: t0}, bad, noDocs, nil); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = dst.svc.Import(context.Background(), &buf)
	var ie *dump.ImportError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v", err)
	}
	if errcode.Classify(err) != errcode.DumpProcessFailed {
		t.Errorf("code = %s", errcode.Classify(err))
	}
	untouched(t, dst)

	// The restore slot is released after a failed import.
	if _, err := dst.svc.Import(context.Background(), bytes.NewReader(newNode(t).archive(t))); err != nil {
		t.Errorf("import after failure: %v", err)
	}
}

// rejectingEngine stages restores normally but refuses to commit them.
type rejectingEngine struct{ Engine }

func (e rejectingEngine) BeginRestore(ctx context.Context) (dump.IndexStager, error) {
	st, err := e.Engine.BeginRestore(ctx)
	if err != nil {
		return nil, err
	}
	return rejectingStager{st}, nil
}

type rejectingStager struct{ dump.IndexStager }

func (rejectingStager) Commit(context.Context) error { return errors.New("engine refused restore") }

func TestImport_CommitFailureLeavesHistoryUntouched(t *testing.T) {
	src := newNode(t)
	src.seed(t)
	archive := src.archive(t)
	dst := booksNode(t)
	dst.svc.engine = rejectingEngine{dst.engine}

	if _, err := dst.svc.Import(context.Background(), bytes.NewReader(archive)); err == nil {
		t.Fatal("import with a refused commit succeeded")
	}
	untouched(t, dst)

	// The aborted restore releases the engine.
	dst.svc.engine = dst.engine
	if _, err := dst.svc.Import(context.Background(), bytes.NewReader(archive)); err != nil {
		t.Errorf("import after refused commit: %v", err)
	}
}

func TestImportFrom_NotFound(t *testing.T) {
	n := newNode(t)
	_, err := n.svc.ImportFrom(context.Background(), "missing.dump")
	if errcode.Classify(err) != errcode.DumpNotFound {
		t.Errorf("err = %v", err)
	}
}

// futureArchive holds only a metadata entry declaring version.
func futureArchive(t *testing.T, version int) []byte {
	t.Helper()
	payload := fmt.Sprintf(`{"dumpVersion":%d,"producerVersion":"v9.0.0","createdAt":"2030-01-01T00:00:00Z"}`, version)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "metadata.json", Mode: 0o644, Size: int64(len(payload))}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if _, err := io.WriteString(tw, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}
