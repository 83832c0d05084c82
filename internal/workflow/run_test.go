package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/relearn/internal/apperr"
)

// fakeStorage is an in-memory Storage. Links and downloads are derived
// from the file ID so tests can predict them.
type fakeStorage struct {
	mu sync.Mutex

	candidates []Candidate
	listErr    error

	linkErr     map[string]error
	downloadErr map[string]error

	archiveErr      error
	archiveFailures map[string]string // file ID -> failure reason
	archiveCalls    [][]string

	reviveReport MoveReport
	reviveErr    error
	reviveCalls  int
	reviveLimit  int
}

func (f *fakeStorage) ListCandidates(_ context.Context) ([]Candidate, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.candidates, nil
}

func (f *fakeStorage) PublicLink(_ context.Context, fileID string) (string, error) {
	if err := f.linkErr[fileID]; err != nil {
		return "", err
	}
	return "https://drive.example.com/" + fileID, nil
}

func (f *fakeStorage) Download(_ context.Context, fileID string) ([]byte, error) {
	if err := f.downloadErr[fileID]; err != nil {
		return nil, err
	}
	return []byte("img-" + fileID), nil
}

func (f *fakeStorage) Archive(_ context.Context, fileIDs []string) (MoveReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.archiveCalls = append(f.archiveCalls, fileIDs)
	if f.archiveErr != nil {
		return MoveReport{}, f.archiveErr
	}

	var report MoveReport
	for _, id := range fileIDs {
		if reason, ok := f.archiveFailures[id]; ok {
			report.Failed = append(report.Failed, MoveFailure{ID: id, Reason: reason})
		} else {
			report.Succeeded = append(report.Succeeded, id)
		}
	}
	return report, nil
}

func (f *fakeStorage) ReviveArchived(_ context.Context, limit int) (MoveReport, error) {
	f.reviveCalls++
	f.reviveLimit = limit
	if f.reviveErr != nil {
		return MoveReport{}, f.reviveErr
	}
	return f.reviveReport, nil
}

// fakeNotifier records the published header and links.
type fakeNotifier struct {
	header     string
	links      []string
	calls      int
	publishErr error
	dropLast   int // pretend this many trailing messages failed
}

func (f *fakeNotifier) PublishLinks(_ context.Context, header string, links []string) (int, error) {
	f.calls++
	f.header = header
	f.links = links
	if f.publishErr != nil {
		return 0, f.publishErr
	}
	return len(links) + 1 - f.dropLast, nil
}

// fakeStore tracks pending records in memory.
type fakeStore struct {
	mu sync.Mutex

	pending   map[string]bool // drive file ID -> has a non-archived record
	filterErr error

	recorded  []string
	recordErr map[string]error

	extractions map[string]string // file ID -> saved content
	saveErr     map[string]error

	archivedMarks []string
	markErr       error
}

func newFakeStore(pending ...string) *fakeStore {
	s := &fakeStore{
		pending:     map[string]bool{},
		extractions: map[string]string{},
	}
	for _, id := range pending {
		s.pending[id] = true
	}
	return s
}

func (f *fakeStore) FilterUnprocessed(_ context.Context, ids []string) ([]string, error) {
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var out []string
	for _, id := range ids {
		if !f.pending[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordProcessed(_ context.Context, fileID, _ string, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.recordErr[fileID]; err != nil {
		return uuid.Nil, err
	}
	f.recorded = append(f.recorded, fileID)
	f.pending[fileID] = true
	return uuid.New(), nil
}

func (f *fakeStore) SaveExtraction(_ context.Context, fileID, _ string, content string, _ time.Time) (ExtractionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.saveErr[fileID]; err != nil {
		return ExtractionRecord{}, err
	}
	f.extractions[fileID] = content
	f.pending[fileID] = true
	return ExtractionRecord{ImageID: uuid.New(), PostID: uuid.New()}, nil
}

func (f *fakeStore) MarkArchived(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markErr != nil {
		return f.markErr
	}
	f.archivedMarks = append(f.archivedMarks, fileID)
	return nil
}

// fakeExtractor keys extractions by image payload (the fake storage
// downloads "img-<id>").
type fakeExtractor struct {
	texts map[string]string // payload -> extracted text
	errs  map[string]error  // payload -> failure
	calls int
	mu    sync.Mutex
}

func (f *fakeExtractor) ExtractText(_ context.Context, image []byte, _ string) (Extraction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := f.errs[string(image)]; err != nil {
		return Extraction{}, err
	}
	text, ok := f.texts[string(image)]
	if !ok {
		text = "text from " + string(image)
	}
	return Extraction{Text: text, ExtractedAt: time.Now()}, nil
}

func candidateList(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Name: id + ".jpg", MimeType: "image/jpeg"}
	}
	return out
}

func newRunner(storage *fakeStorage, notifier *fakeNotifier, store *fakeStore, extractor Extractor) *Runner {
	return &Runner{
		Storage:    storage,
		Notifier:   notifier,
		Store:      store,
		Extractor:  extractor,
		ImageCount: 5,
		ChunkDelay: time.Millisecond,
	}
}

func TestRun_RevivesWhenNoCandidates(t *testing.T) {
	storage := &fakeStorage{
		reviveReport: MoveReport{Succeeded: []string{"x1", "x2", "x3", "x4", "x5", "x6", "x7", "x8", "x9", "x10"}},
	}
	notifier := &fakeNotifier{}
	extractor := &fakeExtractor{}

	outcome, err := newRunner(storage, notifier, newFakeStore(), extractor).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindRevived, outcome.Kind)
	assert.Equal(t, StatusSuccess, outcome.Status)
	require.NotNil(t, outcome.Revived)
	assert.Len(t, outcome.Revived.Succeeded, 10)
	assert.Empty(t, outcome.Revived.Failed)
	assert.Equal(t, DefaultReviveLimit, storage.reviveLimit)

	// The revive branch is terminal: no notification, no OCR.
	assert.Zero(t, notifier.calls)
	assert.Zero(t, extractor.calls)
}

func TestRun_RevivesWhenEverythingIsPending(t *testing.T) {
	storage := &fakeStorage{
		candidates:   candidateList("a", "b"),
		reviveReport: MoveReport{Succeeded: []string{"z"}},
	}
	notifier := &fakeNotifier{}

	outcome, err := newRunner(storage, notifier, newFakeStore("a", "b"), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindRevived, outcome.Kind)
	assert.Equal(t, 1, storage.reviveCalls)
	assert.Zero(t, notifier.calls)
}

func TestRun_ReviveFailuresDegradeToPartial(t *testing.T) {
	storage := &fakeStorage{
		reviveReport: MoveReport{
			Succeeded: []string{"x1"},
			Failed:    []MoveFailure{{ID: "x2", Reason: "gone"}},
		},
	}

	outcome, err := newRunner(storage, &fakeNotifier{}, newFakeStore(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindRevived, outcome.Kind)
	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "x2")
}

func TestRun_RelearnsSampledCandidates(t *testing.T) {
	// Folder holds A, B, C unprocessed and D already recorded.
	storage := &fakeStorage{candidates: candidateList("a", "b", "c", "d")}
	notifier := &fakeNotifier{}
	store := newFakeStore("d")

	runner := newRunner(storage, notifier, store, nil)
	runner.ImageCount = 2

	outcome, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindRelearned, outcome.Kind)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.LinksShared)

	// Header plus one message per link.
	assert.Equal(t, 3, outcome.MessagesSent)
	assert.Equal(t, DefaultHeader, notifier.header)
	require.Len(t, notifier.links, 2)

	// Both sampled files were archived and marked, and D was never touched.
	require.NotNil(t, outcome.Evacuated)
	assert.Len(t, outcome.Evacuated.Succeeded, 2)
	assert.Empty(t, outcome.Evacuated.Failed)
	assert.Len(t, store.archivedMarks, 2)
	assert.NotContains(t, store.recorded, "d")
	for _, img := range outcome.Images {
		assert.NotEqual(t, "d", img.FileID)
	}
}

func TestRun_LinkFailureIsIsolated(t *testing.T) {
	storage := &fakeStorage{
		candidates: candidateList("a", "b", "c", "d", "e"),
		linkErr:    map[string]error{"c": errors.New("permission denied")},
	}
	notifier := &fakeNotifier{}
	store := newFakeStore()
	extractor := &fakeExtractor{}

	outcome, err := newRunner(storage, notifier, store, extractor).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	assert.Equal(t, 4, outcome.LinksShared)
	assert.Len(t, notifier.links, 4)
	assert.NotContains(t, notifier.links, "https://drive.example.com/c")

	// The other four were still OCR'd and archived.
	assert.Len(t, store.extractions, 4)
	require.NotNil(t, outcome.Evacuated)
	assert.Len(t, outcome.Evacuated.Succeeded, 4)
	assert.NotContains(t, outcome.Evacuated.Succeeded, "c")

	require.NotEmpty(t, outcome.Errors)
	assert.Contains(t, outcome.Errors[0], "c")
}

func TestRun_AllLinksFailSkipsPublish(t *testing.T) {
	storage := &fakeStorage{
		candidates: candidateList("a", "b"),
		linkErr: map[string]error{
			"a": errors.New("permission denied"),
			"b": errors.New("permission denied"),
		},
	}
	notifier := &fakeNotifier{}
	store := newFakeStore()

	outcome, err := newRunner(storage, notifier, store, nil).Run(context.Background())
	require.NoError(t, err)

	// With no links, a header alone is not worth posting.
	assert.Zero(t, notifier.calls)
	assert.Zero(t, outcome.MessagesSent)
	assert.Zero(t, outcome.LinksShared)

	// Only the two link failures are recorded, no delivery error.
	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Errors, 2)
	for _, msg := range outcome.Errors {
		assert.NotContains(t, msg, "notification error")
	}
}

func TestRun_PublishFailureDoesNotAbort(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a", "b")}
	notifier := &fakeNotifier{publishErr: errors.New("webhook down")}
	store := newFakeStore()

	outcome, err := newRunner(storage, notifier, store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	assert.Zero(t, outcome.MessagesSent)

	// The files were still recorded and archived.
	assert.Len(t, store.recorded, 2)
	assert.Len(t, outcome.Evacuated.Succeeded, 2)
}

func TestRun_PartialPublishDegrades(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a", "b", "c")}
	notifier := &fakeNotifier{dropLast: 1}

	outcome, err := newRunner(storage, notifier, newFakeStore(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	assert.Equal(t, 3, outcome.MessagesSent)
	assert.Len(t, outcome.Evacuated.Succeeded, 3)
}

func TestRun_OcrFailureDropsItemFromArchive(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a", "b", "c")}
	store := newFakeStore()
	extractor := &fakeExtractor{
		errs: map[string]error{"img-b": &apperr.OcrError{Kind: apperr.OcrInvalidImage, Msg: "no text found in the image"}},
	}

	outcome, err := newRunner(storage, &fakeNotifier{}, store, extractor).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)

	// b keeps its record absent and stays in the active folder for the
	// next run.
	assert.NotContains(t, store.extractions, "b")
	assert.Len(t, store.extractions, 2)
	assert.Len(t, outcome.Evacuated.Succeeded, 2)
	assert.NotContains(t, outcome.Evacuated.Succeeded, "b")

	found := false
	for _, msg := range outcome.Errors {
		if msg == (&apperr.OcrError{Kind: apperr.OcrInvalidImage, Msg: "no text found in the image"}).Error() {
			found = true
		}
	}
	assert.True(t, found, "outcome should carry the OCR failure, got %v", outcome.Errors)
}

func TestRun_ExtractedTextAppearsInImages(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a")}
	store := newFakeStore()
	extractor := &fakeExtractor{texts: map[string]string{"img-a": "hello world"}}

	outcome, err := newRunner(storage, &fakeNotifier{}, store, extractor).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, outcome.Status)
	require.Len(t, outcome.Images, 1)
	assert.Equal(t, "hello world", outcome.Images[0].Text)
	assert.Equal(t, "hello world", store.extractions["a"])
}

func TestRun_ListFailureIsFatal(t *testing.T) {
	storage := &fakeStorage{listErr: errors.New("drive unavailable")}
	notifier := &fakeNotifier{}

	outcome, err := newRunner(storage, notifier, newFakeStore(), nil).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, outcome)

	var provErr *apperr.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "list candidates", provErr.Op)

	// Fatal before any side effect.
	assert.Zero(t, notifier.calls)
	assert.Empty(t, storage.archiveCalls)
}

func TestRun_FilterFailureIsFatal(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a")}
	store := newFakeStore()
	store.filterErr = errors.New("db down")

	_, err := newRunner(storage, &fakeNotifier{}, store, nil).Run(context.Background())
	require.Error(t, err)

	var persErr *apperr.PersistenceError
	require.ErrorAs(t, err, &persErr)
}

func TestRun_ArchiveFailuresReportedPerFile(t *testing.T) {
	storage := &fakeStorage{
		candidates:      candidateList("a", "b"),
		archiveFailures: map[string]string{"b": "file locked"},
	}
	store := newFakeStore()

	outcome, err := newRunner(storage, &fakeNotifier{}, store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	assert.Equal(t, []string{"a"}, outcome.Evacuated.Succeeded)
	require.Len(t, outcome.Evacuated.Failed, 1)
	assert.Equal(t, "b", outcome.Evacuated.Failed[0].ID)

	// Only the moved file gets its flag flipped.
	assert.Equal(t, []string{"a"}, store.archivedMarks)
}

func TestRun_MarkArchivedFailureDegrades(t *testing.T) {
	storage := &fakeStorage{candidates: candidateList("a")}
	store := newFakeStore()
	store.markErr = fmt.Errorf("constraint violation")

	outcome, err := newRunner(storage, &fakeNotifier{}, store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, outcome.Status)
	// The move itself still succeeded; the flag is advisory bookkeeping.
	assert.Equal(t, []string{"a"}, outcome.Evacuated.Succeeded)
}
