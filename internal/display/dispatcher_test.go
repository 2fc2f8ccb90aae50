package display

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/hostproto"
)

type fakeCatalog struct {
	mu          sync.Mutex
	next        *domain.Photo
	payload     string
	markedViews []string
	markWG      *sync.WaitGroup
}

func (f *fakeCatalog) Init(ctx context.Context) error { return nil }
func (f *fakeCatalog) Close() error                    { return nil }
func (f *fakeCatalog) UpsertPhotos(ctx context.Context, photos []domain.PhotoMeta, providerKey string) error {
	return nil
}
func (f *fakeCatalog) DeletePhoto(ctx context.Context, photoID string) error { return nil }

func (f *fakeCatalog) NextDisplayCandidate(ctx context.Context, mode domain.SortMode) (*domain.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, nil
}
func (f *fakeCatalog) MarkViewed(ctx context.Context, photoID string, nowMs int64) {
	f.mu.Lock()
	f.markedViews = append(f.markedViews, photoID)
	f.mu.Unlock()
	if f.markWG != nil {
		f.markWG.Done()
	}
}

func (f *fakeCatalog) ListFetchCandidates(ctx context.Context, limit int) ([]domain.FetchCandidate, error) {
	return nil, nil
}
func (f *fakeCatalog) ListEvictionCandidates(ctx context.Context, limit int) ([]domain.EvictionCandidate, error) {
	return nil, nil
}
func (f *fakeCatalog) AttachBlob(ctx context.Context, photoID string, data []byte, mimeType string, width, height *int) error {
	return nil
}
func (f *fakeCatalog) AttachFile(ctx context.Context, photoID string, path string, size int64, width, height *int) error {
	return nil
}
func (f *fakeCatalog) ClearCache(ctx context.Context, photoID string) error { return nil }

func (f *fakeCatalog) ReadPayload(ctx context.Context, photoID string) (*domain.Photo, io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == nil {
		return nil, nil, errors.New("no payload")
	}
	return f.next, io.NopCloser(strings.NewReader(f.payload)), nil
}

func (f *fakeCatalog) CacheBytesTotal(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeCatalog) CachedCount(ctx context.Context) (int, error)       { return 0, nil }
func (f *fakeCatalog) TotalCount(ctx context.Context) (int, error)        { return 0, nil }
func (f *fakeCatalog) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeCatalog) PutSetting(ctx context.Context, key, value string) error { return nil }

type fakeEmitter struct {
	mu       sync.Mutex
	displays []hostproto.DisplayPhotoPayload
	statuses []string
	failNext bool
}

func (e *fakeEmitter) DisplayPhoto(p hostproto.DisplayPhotoPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext {
		e.failNext = false
		return errors.New("emit failed")
	}
	e.displays = append(e.displays, p)
	return nil
}
func (e *fakeEmitter) UpdateStatus(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, message)
	return nil
}

func TestTickEmitsWaitingStatusWhenNoCandidate(t *testing.T) {
	cat := &fakeCatalog{}
	em := &fakeEmitter{}
	d := New(cat, em, Config{SortMode: domain.SortSequential})
	d.Tick(context.Background())

	if len(em.statuses) != 1 || em.statuses[0] != "Waiting for photos to cache..." {
		t.Fatalf("unexpected statuses: %v", em.statuses)
	}
	if len(em.displays) != 0 {
		t.Fatalf("expected no display emitted, got %v", em.displays)
	}
}

func TestTickEmitsPhotoAndMarksViewed(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	cat := &fakeCatalog{
		next:    &domain.Photo{ID: "p1", Filename: "p1.jpg"},
		payload: "bytes",
		markWG:  &wg,
	}
	em := &fakeEmitter{}
	d := New(cat, em, Config{SortMode: domain.SortSequential})
	d.Tick(context.Background())

	if len(em.displays) != 1 || em.displays[0].ID != "p1" {
		t.Fatalf("unexpected displays: %v", em.displays)
	}

	waitOrTimeout(t, &wg)
	cat.mu.Lock()
	marked := append([]string{}, cat.markedViews...)
	cat.mu.Unlock()
	if len(marked) != 1 || marked[0] != "p1" {
		t.Fatalf("expected p1 marked viewed, got %v", marked)
	}
}

func TestTickReentrancyGuardSkipsOverlap(t *testing.T) {
	cat := &fakeCatalog{next: &domain.Photo{ID: "p1"}, payload: "x"}
	em := &fakeEmitter{}
	d := New(cat, em, Config{SortMode: domain.SortSequential})
	d.ticking = true
	d.Tick(context.Background())
	d.ticking = false
	if len(em.displays) != 0 {
		t.Fatalf("expected no emission during guarded overlap, got %v", em.displays)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fire-and-forget mark_viewed")
	}
}
