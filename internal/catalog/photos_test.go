package catalog

import (
	"context"
	"os"
	"testing"

	"photoframe-sync/internal/domain"
)

func newTestCatalog(t *testing.T) *SQLite {
	t.Helper()
	cat := Open(":memory:")
	if err := cat.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func seedPhoto(t *testing.T, cat *SQLite, id string, creationTime int64) {
	t.Helper()
	ctx := context.Background()
	if err := cat.UpsertPhotos(ctx, []domain.PhotoMeta{{
		ID: id, Filename: id + ".jpg", ContainerKey: "album", CreationTime: creationTime,
	}}, "testprovider"); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
	if err := cat.AttachBlob(ctx, id, []byte("fake-jpeg-bytes"), "image/jpeg", nil, nil); err != nil {
		t.Fatalf("attach blob %s: %v", id, err)
	}
}

// TestSequentialOrderingCyclesLexicographicallyByID is spec §8 scenario 1:
// sequential sort over {photo_c, photo_a, photo_b} (all cached, none viewed)
// emits photo_a, photo_b, photo_c, photo_a.
func TestSequentialOrderingCyclesLexicographicallyByID(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	seedPhoto(t, cat, "photo_c", 1709251200000) // 2024-03-01
	seedPhoto(t, cat, "photo_a", 1704067200000) // 2024-01-01
	seedPhoto(t, cat, "photo_b", 1706745600000) // 2024-02-01

	want := []string{"photo_a", "photo_b", "photo_c", "photo_a"}
	for i, wantID := range want {
		p, err := cat.NextDisplayCandidate(ctx, domain.SortSequential)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if p == nil {
			t.Fatalf("call %d: got no candidate, want %s", i, wantID)
		}
		if p.ID != wantID {
			t.Fatalf("call %d: got %s, want %s", i, p.ID, wantID)
		}
		cat.MarkViewed(ctx, p.ID, int64(i+1))
	}
}

// TestNewestFirstOrdersByDescendingCreationTime is spec §8 scenario 2:
// sort_mode=newest over {old_photo 2020, new_photo 2024-12, mid_photo 2022-06}.
// Without view-marking every call returns new_photo (nothing leaves the
// unviewed class); marking each returned photo viewed in turn yields
// new_photo, mid_photo, old_photo.
func TestNewestFirstOrdersByDescendingCreationTime(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	seedPhoto(t, cat, "old_photo", 1577836800000) // 2020-01-01
	seedPhoto(t, cat, "new_photo", 1733011200000) // 2024-12-01
	seedPhoto(t, cat, "mid_photo", 1654041600000) // 2022-06-01

	// Three consecutive reads without marking viewed: newest keeps winning
	// since nothing has moved out of the unviewed class.
	for i := 0; i < 3; i++ {
		p, err := cat.NextDisplayCandidate(ctx, domain.SortNewest)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if p == nil || p.ID != "new_photo" {
			t.Fatalf("call %d: got %v, want new_photo", i, p)
		}
	}

	// Mark new_photo viewed so the next call reveals the rest of the order.
	cat.MarkViewed(ctx, "new_photo", 1)
	p, err := cat.NextDisplayCandidate(ctx, domain.SortNewest)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != "mid_photo" {
		t.Fatalf("after marking new_photo viewed: got %v, want mid_photo", p)
	}

	cat.MarkViewed(ctx, "mid_photo", 2)
	p, err = cat.NextDisplayCandidate(ctx, domain.SortNewest)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != "old_photo" {
		t.Fatalf("after marking mid_photo viewed: got %v, want old_photo", p)
	}
}

// TestUnviewedPrecedesViewedRegardlessOfMode checks the rotation-priority
// rule that holds in every sort mode (spec §4.1.1): once every photo has
// been viewed at least once, a never-viewed newcomer still jumps the queue.
func TestUnviewedPrecedesViewedRegardlessOfMode(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	seedPhoto(t, cat, "a", 1)
	seedPhoto(t, cat, "b", 2)
	cat.MarkViewed(ctx, "a", 100)
	cat.MarkViewed(ctx, "b", 200)

	seedPhoto(t, cat, "c", 3) // freshly cached, never viewed

	p, err := cat.NextDisplayCandidate(ctx, domain.SortSequential)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != "c" {
		t.Fatalf("got %v, want unviewed newcomer c ahead of viewed a/b", p)
	}
}

// TestEvictionUnderPressureTrimsToBudget is spec §8 scenario 5: 10 cached
// photos at 200KB each (2MB total) against a 1MB budget trims down to 5
// remaining via repeated ListEvictionCandidates + ClearCache passes, oldest
// last_viewed_at first.
func TestEvictionUnderPressureTrimsToBudget(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)

	const photoSize = 200 * 1024
	ids := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
	for i, id := range ids {
		if err := cat.UpsertPhotos(ctx, []domain.PhotoMeta{{ID: id, Filename: id, ContainerKey: "a", CreationTime: int64(i)}}, "p"); err != nil {
			t.Fatal(err)
		}
		if err := cat.AttachBlob(ctx, id, make([]byte, photoSize), "image/jpeg", nil, nil); err != nil {
			t.Fatal(err)
		}
		// Stagger last_viewed_at so eviction order is deterministic: p0 is
		// viewed earliest (most disposable), p9 latest.
		cat.MarkViewed(ctx, id, int64(i+1))
	}

	total, err := cat.CacheBytesTotal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != int64(len(ids))*photoSize {
		t.Fatalf("seed total = %d, want %d", total, int64(len(ids))*photoSize)
	}

	const maxBytes = 1024 * 1024
	for {
		total, err = cat.CacheBytesTotal(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if total <= maxBytes {
			break
		}
		candidates, err := cat.ListEvictionCandidates(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) == 0 {
			t.Fatal("ran out of eviction candidates before reaching budget")
		}
		for _, c := range candidates {
			if err := cat.ClearCache(ctx, c.ID); err != nil {
				t.Fatal(err)
			}
			total, err = cat.CacheBytesTotal(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if total <= maxBytes {
				break
			}
		}
	}

	cachedCount, err := cat.CachedCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cachedCount != 5 {
		t.Fatalf("cached count = %d, want 5", cachedCount)
	}
	for _, id := range []string{"p0", "p1", "p2", "p3", "p4"} {
		candidates, err := cat.ListEvictionCandidates(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range candidates {
			if c.ID == id {
				t.Fatalf("expected %s to have been evicted (oldest-viewed-first), still present", id)
			}
		}
	}
}

// TestAttachBlobClearsAnyPriorFileForm checks the two cache forms never
// co-exist (I2/P1): attaching a blob after a file payload clears the file
// columns in the same update.
func TestAttachBlobClearsAnyPriorFileForm(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.UpsertPhotos(ctx, []domain.PhotoMeta{{ID: "x", Filename: "x", ContainerKey: "a", CreationTime: 1}}, "p"); err != nil {
		t.Fatal(err)
	}
	if err := cat.AttachFile(ctx, "x", "/tmp/x.jpg", 1234, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := cat.AttachBlob(ctx, "x", []byte("bytes"), "image/jpeg", nil, nil); err != nil {
		t.Fatal(err)
	}

	_, rc, err := cat.ReadPayload(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	candidates, err := cat.ListEvictionCandidates(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].Form != domain.CacheBlob || candidates[0].Path != "" {
		t.Fatalf("expected a single blob-form candidate with no path, got %+v", candidates)
	}
}

// TestAttachBlobPersistsDimensions checks that the post-transform
// width/height CacheEngine measures end up on the row, and that a later
// attach with nil dimensions (e.g. a degraded-build re-fetch) leaves the
// previously recorded ones alone instead of blanking them.
func TestAttachBlobPersistsDimensions(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.UpsertPhotos(ctx, []domain.PhotoMeta{{ID: "dim", Filename: "dim", ContainerKey: "a", CreationTime: 1}}, "p"); err != nil {
		t.Fatal(err)
	}

	w, h := 800, 600
	if err := cat.AttachBlob(ctx, "dim", []byte("bytes"), "image/jpeg", &w, &h); err != nil {
		t.Fatal(err)
	}
	p, rc, err := cat.ReadPayload(ctx, "dim")
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if p.Width == nil || p.Height == nil || *p.Width != 800 || *p.Height != 600 {
		t.Fatalf("expected width/height 800x600, got %+v", p)
	}

	if err := cat.AttachBlob(ctx, "dim", []byte("bytes2"), "image/jpeg", nil, nil); err != nil {
		t.Fatal(err)
	}
	p, rc, err = cat.ReadPayload(ctx, "dim")
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if p.Width == nil || p.Height == nil || *p.Width != 800 || *p.Height != 600 {
		t.Fatalf("expected width/height to survive a nil-dimension reattach, got %+v", p)
	}
}

// TestUpsertTwiceIsIdempotent covers part of spec §8 law L1: upserting the
// same provider result twice leaves exactly one row (it checks the row
// count, not the field values).
func TestUpsertTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	meta := []domain.PhotoMeta{{ID: "dup", Filename: "dup.jpg", ContainerKey: "a", CreationTime: 42}}

	if err := cat.UpsertPhotos(ctx, meta, "p"); err != nil {
		t.Fatal(err)
	}
	if err := cat.UpsertPhotos(ctx, meta, "p"); err != nil {
		t.Fatal(err)
	}

	count, err := cat.TotalCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("total count = %d, want 1", count)
	}
}

// TestDeletePhotoRemovesRowAndFilePayload is I4: deleting a photo removes
// its row and, for a file-form payload, unlinks the backing file.
func TestDeletePhotoRemovesRowAndFilePayload(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog(t)
	if err := cat.UpsertPhotos(ctx, []domain.PhotoMeta{{ID: "f", Filename: "f", ContainerKey: "a", CreationTime: 1}}, "p"); err != nil {
		t.Fatal(err)
	}

	tmp := t.TempDir() + "/f.jpg"
	if err := os.WriteFile(tmp, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cat.AttachFile(ctx, "f", tmp, 4, nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := cat.DeletePhoto(ctx, "f"); err != nil {
		t.Fatal(err)
	}

	count, err := cat.TotalCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("total count after delete = %d, want 0", count)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be unlinked after delete, stat err = %v", tmp, err)
	}
}
