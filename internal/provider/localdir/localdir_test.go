package localdir

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photoframe-sync/internal/domain"
)

func writeImage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFullScanDepthZeroScansOnlyNamedContainer(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "album", "a.jpg"))
	writeImage(t, filepath.Join(root, "album", "nested", "b.jpg"))

	p := New("local", root)
	photos, err := p.FullScan(context.Background(), []domain.Container{{ID: "album", Depth: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 {
		t.Fatalf("depth 0: want 1 photo, got %d: %+v", len(photos), photos)
	}
}

func TestFullScanDepthUnboundedReachesDescendants(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "album", "a.jpg"))
	writeImage(t, filepath.Join(root, "album", "nested", "deep", "b.jpg"))

	p := New("local", root)
	photos, err := p.FullScan(context.Background(), []domain.Container{{ID: "album", Depth: -1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 2 {
		t.Fatalf("depth -1: want 2 photos, got %d: %+v", len(photos), photos)
	}
}

func TestFullScanSkipsNonImageFiles(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "album", "a.jpg"))
	writeImage(t, filepath.Join(root, "album", "readme.txt"))

	p := New("local", root)
	photos, err := p.FullScan(context.Background(), []domain.Container{{ID: "album", Depth: -1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 {
		t.Fatalf("want 1 photo, got %d: %+v", len(photos), photos)
	}
}

func TestFullScanBreaksSymlinkCycles(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "album", "a.jpg"))
	if err := os.Symlink(filepath.Join(root, "album"), filepath.Join(root, "album", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	p := New("local", root)
	done := make(chan struct{})
	var photos []domain.PhotoMeta
	var err error
	go func() {
		photos, err = p.FullScan(context.Background(), []domain.Container{{ID: "album", Depth: -1}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("FullScan did not terminate, cycle not broken")
	}
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 {
		t.Fatalf("want 1 photo after cycle dedup, got %d", len(photos))
	}
}

func TestDownloadReturnsFileContents(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "album", "a.jpg"))

	p := New("local", root)
	rc, err := p.Download(context.Background(), filepath.Join("album", "a.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake-jpeg-bytes" {
		t.Fatalf("unexpected contents: %q", data)
	}
}

func TestDownloadMissingFileIsPermanent(t *testing.T) {
	root := t.TempDir()
	p := New("local", root)
	_, err := p.Download(context.Background(), "album/missing.jpg")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.ClassPermanent {
		t.Fatalf("want permanent, got %v", domain.ClassOf(err))
	}
}
