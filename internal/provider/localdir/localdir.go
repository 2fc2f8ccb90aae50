// Package localdir implements domain.Provider over a local directory tree,
// treating it as a stand-in cloud backend: USB sticks, network shares, or a
// directory synced in by some other tool. Grounded on the teacher's
// filesystem walk (internal/adapter/filesystem/local.go) and rclone's
// FsLocal.List (fs_local.go), adapted to the Provider contract and the
// spec's container/depth semantics (§4.2, B1/B2).
package localdir

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"

	"photoframe-sync/internal/domain"
)

// Provider reads photos from a local directory tree. ContainerKey maps to
// the directory's path relative to the configured root.
type Provider struct {
	name string
	root string
}

// New builds a localdir Provider rooted at root.
func New(name, root string) *Provider {
	return &Provider{name: name, root: filepath.Clean(root)}
}

func (p *Provider) Name() string { return p.name }

// Init verifies the root directory exists and is readable.
func (p *Provider) Init(ctx context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Permanentf("localdir: root %q does not exist", p.root)
		}
		return domain.Transientf("localdir: stat root: %w", err)
	}
	if !info.IsDir() {
		return domain.Permanentf("localdir: root %q is not a directory", p.root)
	}
	return nil
}

// FullScan walks each configured container up to its depth bound. A visited
// set keyed by symlink-resolved directory path, shared across containers,
// walks each real directory at most once, which keeps photo IDs unique and
// breaks cycles (B1, B2, and the cyclic-container-graph invariant in §5).
func (p *Provider) FullScan(ctx context.Context, containers []domain.Container) ([]domain.PhotoMeta, error) {
	seen := map[string]bool{}
	var out []domain.PhotoMeta

	for _, c := range containers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		containerRoot := filepath.Join(p.root, c.ID)
		photos, err := p.scanContainer(ctx, c.ID, containerRoot, c.Depth, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, photos...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// scanContainer walks containerRoot, descending at most depth levels below
// it (depth -1 is unbounded, 0 means "this directory's direct entries
// only"). visited tracks absolute directory paths already walked across the
// whole scan, so a symlinked or bind-mounted cycle cannot recurse forever.
func (p *Provider) scanContainer(ctx context.Context, containerKey, dir string, depth int, visited map[string]bool) ([]domain.PhotoMeta, error) {
	type frame struct {
		path  string
		level int
	}
	stack := []frame{{path: dir, level: 0}}
	var out []domain.PhotoMeta

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		real, err := filepath.EvalSymlinks(cur.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.WithError(err).WithField("path", cur.path).Warn("localdir: skipping unreadable entry")
			continue
		}
		if visited[real] {
			continue
		}
		visited[real] = true

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, domain.Transientf("localdir: read dir %s: %w", cur.path, err)
		}

		for _, e := range entries {
			full := filepath.Join(cur.path, e.Name())
			if e.IsDir() {
				if depth < 0 || cur.level < depth {
					stack = append(stack, frame{path: full, level: cur.level + 1})
				}
				continue
			}
			if !isImageFile(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(p.root, full)
			if err != nil {
				rel = full
			}
			out = append(out, domain.PhotoMeta{
				ID:           rel,
				Filename:     e.Name(),
				ContainerKey: containerKey,
				CreationTime: info.ModTime().UnixMilli(),
			})
		}
	}
	return out, nil
}

// Download opens the photo's underlying file. The photo ID encodes its
// path relative to the provider root (see scanContainer).
func (p *Provider) Download(ctx context.Context, photoID string) (io.ReadCloser, error) {
	full := filepath.Join(p.root, photoID)
	if !strings.HasPrefix(full, p.root) {
		return nil, domain.Permanentf("localdir: photo id %q escapes root", photoID)
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Permanentf("localdir: %q not found: %w", photoID, err)
		}
		return nil, domain.Transientf("localdir: open %q: %w", photoID, err)
	}
	return f, nil
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".heic": true, ".tiff": true,
}

func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if imageExts[ext] {
		return true
	}
	t := mime.TypeByExtension(ext)
	return strings.HasPrefix(t, "image/")
}
