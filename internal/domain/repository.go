package domain

import (
	"context"
	"io"
)

// PhotoMeta is the uniform shape every Provider yields for a discovered or
// delta-changed photo (spec §4.2 "Uniform photo metadata shape").
type PhotoMeta struct {
	ID           string
	Filename     string
	ContainerKey string
	CreationTime int64

	Width     *int
	Height    *int
	Latitude  *float64
	Longitude *float64
}

// DeltaResult is the outcome of one Provider.Delta call (spec §4.2).
type DeltaResult struct {
	AddedOrModified []PhotoMeta
	DeletedIDs      []string
	NextToken       string
}

// Provider is the uniform adapter over one cloud photo backend (spec §4.2).
// A deployment uses exactly one Provider at a time.
type Provider interface {
	// Name is a human label for logs.
	Name() string

	// Init acquires credentials and verifies reachability with one
	// lightweight call that fails fast on permanent-permission errors.
	// Errors should be wrapped with domain.Permanent/domain.Transient when
	// the provider can tell which it is.
	Init(ctx context.Context) error

	// FullScan enumerates every image entry under each configured container,
	// recursively bounded by its Depth, deduplicated by photo ID, cycle-safe.
	FullScan(ctx context.Context, containers []Container) ([]PhotoMeta, error)

	// Download returns a lazy byte stream of the original image. The
	// context governs the per-attempt timeout (spec §5: 30s per attempt).
	Download(ctx context.Context, photoID string) (io.ReadCloser, error)
}

// DeltaProvider is the optional capability a Provider may additionally
// implement when its backend supports a resumable change cursor.
type DeltaProvider interface {
	// DeltaStartToken produces a token corresponding to "now".
	DeltaStartToken(ctx context.Context) (string, error)

	// Delta returns everything that changed since token.
	Delta(ctx context.Context, token string) (DeltaResult, error)
}

// FetchCandidate and EvictionCandidate are the minimal projections the
// Catalog hands back for CacheEngine's two batch queries.
type FetchCandidate struct {
	ID          string
	ProviderKey string
}

type EvictionCandidate struct {
	ID        string
	Form      CacheForm
	Path      string
	SizeBytes int64
}

// Catalog is the durable, crash-safe store and query layer for photos and
// settings (spec §4.1). It serializes its own mutation; callers never need
// an external lock.
type Catalog interface {
	Init(ctx context.Context) error
	Close() error

	UpsertPhotos(ctx context.Context, photos []PhotoMeta, providerKey string) error
	DeletePhoto(ctx context.Context, photoID string) error

	NextDisplayCandidate(ctx context.Context, mode SortMode) (*Photo, error)
	MarkViewed(ctx context.Context, photoID string, nowMs int64)

	ListFetchCandidates(ctx context.Context, limit int) ([]FetchCandidate, error)
	ListEvictionCandidates(ctx context.Context, limit int) ([]EvictionCandidate, error)

	AttachBlob(ctx context.Context, photoID string, data []byte, mimeType string, width, height *int) error
	AttachFile(ctx context.Context, photoID string, path string, size int64, width, height *int) error
	ClearCache(ctx context.Context, photoID string) error

	ReadPayload(ctx context.Context, photoID string) (*Photo, io.ReadCloser, error)

	CacheBytesTotal(ctx context.Context) (int64, error)
	CachedCount(ctx context.Context) (int, error)
	TotalCount(ctx context.Context) (int, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}
