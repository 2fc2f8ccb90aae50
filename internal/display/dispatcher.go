// Package display implements the DisplayDispatcher (spec §4.5): on a
// fixed timer, select the next rotation candidate from the Catalog and
// emit it to the host.
package display

import (
	"context"
	"io"
	"time"

	"github.com/apex/log"

	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/hostproto"
)

// Emitter is the narrow slice of the host protocol the dispatcher needs.
type Emitter interface {
	DisplayPhoto(hostproto.DisplayPhotoPayload) error
	UpdateStatus(message string) error
}

// Config parameterizes the dispatcher (spec §4.5 canonical defaults).
type Config struct {
	UpdateInterval time.Duration // 60s
	FirstEmitDelay time.Duration // ~2s
	SortMode       domain.SortMode
}

// Dispatcher runs the periodic photo-rotation timer.
type Dispatcher struct {
	catalog domain.Catalog
	emitter Emitter
	cfg     Config

	ticking bool
}

func New(catalog domain.Catalog, emitter Emitter, cfg Config) *Dispatcher {
	return &Dispatcher{catalog: catalog, emitter: emitter, cfg: cfg}
}

// Tick selects and emits one photo. Re-entrancy-guarded like the other
// two recurring tasks (spec §5).
func (d *Dispatcher) Tick(ctx context.Context) {
	if d.ticking {
		return
	}
	d.ticking = true
	defer func() { d.ticking = false }()

	photo, err := d.catalog.NextDisplayCandidate(ctx, d.cfg.SortMode)
	if err != nil {
		log.WithError(err).Warn("display: next candidate query failed")
		return
	}
	if photo == nil {
		if err := d.emitter.UpdateStatus("Waiting for photos to cache..."); err != nil {
			log.WithError(err).Warn("display: update_status emit failed")
		}
		return
	}

	d.emit(ctx, photo)
}

func (d *Dispatcher) emit(ctx context.Context, photo *domain.Photo) {
	_, rc, err := d.catalog.ReadPayload(ctx, photo.ID)
	if err != nil {
		// Missing cache payload on the selected "next" photo is a bug, not
		// a user-facing error: log and move on to the next tick (spec §7
		// "Display errors").
		log.WithError(err).WithField("photo_id", photo.ID).Warn("display: read payload failed, skipping")
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.WithError(err).WithField("photo_id", photo.ID).Warn("display: read payload bytes failed, skipping")
		return
	}

	payload := hostproto.DisplayPhotoPayload{
		ID:           photo.ID,
		ImageBase64:  hostproto.EncodeImage(data),
		Filename:     photo.Filename,
		CreationTime: photo.CreationTime,
		LocationName: photo.LocationName,
	}
	if photo.Width != nil {
		payload.Width = *photo.Width
	}
	if photo.Height != nil {
		payload.Height = *photo.Height
	}

	if err := d.emitter.DisplayPhoto(payload); err != nil {
		log.WithError(err).WithField("photo_id", photo.ID).Warn("display: emit failed")
		return
	}

	// Fire-and-forget: marking the view must never block or fail the
	// rotation cycle (spec §4.5, I5's monotonic guard makes this safe even
	// if IMAGE_LOADED later re-marks the same photo).
	go d.catalog.MarkViewed(ctx, photo.ID, nowMs())
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// HandleImageLoaded re-marks the acknowledged photo as viewed. Safe as a
// duplicate call thanks to I5's monotonic guard.
func (d *Dispatcher) HandleImageLoaded(ctx context.Context, photoID string) {
	go d.catalog.MarkViewed(ctx, photoID, nowMs())
}
