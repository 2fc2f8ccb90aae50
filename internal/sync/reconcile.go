package sync

import (
	"context"

	"photoframe-sync/internal/domain"
)

// Sync runs one reconciliation pass against the Provider: delta when a
// persisted token exists and the Provider supports it, otherwise a full
// scan (spec §4.4 "Synchronization"). On success it resets the retry
// scheduler, matching "attempt counter is reset... on every successful
// sync".
func (c *Controller) Sync(ctx context.Context) error {
	if err := c.sync(ctx); err != nil {
		return err
	}
	c.sched.Reset()
	return nil
}

func (c *Controller) sync(ctx context.Context) error {
	deltaProvider, supportsDelta := c.provider.(domain.DeltaProvider)

	if supportsDelta {
		token, ok, err := c.catalog.GetSetting(ctx, domain.DeltaTokenKey(c.cfg.ProviderKey))
		if err != nil {
			return err
		}
		if ok && token != "" {
			return c.syncDelta(ctx, deltaProvider, token)
		}
	}

	if err := c.syncFullScan(ctx); err != nil {
		return err
	}

	if supportsDelta {
		token, err := deltaProvider.DeltaStartToken(ctx)
		if err != nil {
			return err
		}
		return c.catalog.PutSetting(ctx, domain.DeltaTokenKey(c.cfg.ProviderKey), token)
	}
	return nil
}

func (c *Controller) syncFullScan(ctx context.Context) error {
	photos, err := c.provider.FullScan(ctx, c.cfg.ContainerList)
	if err != nil {
		return err
	}
	return c.catalog.UpsertPhotos(ctx, photos, c.cfg.ProviderKey)
}

func (c *Controller) syncDelta(ctx context.Context, p domain.DeltaProvider, token string) error {
	result, err := p.Delta(ctx, token)
	if err != nil {
		return err
	}

	if len(result.AddedOrModified) > 0 {
		if err := c.catalog.UpsertPhotos(ctx, result.AddedOrModified, c.cfg.ProviderKey); err != nil {
			return err
		}
	}
	for _, id := range result.DeletedIDs {
		if err := c.catalog.DeletePhoto(ctx, id); err != nil {
			return err
		}
	}
	if result.NextToken != "" {
		return c.catalog.PutSetting(ctx, domain.DeltaTokenKey(c.cfg.ProviderKey), result.NextToken)
	}
	return nil
}
