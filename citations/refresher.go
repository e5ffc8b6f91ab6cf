package citations

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Refresher re-fetches the mapping on a schedule so interactive lookups
// rarely pay the synchronous refresh. Optional: the cache works without it.
type Refresher struct {
	cache     *MappingCache
	scheduler *cron.Cron
	entryID   cron.EntryID
}

// NewRefresher schedules cache refreshes with the given cron spec, e.g.
// "@every 5m". The scheduler is not started until Start is called.
func NewRefresher(cache *MappingCache, spec string) (*Refresher, error) {
	r := &Refresher{
		cache:     cache,
		scheduler: cron.New(),
	}

	id, err := r.scheduler.AddFunc(spec, func() {
		if err := cache.Refresh(context.Background()); err != nil {
			cache.Logger.Printf("Scheduled mapping refresh failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	r.entryID = id

	return r, nil
}

func (r *Refresher) Start() {
	r.scheduler.Start()
}

// Stop halts scheduling; a refresh already in flight completes.
func (r *Refresher) Stop() {
	r.scheduler.Remove(r.entryID)
	r.scheduler.Stop()
}
