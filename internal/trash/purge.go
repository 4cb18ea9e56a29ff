// Package trash permanently removes images that stayed in trash past the retention period.
package trash

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Purger hard-deletes expired trash rows. Storage objects are left to the storage lifecycle.
type Purger struct {
	images    database.ImageWriter
	retention time.Duration
	now       func() time.Time
}

// NewPurger creates a purger that removes images trashed longer than retention.
func NewPurger(images database.ImageWriter, retention time.Duration) *Purger {
	return &Purger{images: images, retention: retention, now: time.Now}
}

// Purge removes every image deleted before now minus retention.
func (p *Purger) Purge(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.images.PurgeTrashed(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge trash older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.ImagesPurgedTotal.Add(float64(n))
	if n > 0 {
		log.Info().Int64("images", n).Time("cutoff", cutoff).Msg("Purged expired trash")
	}
	return n, nil
}

// Run purges once immediately and then every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (p *Purger) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Purge(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Trash purge failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
