package storage

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

// RefreshLoop rebuilds the index every interval until ctx is done, so a long
// running server picks up newly classified runs.
func (ix *Index) RefreshLoop(ctx context.Context, fs afero.Fs, dataDir string, interval time.Duration) {
	level.Info(ix.logger).Log("msg", "starting index refresh loop", "interval", interval, "data_dir", dataDir)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := ix.Rebuild(ctx, fs, dataDir); err != nil {
				level.Warn(ix.logger).Log("msg", "index refresh incomplete", "err", err)
			}
		case <-ctx.Done():
			level.Info(ix.logger).Log("msg", "stopping index refresh loop")
			return
		}
	}
}
