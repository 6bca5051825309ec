package classify

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/utils"
)

// Clean deletes every per-node entry of the results directory together with
// everything below it, children before parents. data/ and namenode/ are kept.
// A path that cannot be removed does not stop the others; the failures are
// returned together. The returned count is the number of removed paths.
func (c *Classifier) Clean(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(c.fs, c.cfg.ResultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "list %s", c.cfg.ResultsDir)
	}

	var (
		removed int
		errs    utils.MultiError
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		if !c.isNode(e.Name()) {
			continue
		}
		removed += c.removeTree(filepath.Join(c.cfg.ResultsDir, e.Name()), e.IsDir(), &errs)
	}

	metrics.NodePathsDeleted.Add(float64(removed))
	level.Info(c.logger).Log("msg", "cleaned node folders", "removed", removed, "failed", errs.Len())
	return removed, errs.Err()
}

func (c *Classifier) removeTree(path string, isDir bool, errs *utils.MultiError) int {
	removed := 0
	if isDir {
		children, err := afero.ReadDir(c.fs, path)
		if err != nil {
			errs.Add(errors.Wrapf(err, "list %s", path))
		}
		for _, child := range children {
			removed += c.removeTree(filepath.Join(path, child.Name()), child.IsDir(), errs)
		}
	}
	if err := c.fs.Remove(path); err != nil {
		level.Debug(c.logger).Log("msg", "failed to remove path", "path", path, "err", err)
		errs.Add(errors.Wrapf(err, "remove %s", path))
		return removed
	}
	return removed + 1
}
