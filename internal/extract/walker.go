// Package extract records, for each compiled SELECT query, the files, blocks
// and replicas of every table the query reads.
package extract

import (
	"context"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/iwanhae/qdblocks/internal/layout"
	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/plan"
	"github.com/iwanhae/qdblocks/internal/record"
	"github.com/iwanhae/qdblocks/internal/utils"
)

// ShouldExtract reports whether query is a SELECT or EXPLAIN SELECT statement.
// It is a prefix check on the lower-cased text, not a parser; leading whitespace
// is not skipped.
func ShouldExtract(query string) bool {
	q := strings.ToLower(query)
	return strings.HasPrefix(q, "select") || strings.HasPrefix(q, "explain select")
}

// Walker resolves query inputs to their physical layout.
type Walker struct {
	fs     layout.FileSystem
	logger log.Logger
}

// NewWalker returns a Walker reading layouts from fs.
func NewWalker(fs layout.FileSystem, logger log.Logger) *Walker {
	return &Walker{fs: fs, logger: logger}
}

// Walk builds the extraction record of p. Tables without a storage path are
// left out. A listing failure is collected in the returned error, and the
// table is still reported with whatever files were listed before the failure,
// so the returned record is always usable.
func (w *Walker) Walk(ctx context.Context, p *plan.QueryPlan) (*record.ExtractionRecord, error) {
	rec := &record.ExtractionRecord{Query: p.Query, Tables: []record.TableRecord{}}
	var errs utils.MultiError

	for _, nt := range p.Tables() {
		if nt.Table.Path == "" {
			level.Debug(w.logger).Log("msg", "table has no storage path, skipping", "table", nt.FullName)
			continue
		}
		files, err := w.files(ctx, nt.Table.Path)
		if err != nil {
			metrics.WalkErrors.Inc()
			level.Warn(w.logger).Log("msg", "failed to list table files", "table", nt.FullName, "path", nt.Table.Path, "err", err)
			errs.Add(errors.Wrapf(err, "table %s", nt.FullName))
		}
		rec.Tables = append(rec.Tables, record.TableRecord{TableName: nt.FullName, Files: files})
	}
	return rec, errs.Err()
}

func (w *Walker) files(ctx context.Context, path string) ([]record.FileRecord, error) {
	statuses, err := w.fs.ListLocatedStatus(ctx, path)
	files := make([]record.FileRecord, 0, len(statuses))
	for _, st := range statuses {
		if st.IsDir {
			continue
		}
		files = append(files, record.FileRecord{Path: st.Path, Blocks: blocks(st.Blocks)})
	}
	return files, err
}

// blocks numbers blocks from 0 and their replicas from 1, both in the order
// the storage layer reported them.
func blocks(locs []layout.BlockLocation) []record.BlockRecord {
	out := make([]record.BlockRecord, 0, len(locs))
	for i, loc := range locs {
		replicas := make([]record.ReplicaRecord, 0, len(loc.Names))
		for j, name := range loc.Names {
			replicas = append(replicas, record.ReplicaRecord{
				ID:           j + 1,
				Location:     name,
				StorageID:    at(loc.StorageIDs, j),
				StorageType:  at(loc.StorageTypes, j),
				TopologyPath: at(loc.TopologyPaths, j),
			})
		}
		out = append(out, record.BlockRecord{Index: i, Replicas: replicas})
	}
	return out
}

// at returns s[i], or "" when the storage layer sent a shorter array.
func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}
