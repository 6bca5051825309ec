// Package storage keeps a DuckDB index of the replicas recorded in classified
// runs, for ad-hoc analysis and parquet export.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/record"
	"github.com/iwanhae/qdblocks/internal/utils"
)

const recordsDir = "QueryDataBlocks"

// Index is the analysis database.
type Index struct {
	db     *sql.DB
	path   string
	logger log.Logger

	// queryMu serializes user queries to bound memory use.
	queryMu sync.Mutex
}

// Open opens or creates the index at path. An empty path gives an in-memory index.
func Open(ctx context.Context, path string, logger log.Logger) (*Index, error) {
	dsn := ""
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create index directory")
		}
		// DuckDB can fail to recover from a stale WAL. The index is rebuilt from
		// the result tree anyway.
		os.Remove(path + ".wal")
		dsn = path + "?access_mode=READ_WRITE"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create database connection")
	}
	if _, err := db.ExecContext(ctx, SQLCreateReplicasTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create table")
	}
	return &Index{db: db, path: path, logger: logger}, nil
}

// Rebuild replaces the content of the index with every record found under
// dataDir/<folder>/<run>/QueryDataBlocks. Records that cannot be read are
// skipped and reported in the returned error; the others are still indexed.
// It returns the number of indexed replicas.
func (ix *Index) Rebuild(ctx context.Context, fs afero.Fs, dataDir string) (int, error) {
	rows, errs := collectRows(fs, dataDir)

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, SQLDeleteReplicas); err != nil {
		return 0, errors.Wrap(err, "failed to truncate replicas")
	}
	stmt, err := tx.PrepareContext(ctx, SQLInsertReplica)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prepare insert statement")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.args()...); err != nil {
			return 0, errors.Wrap(err, "failed to execute insert statement")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit transaction")
	}

	metrics.IndexedReplicas.Set(float64(len(rows)))
	level.Info(ix.logger).Log("msg", "rebuilt index", "replicas", len(rows), "skipped_records", errs.Len())
	return len(rows), errs.Err()
}

func collectRows(fs afero.Fs, dataDir string) ([]Row, *utils.MultiError) {
	errs := &utils.MultiError{}
	var rows []Row

	folders, err := afero.ReadDir(fs, dataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			errs.Add(errors.Wrapf(err, "list %s", dataDir))
		}
		return nil, errs
	}
	for _, folder := range folders {
		if !folder.IsDir() {
			continue
		}
		runs, err := afero.ReadDir(fs, filepath.Join(dataDir, folder.Name()))
		if err != nil {
			errs.Add(errors.Wrapf(err, "list folder %s", folder.Name()))
			continue
		}
		for _, run := range runs {
			if !run.IsDir() {
				continue
			}
			dir := filepath.Join(dataDir, folder.Name(), run.Name(), recordsDir)
			files, err := afero.ReadDir(fs, dir)
			if err != nil {
				if !os.IsNotExist(err) {
					errs.Add(errors.Wrapf(err, "list %s", dir))
				}
				continue
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
					continue
				}
				rec, err := record.ReadFile(fs, filepath.Join(dir, f.Name()))
				if err != nil {
					errs.Add(err)
					continue
				}
				queryID := strings.TrimSuffix(f.Name(), ".json")
				rows = append(rows, Rows(folder.Name(), run.Name(), queryID, rec)...)
			}
		}
	}
	return rows, errs
}

// Export writes the whole index to a zstd-compressed parquet file.
func (ix *Index) Export(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create export directory")
	}
	if _, err := ix.db.ExecContext(ctx, fmt.Sprintf(SQLExportTemplate, quote(path))); err != nil {
		os.Remove(path)
		return errors.Wrapf(err, "failed to export index to %s", path)
	}
	level.Info(ix.logger).Log("msg", "exported index", "path", path)
	return nil
}

// Query runs a user query. $replicas in the query stands for the replicas table.
func (ix *Index) Query(ctx context.Context, query string) ([]map[string]any, *QueryResult, error) {
	ix.queryMu.Lock()
	defer ix.queryMu.Unlock()

	if ctx.Err() != nil {
		return nil, nil, errors.Wrap(ctx.Err(), "failed fast")
	}

	finalQuery := expandPlaceholder(query)
	level.Debug(ix.logger).Log("msg", "executing query", "query", finalQuery)

	now := time.Now()
	rows, err := ix.db.QueryContext(ctx, finalQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	results, err := serializeRows(rows)
	if err != nil {
		return nil, nil, err
	}
	return results, &QueryResult{Duration: time.Since(now), SQL: finalQuery}, nil
}

// Counts returns the totals of the index.
func (ix *Index) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := ix.db.QueryRowContext(ctx, SQLCountReplicas).Scan(&c.Replicas, &c.Queries, &c.Runs, &c.Files, &c.Hosts)
	if err != nil {
		return Counts{}, errors.Wrap(err, "failed to count replicas")
	}
	return c, nil
}

// HostUsage returns the number of replicas and files stored on each location.
func (ix *Index) HostUsage(ctx context.Context) ([]map[string]any, error) {
	return ix.rows(ctx, SQLHostUsage)
}

func (ix *Index) rows(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := ix.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return serializeRows(rows)
}

// Stats returns index statistics. Individual failures are reported under "errors".
func (ix *Index) Stats(ctx context.Context) map[string]any {
	errs := utils.MultiError{}

	counts, err := ix.Counts(ctx)
	errs.Add(err)

	storageTypes, err := ix.rows(ctx, SQLStorageTypeUsage)
	if err != nil {
		errs.Add(errors.Wrap(err, "storage: error getting storage type usage"))
	}

	memory, err := ix.rows(ctx, SQLDuckDBMemory)
	if err != nil {
		errs.Add(errors.Wrap(err, "storage: error getting memory usage"))
	}

	var size int64
	if ix.path != "" {
		if info, err := os.Stat(ix.path); err != nil {
			errs.Add(errors.Wrap(err, "storage: error getting index size"))
		} else {
			size = info.Size()
		}
	}

	return map[string]any{
		"db_stats":      ix.db.Stats(),
		"index_path":    ix.path,
		"index_size":    size,
		"counts":        counts,
		"storage_types": storageTypes,
		"duckdb_memory": memory,
		"errors":        errs.Messages(),
	}
}

// Close closes the database.
func (ix *Index) Close() error {
	level.Debug(ix.logger).Log("msg", "closing index")
	return errors.Wrap(ix.db.Close(), "failed to close index")
}
