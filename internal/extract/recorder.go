package extract

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/layout"
	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/plan"
	"github.com/iwanhae/qdblocks/internal/record"
	"github.com/iwanhae/qdblocks/internal/utils"
)

// Paths tells the Recorder where its outputs go.
type Paths struct {
	RecordsDir       string
	ExecutionTimeLog string
	CPUTimeLog       string
	ExplainDir       string
}

// Recorder is the hook the engine calls once a query has been compiled.
type Recorder struct {
	walker  *Walker
	store   *Store
	timings *TimingLog
	explain *ExplainLog
	logger  log.Logger
}

// NewRecorder wires a Recorder. fs holds the outputs; layoutFS is the storage
// layer the query's tables live in.
func NewRecorder(fs afero.Fs, layoutFS layout.FileSystem, paths Paths, logger log.Logger) *Recorder {
	return &Recorder{
		walker:  NewWalker(layoutFS, logger),
		store:   NewStore(fs, paths.RecordsDir),
		timings: NewTimingLog(fs, paths.ExecutionTimeLog, paths.CPUTimeLog),
		explain: NewExplainLog(fs, paths.ExplainDir),
		logger:  logger,
	}
}

// Result describes what AfterCompile did for one query.
type Result struct {
	QueryID string
	// Skipped is set when the statement is not a SELECT query and nothing was written.
	Skipped bool
	// Path is the saved record, empty if saving failed.
	Path   string
	Record *record.ExtractionRecord
	// Err aggregates every failure met on the way. The other steps still ran.
	Err error
}

// AfterCompile records the layout of p and appends its timing lines.
// Failures never stop the remaining steps; they are logged and returned in Result.Err.
func (r *Recorder) AfterCompile(ctx context.Context, p *plan.QueryPlan) Result {
	res := Result{QueryID: p.QueryID}
	if !ShouldExtract(p.Query) {
		metrics.QueriesSkipped.Inc()
		level.Debug(r.logger).Log("msg", "not a select query, skipping", "query_id", p.QueryID)
		res.Skipped = true
		return res
	}

	var errs utils.MultiError
	rec, err := r.walker.Walk(ctx, p)
	errs.Add(err)
	res.Record = rec

	path, err := r.store.Save(p.QueryID, rec)
	if err != nil {
		level.Error(r.logger).Log("msg", "failed to save layout record", "query_id", p.QueryID, "err", err)
		errs.Add(err)
	} else {
		metrics.RecordsWritten.Inc()
		res.Path = path
		files, blocks, replicas := rec.Counts()
		level.Info(r.logger).Log("msg", "saved layout record", "query_id", p.QueryID, "path", path, "tables", len(rec.Tables), "files", files, "blocks", blocks, "replicas", replicas)
	}

	if err := r.timings.StartExecution(p.QueryID); err != nil {
		level.Warn(r.logger).Log("msg", "failed to append execution time log", "query_id", p.QueryID, "err", err)
		errs.Add(err)
	}
	if err := r.timings.AppendCPUTime(p); err != nil {
		level.Warn(r.logger).Log("msg", "failed to append cpu time log", "query_id", p.QueryID, "err", err)
		errs.Add(err)
	}
	if p.Explain != "" {
		errs.Add(r.RecordExplain(p.QueryID, p.Explain))
	}

	res.Err = errs.Err()
	return res
}

// RecordExplain appends the explain output of a query to its explain log.
func (r *Recorder) RecordExplain(queryID, explain string) error {
	if err := r.explain.Append(queryID, explain); err != nil {
		level.Warn(r.logger).Log("msg", "failed to append explain log", "query_id", queryID, "err", err)
		return errors.Wrap(err, "record explain output")
	}
	return nil
}
