// Package classify files finished benchmark runs into query folders.
//
// A results directory looks like:
//
//	results/
//	  namenode/QueryDataBlocks/<queryId>.json   the run that just finished
//	  node1/hdfs_read.log                        per-node read logs of that run
//	  data/q<N>/q<N>_<M>/                        classified runs
//
// Runs of the same query text share a folder q<N>; each run gets q<N>_<M>.
package classify

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/record"
	"github.com/iwanhae/qdblocks/internal/utils"
)

const (
	namenodeDir = "namenode"
	dataDir     = "data"
	recordsDir  = "QueryDataBlocks"
	nodeLogsDir = "hdfs_read_write"
)

// Config configures a Classifier.
type Config struct {
	ResultsDir string
	// NodeMarker selects per-node entries of ResultsDir by substring.
	NodeMarker string
	// NodeLogName is the log file moved out of every node entry.
	NodeLogName string
	// Allocator defaults to SuffixAllocator.
	Allocator Allocator
}

// Classifier moves the current run out of namenode/ into data/.
type Classifier struct {
	fs     afero.Fs
	cfg    Config
	logger log.Logger
}

// NewClassifier returns a Classifier working on fs.
func NewClassifier(fs afero.Fs, cfg Config, logger log.Logger) *Classifier {
	if cfg.NodeMarker == "" {
		cfg.NodeMarker = "node"
	}
	if cfg.NodeLogName == "" {
		cfg.NodeLogName = "hdfs_read.log"
	}
	if cfg.Allocator == nil {
		cfg.Allocator = SuffixAllocator{}
	}
	return &Classifier{fs: fs, cfg: cfg, logger: logger}
}

// Outcome describes where a run was filed.
type Outcome struct {
	// Skipped is set when there was no run to classify.
	Skipped bool
	Query   string
	Folder  string
	Run     string
	// Path is the run directory under data/.
	Path string
	// Appended is set when the run joined an existing folder.
	Appended bool
	// NodeLogs lists the relocated per-node logs.
	NodeLogs []string
}

// Classify files the run in namenode/ under data/. The run joins the first
// folder, in natural order, whose first run recorded the same query text;
// otherwise a new folder is created. An empty query text never matches.
//
// Errors that happen before the run is moved abort the classification and
// leave the tree untouched. Per-node log failures are collected in the
// returned error while the remaining logs are still moved.
func (c *Classifier) Classify(ctx context.Context) (*Outcome, error) {
	source := filepath.Join(c.cfg.ResultsDir, namenodeDir)
	ok, err := afero.DirExists(c.fs, filepath.Join(source, recordsDir))
	if err != nil {
		return nil, errors.Wrap(err, "check for records of the current run")
	}
	if !ok {
		level.Info(c.logger).Log("msg", "no run to classify", "dir", source)
		return &Outcome{Skipped: true}, nil
	}

	data := filepath.Join(c.cfg.ResultsDir, dataDir)
	if err := c.fs.MkdirAll(data, 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s", data)
	}

	out := &Outcome{Query: c.query(filepath.Join(source, recordsDir))}
	folders, err := c.dirs(data)
	if err != nil {
		return nil, err
	}

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := c.query(filepath.Join(data, folder, RunName(folder, 1), recordsDir))
		if out.Query != "" && ref == out.Query {
			out.Folder = folder
			out.Appended = true
			break
		}
	}

	if out.Appended {
		runs, err := c.dirs(filepath.Join(data, out.Folder))
		if err != nil {
			return nil, err
		}
		n, err := c.cfg.Allocator.NextRun(out.Folder, runs)
		if err != nil {
			return nil, err
		}
		out.Run = RunName(out.Folder, n)
	} else {
		n, err := c.cfg.Allocator.NextFolder(folders)
		if err != nil {
			return nil, err
		}
		out.Folder = FolderName(n)
		out.Run = RunName(out.Folder, 1)
		if err := c.fs.MkdirAll(filepath.Join(data, out.Folder), 0755); err != nil {
			return nil, errors.Wrapf(err, "create query folder %s", out.Folder)
		}
	}

	out.Path = filepath.Join(data, out.Folder, out.Run)
	if err := c.fs.Rename(source, out.Path); err != nil {
		return nil, errors.Wrapf(err, "move %s to %s", source, out.Path)
	}
	if out.Appended {
		metrics.RunsClassified.WithLabelValues("appended").Inc()
	} else {
		metrics.RunsClassified.WithLabelValues("created").Inc()
	}
	level.Info(c.logger).Log("msg", "classified run", "folder", out.Folder, "run", out.Run, "appended", out.Appended)

	logs, err := c.moveNodeLogs(ctx, out.Path)
	out.NodeLogs = logs
	return out, err
}

// moveNodeLogs moves <results>/<node>/<log> to <run>/hdfs_read_write/hdfs_read_<node>.log
// for every node entry. Entries without a log are skipped.
func (c *Classifier) moveNodeLogs(ctx context.Context, run string) ([]string, error) {
	dest := filepath.Join(run, nodeLogsDir)
	if err := c.fs.MkdirAll(dest, 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dest)
	}

	entries, err := afero.ReadDir(c.fs, c.cfg.ResultsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c.cfg.ResultsDir)
	}

	var (
		moved []string
		errs  utils.MultiError
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		if !c.isNode(e.Name()) {
			continue
		}
		src := filepath.Join(c.cfg.ResultsDir, e.Name(), c.cfg.NodeLogName)
		if ok, _ := afero.Exists(c.fs, src); !ok {
			continue
		}
		dst := filepath.Join(dest, "hdfs_read_"+e.Name()+".log")
		if err := c.fs.Rename(src, dst); err != nil {
			level.Warn(c.logger).Log("msg", "failed to move node log", "src", src, "dst", dst, "err", err)
			errs.Add(errors.Wrapf(err, "move %s", src))
			continue
		}
		moved = append(moved, dst)
	}
	return moved, errs.Err()
}

func (c *Classifier) isNode(name string) bool {
	return name != dataDir && name != namenodeDir && strings.Contains(name, c.cfg.NodeMarker)
}

// query returns the query text of the first JSON record in dir, in natural order.
// Missing directories and unreadable records give "".
func (c *Classifier) query(dir string) string {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			level.Warn(c.logger).Log("msg", "failed to list records", "dir", dir, "err", err)
		}
		return ""
	}
	var files []string
	for _, e := range entries {
		if isRecord(e) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return ""
	}
	path := filepath.Join(dir, naturalSorted(files)[0])
	q, err := record.ReadQuery(c.fs, path)
	if err != nil {
		level.Warn(c.logger).Log("msg", "failed to read query text", "path", path, "err", err)
		return ""
	}
	return q
}

// isRecord skips directories, dotfiles and anything that is not a JSON record,
// such as temp files left behind by an interrupted save.
func isRecord(fi os.FileInfo) bool {
	name := fi.Name()
	return !fi.IsDir() && !strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".json")
}

// dirs lists the subdirectories of dir in natural order.
func (c *Classifier) dirs(dir string) ([]string, error) {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return naturalSorted(names), nil
}
