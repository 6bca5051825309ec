package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/plan"
)

// TimingLog appends per-query lines to the execution time and CPU time logs.
// The execution time line is left open: the engine appends the elapsed time
// once the query finishes.
type TimingLog struct {
	fs       afero.Fs
	execPath string
	cpuPath  string
}

// NewTimingLog returns a TimingLog writing to the two given files.
func NewTimingLog(fs afero.Fs, execPath, cpuPath string) *TimingLog {
	return &TimingLog{fs: fs, execPath: execPath, cpuPath: cpuPath}
}

// StartExecution appends "<queryID>: " to the execution time log.
func (t *TimingLog) StartExecution(queryID string) error {
	return appendFile(t.fs, t.execPath, queryID+": ")
}

// AppendCPUTime appends the stage CPU report of p to the CPU time log.
func (t *TimingLog) AppendCPUTime(p *plan.QueryPlan) error {
	return appendFile(t.fs, t.cpuPath, CPUTimeReport(p)+"\n")
}

// CPUTimeReport renders the per-stage statistics of p followed by the total CPU time.
func CPUTimeReport(p *plan.QueryPlan) string {
	var sb strings.Builder
	sb.WriteString(p.QueryID + "\n")
	for _, s := range p.Stages {
		fmt.Fprintf(&sb, "Stage-%s: %s\n", s.Stage, s)
	}
	fmt.Fprintf(&sb, "Total MapReduce CPU Time Spent: %s\n", plan.FormatMillis(p.TotalCPUMillis()))
	return sb.String()
}

// ExplainLog keeps the explain output of each query in <dir>/<queryID>.log.
type ExplainLog struct {
	fs  afero.Fs
	dir string
}

// NewExplainLog returns an ExplainLog rooted at dir.
func NewExplainLog(fs afero.Fs, dir string) *ExplainLog {
	return &ExplainLog{fs: fs, dir: dir}
}

// Append adds explain to the log of queryID, creating directories as needed.
func (e *ExplainLog) Append(queryID, explain string) error {
	if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
		return errors.Wrapf(err, "create explain directory %s", e.dir)
	}
	return appendFile(e.fs, filepath.Join(e.dir, queryID+".log"), explain+"\n")
}

func appendFile(fs afero.Fs, path, text string) error {
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return errors.Wrapf(err, "append to %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
