package classify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/facette/natsort"
	"github.com/pkg/errors"
)

const (
	folderPrefix = "q"
	runDelim     = "_"
)

// FolderName returns the name of query folder n, "q<n>".
func FolderName(n int) string { return folderPrefix + strconv.Itoa(n) }

// RunName returns the name of run n inside folder, "<folder>_<n>".
func RunName(folder string, n int) string { return folder + runDelim + strconv.Itoa(n) }

// Allocator hands out the next query folder and run numbers.
type Allocator interface {
	NextFolder(folders []string) (int, error)
	NextRun(folder string, runs []string) (int, error)
}

// SuffixAllocator derives the next number from the names already on disk: it
// takes the last name in natural order, parses its trailing integer and adds
// one. It keeps no state and takes no lock, so two processes classifying into
// the same tree at the same time can be handed the same number.
type SuffixAllocator struct{}

// NextFolder returns the number following the last "q<n>" folder, or 1 when
// there is none.
func (SuffixAllocator) NextFolder(folders []string) (int, error) {
	last, ok := lastNatural(folders)
	if !ok {
		return 1, nil
	}
	if !strings.HasPrefix(last, folderPrefix) {
		return 0, errors.Errorf("query folder %q does not start with %q", last, folderPrefix)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(last, folderPrefix))
	if err != nil {
		return 0, errors.Wrapf(err, "parse query folder %q", last)
	}
	return n + 1, nil
}

// NextRun returns the number following the last "<folder>_<n>" run, or 1 when
// there is none.
func (SuffixAllocator) NextRun(folder string, runs []string) (int, error) {
	last, ok := lastNatural(runs)
	if !ok {
		return 1, nil
	}
	i := strings.LastIndex(last, runDelim)
	if i < 0 {
		return 0, errors.Errorf("run %q in %s has no %q delimiter", last, folder, runDelim)
	}
	n, err := strconv.Atoi(last[i+1:])
	if err != nil {
		return 0, errors.Wrapf(err, "parse run %q in %s", last, folder)
	}
	return n + 1, nil
}

func lastNatural(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	sorted := naturalSorted(names)
	return sorted[len(sorted)-1], true
}

// naturalSorted returns a copy of names in natural order, so q10 follows q9.
func naturalSorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool { return natsort.Compare(out[i], out[j]) })
	return out
}
