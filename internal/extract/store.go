package extract

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/iwanhae/qdblocks/internal/record"
)

// Store writes one <queryId>.json per recorded query into a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on first save.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Path returns where the record of queryID is stored.
func (s *Store) Path(queryID string) string {
	return filepath.Join(s.dir, queryID+".json")
}

// Save writes rec for queryID, replacing any earlier record with the same id.
// The file is written to a temporary name first and renamed into place.
func (s *Store) Save(queryID string, rec *record.ExtractionRecord) (string, error) {
	if queryID == "" || strings.ContainsAny(queryID, `/\`) || queryID == "." || queryID == ".." {
		return "", errors.Errorf("invalid query id %q", queryID)
	}
	data, err := record.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.Wrapf(err, "create record directory %s", s.dir)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+queryID+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "create temporary record file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return "", errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return "", errors.Wrapf(err, "close %s", tmpName)
	}

	dst := s.Path(queryID)
	if err := s.fs.Rename(tmpName, dst); err != nil {
		s.fs.Remove(tmpName)
		return "", errors.Wrapf(err, "rename %s to %s", tmpName, dst)
	}
	return dst, nil
}
