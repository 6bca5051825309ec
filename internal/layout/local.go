package layout

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// DefaultBlockSize matches the usual HDFS block size.
const DefaultBlockSize = 128 * 1024 * 1024

// Local reports files of a locally mounted file system as if they were stored
// in fixed-size blocks on one host.
type Local struct {
	fs        afero.Fs
	blockSize int64
	host      string
}

// NewLocal creates a Local view. An empty host defaults to "localhost" and a
// non-positive blockSize to DefaultBlockSize.
func NewLocal(fs afero.Fs, blockSize int64, host string) *Local {
	if host == "" {
		host = "localhost"
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Local{fs: fs, blockSize: blockSize, host: host}
}

// ListLocatedStatus implements FileSystem.
func (l *Local) ListLocatedStatus(ctx context.Context, path string) ([]LocatedFileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = trimScheme(path)
	infos, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", path)
	}

	rep := singleHostReplica(l.host, StorageDisk, "DS-local")
	statuses := make([]LocatedFileStatus, 0, len(infos))
	for _, info := range infos {
		st := LocatedFileStatus{
			Path:   "file:" + filepath.Join(path, info.Name()),
			Length: info.Size(),
			IsDir:  info.IsDir(),
		}
		if !info.IsDir() {
			st.Blocks = splitBlocks(info.Size(), l.blockSize, rep)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func trimScheme(path string) string {
	if strings.HasPrefix(path, "file://") {
		return strings.TrimPrefix(path, "file://")
	}
	return strings.TrimPrefix(path, "file:")
}
