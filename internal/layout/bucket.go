package layout

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

// Bucket reports objects of an object store as files stored in fixed-size
// blocks, each block having a single replica located at the bucket itself.
type Bucket struct {
	bkt       objstore.Bucket
	blockSize int64
}

// NewBucket wraps bkt. A non-positive blockSize defaults to DefaultBlockSize.
func NewBucket(bkt objstore.Bucket, blockSize int64) *Bucket {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Bucket{bkt: bkt, blockSize: blockSize}
}

// ListLocatedStatus implements FileSystem. Object prefixes are reported as directories.
func (b *Bucket) ListLocatedStatus(ctx context.Context, path string) ([]LocatedFileStatus, error) {
	prefix := strings.TrimPrefix(path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, objstore.DirDelim) {
		prefix += objstore.DirDelim
	}

	rep := singleHostReplica(b.bkt.Name(), StorageObject, "bucket")
	var statuses []LocatedFileStatus
	err := b.bkt.Iter(ctx, prefix, func(name string) error {
		if strings.HasSuffix(name, objstore.DirDelim) {
			statuses = append(statuses, LocatedFileStatus{Path: strings.TrimSuffix(name, objstore.DirDelim), IsDir: true})
			return nil
		}
		attrs, err := b.bkt.Attributes(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "attributes of %s", name)
		}
		statuses = append(statuses, LocatedFileStatus{
			Path:   name,
			Length: attrs.Size,
			Blocks: splitBlocks(attrs.Size, b.blockSize, rep),
		})
		return nil
	})
	if err != nil {
		return statuses, errors.Wrapf(err, "iterate %s", path)
	}
	return statuses, nil
}
