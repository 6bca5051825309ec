// Package layout exposes the physical placement of files in a storage layer:
// which blocks a file is split into and where each block's replicas live.
package layout

import (
	"context"
	"fmt"
)

// Storage types reported for block replicas.
const (
	StorageDisk   = "DISK"
	StorageSSD    = "SSD"
	StorageObject = "OBJECT"
)

// BlockLocation describes one block of a file. Names, StorageIDs, StorageTypes
// and TopologyPaths are positionally aligned: entry i of each describes replica i.
type BlockLocation struct {
	Offset        int64
	Length        int64
	Names         []string
	Hosts         []string
	StorageIDs    []string
	StorageTypes  []string
	TopologyPaths []string
}

// LocatedFileStatus is a directory entry together with its block locations.
// Blocks is empty for directories.
type LocatedFileStatus struct {
	Path   string
	Length int64
	IsDir  bool
	Blocks []BlockLocation
}

// FileSystem lists the direct children of a path with their block locations.
type FileSystem interface {
	ListLocatedStatus(ctx context.Context, path string) ([]LocatedFileStatus, error)
}

// splitBlocks cuts a file of the given length into blockSize chunks, placing
// every chunk on a single replica described by rep.
func splitBlocks(length, blockSize int64, rep replica) []BlockLocation {
	if length <= 0 {
		return nil
	}
	if blockSize <= 0 {
		blockSize = length
	}
	blocks := make([]BlockLocation, 0, (length+blockSize-1)/blockSize)
	for off := int64(0); off < length; off += blockSize {
		n := blockSize
		if off+n > length {
			n = length - off
		}
		blocks = append(blocks, BlockLocation{
			Offset:        off,
			Length:        n,
			Names:         []string{rep.name},
			Hosts:         []string{rep.host},
			StorageIDs:    []string{rep.storageID},
			StorageTypes:  []string{rep.storageType},
			TopologyPaths: []string{rep.topologyPath},
		})
	}
	return blocks
}

type replica struct {
	name         string
	host         string
	storageID    string
	storageType  string
	topologyPath string
}

func singleHostReplica(host, storageType, idPrefix string) replica {
	return replica{
		name:         host,
		host:         host,
		storageID:    fmt.Sprintf("%s-%s", idPrefix, host),
		storageType:  storageType,
		topologyPath: "/default-rack/" + host,
	}
}
