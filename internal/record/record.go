// Package record holds the per-query extraction record: the tables, files,
// blocks and replicas a query touched, and its JSON encoding.
package record

import (
	"github.com/pkg/errors"
)

// ExtractionRecord is built once per query compilation and is not modified after it is saved.
type ExtractionRecord struct {
	Query  string        `json:"query"`
	Tables []TableRecord `json:"tableList"`
}

// TableRecord lists the files found under one table's storage path.
type TableRecord struct {
	TableName string       `json:"tableName"`
	Files     []FileRecord `json:"queryDataFileList"`
}

// FileRecord is one regular file and its blocks in storage order.
type FileRecord struct {
	Path   string        `json:"file"`
	Blocks []BlockRecord `json:"blockList"`
}

// BlockRecord is one block of a file. Index is its position in the file's block listing.
type BlockRecord struct {
	Index    int             `json:"blockId"`
	Replicas []ReplicaRecord `json:"replicaList"`
}

// ReplicaRecord is one physical copy of a block.
// ID is the 1-based position in the block's host list, not a stable identifier.
type ReplicaRecord struct {
	ID           int    `json:"replicaId"`
	Location     string `json:"location"`
	StorageID    string `json:"storageId"`
	StorageType  string `json:"storageType"`
	TopologyPath string `json:"topologyPath"`
}

// Validate checks the positional numbering of blocks and replicas.
func (r *ExtractionRecord) Validate() error {
	for _, t := range r.Tables {
		for _, f := range t.Files {
			for i, b := range f.Blocks {
				if b.Index != i {
					return errors.Errorf("table %s file %s: block at position %d has index %d", t.TableName, f.Path, i, b.Index)
				}
				for j, rep := range b.Replicas {
					if rep.ID != j+1 {
						return errors.Errorf("table %s file %s block %d: replica at position %d has id %d", t.TableName, f.Path, b.Index, j, rep.ID)
					}
				}
			}
		}
	}
	return nil
}

// Counts returns the number of files, blocks and replicas in the record.
func (r *ExtractionRecord) Counts() (files, blocks, replicas int) {
	for _, t := range r.Tables {
		files += len(t.Files)
		for _, f := range t.Files {
			blocks += len(f.Blocks)
			for _, b := range f.Blocks {
				replicas += len(b.Replicas)
			}
		}
	}
	return files, blocks, replicas
}
