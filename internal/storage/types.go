package storage

import (
	"time"

	"github.com/iwanhae/qdblocks/internal/record"
)

// Row is one replica of one block, flattened with the run it was recorded in.
type Row struct {
	Folder       string
	Run          string
	QueryID      string
	Query        string
	TableName    string
	File         string
	BlockID      int
	ReplicaID    int
	Location     string
	StorageID    string
	StorageType  string
	TopologyPath string
}

func (r Row) args() []any {
	return []any{
		r.Folder, r.Run, r.QueryID, r.Query, r.TableName, r.File,
		r.BlockID, r.ReplicaID, r.Location, r.StorageID, r.StorageType, r.TopologyPath,
	}
}

// Rows flattens rec into one Row per replica. Files without blocks and blocks
// without replicas produce no rows.
func Rows(folder, run, queryID string, rec *record.ExtractionRecord) []Row {
	var rows []Row
	for _, t := range rec.Tables {
		for _, f := range t.Files {
			for _, b := range f.Blocks {
				for _, rep := range b.Replicas {
					rows = append(rows, Row{
						Folder:       folder,
						Run:          run,
						QueryID:      queryID,
						Query:        rec.Query,
						TableName:    t.TableName,
						File:         f.Path,
						BlockID:      b.Index,
						ReplicaID:    rep.ID,
						Location:     rep.Location,
						StorageID:    rep.StorageID,
						StorageType:  rep.StorageType,
						TopologyPath: rep.TopologyPath,
					})
				}
			}
		}
	}
	return rows
}

// Counts summarizes the indexed replicas.
type Counts struct {
	Replicas int64 `json:"replicas"`
	Queries  int64 `json:"queries"`
	Runs     int64 `json:"runs"`
	Files    int64 `json:"files"`
	Hosts    int64 `json:"hosts"`
}

// QueryResult holds metadata about a query execution.
type QueryResult struct {
	Duration time.Duration
	SQL      string
}
