// Package plan describes a compiled query as handed to the layout recorder by
// the query engine: its text, identifier, input entities and stage statistics.
package plan

import (
	"sort"
	"strings"
)

// EntityType is the kind of a query input.
type EntityType string

const (
	EntityTable          EntityType = "TABLE"
	EntityPartition      EntityType = "PARTITION"
	EntityDummyPartition EntityType = "DUMMYPARTITION"
	EntityDatabase       EntityType = "DATABASE"
	EntityDFSDir         EntityType = "DFS_DIR"
	EntityLocalDir       EntityType = "LOCAL_DIR"
	EntityFunction       EntityType = "FUNCTION"
)

// Table is a metastore table. Path is its storage location and may be empty
// for tables that have none (views, for instance).
type Table struct {
	Database string `yaml:"database" json:"database"`
	Name     string `yaml:"name" json:"name"`
	Path     string `yaml:"path" json:"path"`
}

// FullName returns database.table in lower case.
func (t Table) FullName() string {
	return strings.ToLower(t.Database + "." + t.Name)
}

// Partition belongs to exactly one table.
type Partition struct {
	Name  string `yaml:"name" json:"name"`
	Table Table  `yaml:"table" json:"table"`
}

// Entity is one input read by the query.
type Entity struct {
	Type      EntityType `yaml:"type" json:"type"`
	Table     *Table     `yaml:"table,omitempty" json:"table,omitempty"`
	Partition *Partition `yaml:"partition,omitempty" json:"partition,omitempty"`
}

// QueryPlan is the part of a compiled query the recorder needs.
type QueryPlan struct {
	QueryID string       `yaml:"queryId" json:"queryId"`
	Query   string       `yaml:"query" json:"query"`
	Inputs  []Entity     `yaml:"inputs" json:"inputs"`
	Stages  []StageStats `yaml:"stages" json:"stages"`
	Explain string       `yaml:"explain" json:"explain"`
}

// NamedTable pairs a table with its fully qualified name.
type NamedTable struct {
	FullName string
	Table    Table
}

// Tables resolves the plan inputs to their owning tables. Tables and
// partitions (including dummy partitions) contribute; every other input kind
// is ignored. The result holds one entry per fully qualified name, sorted by
// name; a later input with the same name replaces an earlier one.
func (p *QueryPlan) Tables() []NamedTable {
	byName := map[string]Table{}
	for _, in := range p.Inputs {
		var tbl *Table
		switch in.Type {
		case EntityTable:
			tbl = in.Table
		case EntityPartition, EntityDummyPartition:
			if in.Partition != nil {
				tbl = &in.Partition.Table
			}
		default:
			continue
		}
		if tbl == nil {
			continue
		}
		byName[tbl.FullName()] = *tbl
	}

	tables := make([]NamedTable, 0, len(byName))
	for name, tbl := range byName {
		tables = append(tables, NamedTable{FullName: name, Table: tbl})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].FullName < tables[j].FullName })
	return tables
}
