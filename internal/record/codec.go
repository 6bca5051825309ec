package record

import (
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes rec as indented JSON terminated by a newline.
func Marshal(rec *ExtractionRecord) ([]byte, error) {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal extraction record")
	}
	return append(out, '\n'), nil
}

// wireTable accepts both table shapes found in saved records: the canonical
// one with a file list, and the older one where a table owns a single file
// and its blocks directly.
type wireTable struct {
	TableName string        `json:"tableName"`
	Files     []FileRecord  `json:"queryDataFileList"`
	File      *string       `json:"file"`
	Blocks    []BlockRecord `json:"blockList"`
}

type wireRecord struct {
	Query  string      `json:"query"`
	Tables []wireTable `json:"tableList"`
}

// Unmarshal decodes a saved record. Tables in the single-file shape become a
// TableRecord owning exactly one FileRecord.
func Unmarshal(data []byte) (*ExtractionRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "unmarshal extraction record")
	}

	rec := &ExtractionRecord{Query: w.Query}
	if w.Tables != nil {
		rec.Tables = make([]TableRecord, 0, len(w.Tables))
	}
	for _, t := range w.Tables {
		tr := TableRecord{TableName: t.TableName, Files: t.Files}
		if t.Files == nil && t.File != nil {
			tr.Files = []FileRecord{{Path: *t.File, Blocks: t.Blocks}}
		}
		rec.Tables = append(rec.Tables, tr)
	}
	return rec, nil
}

// Decode reads a whole record from r.
func Decode(r io.Reader) (*ExtractionRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read extraction record")
	}
	return Unmarshal(data)
}

// ReadFile loads the record stored at path.
func ReadFile(fs afero.Fs, path string) (*ExtractionRecord, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	rec, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return rec, nil
}

// ReadQuery returns only the query text recorded at path.
func ReadQuery(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	var probe struct {
		Query *string `json:"query"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", errors.Wrapf(err, "decode %s", path)
	}
	if probe.Query == nil {
		return "", errors.Errorf("no query field in %s", path)
	}
	return *probe.Query, nil
}
