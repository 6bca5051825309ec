// Command merger combines layout parquet exports, typically produced by
// "qdblocks index --export" on several benchmark hosts, into one file.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log/level"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/pkg/errors"

	"github.com/iwanhae/qdblocks/internal/logging"
)

func main() {
	outputFile := flag.String("o", "", "Output parquet file path (required)")
	distinct := flag.Bool("distinct", false, "Collapse duplicate rows")
	logLevel := flag.String("log.level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logLevel, "logfmt")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *outputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) is required")
		flag.Usage()
		os.Exit(1)
	}

	inputFiles := flag.Args()
	if len(inputFiles) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one input parquet file is required")
		flag.Usage()
		os.Exit(1)
	}

	for _, file := range inputFiles {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			level.Error(logger).Log("msg", "input file does not exist", "file", file)
			os.Exit(1)
		}
	}

	if err := mergeParquetFiles(inputFiles, *outputFile, *distinct); err != nil {
		level.Error(logger).Log("msg", "failed to merge parquet files", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "merged parquet files", "inputs", len(inputFiles), "output", *outputFile)
}

func mergeParquetFiles(inputFiles []string, outputFile string, distinct bool) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return errors.Wrap(err, "failed to open DuckDB connection")
	}
	defer db.Close()

	if _, err := db.Exec(mergeQuery(inputFiles, outputFile, distinct)); err != nil {
		return errors.Wrap(err, "failed to execute merge query")
	}
	return nil
}

// mergeQuery unions the inputs by column name, so exports from older versions
// with fewer columns still merge, and keeps the index ordering.
func mergeQuery(inputFiles []string, outputFile string, distinct bool) string {
	quotedFiles := make([]string, len(inputFiles))
	for i, file := range inputFiles {
		quotedFiles[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(file, "'", "''"))
	}

	selectKw := "SELECT"
	if distinct {
		selectKw = "SELECT DISTINCT"
	}
	return fmt.Sprintf(
		"COPY (%s * FROM read_parquet([%s], union_by_name = true) ORDER BY folder, run, query_id, table_name, file, block_id, replica_id) TO '%s' (FORMAT parquet, COMPRESSION zstd);",
		selectKw,
		strings.Join(quotedFiles, ", "),
		strings.ReplaceAll(outputFile, "'", "''"),
	)
}
