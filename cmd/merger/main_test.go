package main

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeQuery(t *testing.T) {
	q := mergeQuery([]string{"/a/one.parquet", "/a/it's.parquet"}, "/out/all.parquet", false)
	require.Equal(t,
		"COPY (SELECT * FROM read_parquet(['/a/one.parquet', '/a/it''s.parquet'], union_by_name = true) ORDER BY folder, run, query_id, table_name, file, block_id, replica_id) TO '/out/all.parquet' (FORMAT parquet, COMPRESSION zstd);",
		q)

	q = mergeQuery([]string{"/a/one.parquet"}, "/out/all.parquet", true)
	require.Contains(t, q, "COPY (SELECT DISTINCT * FROM")
}

func writeExport(t *testing.T, db *sql.DB, path, folder string, replicas int) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`COPY (
		SELECT '%s' AS folder, '%s_1' AS run, 'hive_1' AS query_id, 'select 1' AS query,
			'db.t' AS table_name, '/wh/t/0' AS file, 0 AS block_id, range::INTEGER + 1 AS replica_id,
			'dn' || CAST(range AS VARCHAR) AS location, '' AS storage_id, 'DISK' AS storage_type, '/default-rack' AS topology_path
		FROM range(%d)
	) TO '%s' (FORMAT parquet);`, folder, folder, replicas, path))
	require.NoError(t, err)
}

func TestMergeParquetFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	one := filepath.Join(dir, "one.parquet")
	two := filepath.Join(dir, "two.parquet")
	writeExport(t, db, one, "q1", 3)
	writeExport(t, db, two, "q2", 2)

	out := filepath.Join(dir, "merged.parquet")
	require.NoError(t, mergeParquetFiles([]string{one, two, one}, out, false))
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT count(*) FROM read_parquet('%s')", out)).Scan(&n))
	require.Equal(t, 8, n)

	deduped := filepath.Join(dir, "deduped.parquet")
	require.NoError(t, mergeParquetFiles([]string{one, two, one}, deduped, true))
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT count(*) FROM read_parquet('%s')", deduped)).Scan(&n))
	require.Equal(t, 5, n)

	var first string
	require.NoError(t, db.QueryRow(fmt.Sprintf("SELECT folder FROM read_parquet('%s') LIMIT 1", out)).Scan(&first))
	require.Equal(t, "q1", first)
}
