package storage

const SQLCreateReplicasTable = `
CREATE TABLE IF NOT EXISTS replicas (
	folder VARCHAR,
	run VARCHAR,
	query_id VARCHAR,
	query VARCHAR,
	table_name VARCHAR,
	file VARCHAR,
	block_id INTEGER,
	replica_id INTEGER,
	location VARCHAR,
	storage_id VARCHAR,
	storage_type VARCHAR,
	topology_path VARCHAR
);
`

const SQLDeleteReplicas = `DELETE FROM replicas;`

const SQLInsertReplica = `INSERT INTO replicas VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

const SQLCountReplicas = `
SELECT
	count(*),
	count(DISTINCT query_id),
	count(DISTINCT folder || '/' || run),
	count(DISTINCT file),
	count(DISTINCT location)
FROM replicas;
`

const SQLStorageTypeUsage = `
SELECT storage_type, count(*) AS replicas
FROM replicas
GROUP BY storage_type
ORDER BY storage_type;
`

const SQLHostUsage = `
SELECT location, count(*) AS replicas, count(DISTINCT file) AS files
FROM replicas
GROUP BY location
ORDER BY replicas DESC, location;
`

// SQLExportTemplate takes the quoted output path.
const SQLExportTemplate = `
COPY (
	SELECT * FROM replicas
	ORDER BY folder, run, query_id, table_name, file, block_id, replica_id
) TO '%s' (FORMAT parquet, COMPRESSION zstd);
`

const SQLDuckDBMemory = `SELECT * FROM duckdb_memory();`

// TablePlaceholder is replaced by the replicas table in user queries.
const TablePlaceholder = "$replicas"
