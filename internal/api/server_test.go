package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/iwanhae/qdblocks/internal/record"
	"github.com/iwanhae/qdblocks/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	rec := &record.ExtractionRecord{
		Query: "select * from t",
		Tables: []record.TableRecord{{
			TableName: "db.t",
			Files: []record.FileRecord{{Path: "/wh/t/0", Blocks: []record.BlockRecord{{
				Index:    0,
				Replicas: []record.ReplicaRecord{{ID: 1, Location: "dn1:9866", StorageType: "DISK"}, {ID: 2, Location: "dn2:9866", StorageType: "SSD"}},
			}}}},
		}},
	}
	data, err := record.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/results/data/q1/q1_1/QueryDataBlocks", "hive_1.json"), data, 0644))

	ix, err := storage.Open(ctx, "", log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	_, err = ix.Rebuild(ctx, fs, "/results/data")
	require.NoError(t, err)

	srv := httptest.NewServer(New(ix, "0", log.NewNopLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleQuery(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"query": "SELECT location FROM $replicas ORDER BY replica_id"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 2)
	require.Equal(t, "dn1:9866", body.Results[0]["location"])
	require.Equal(t, "SELECT location FROM replicas ORDER BY replica_id", body.SQL)
}

func TestHandleQueryErrors(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "bad body", method: http.MethodPost, body: "{", status: http.StatusBadRequest},
		{name: "empty query", method: http.MethodPost, body: `{"query": ""}`, status: http.StatusBadRequest},
		{name: "bad sql", method: http.MethodPost, body: `{"query": "SELECT * FROM nowhere"}`, status: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+"/query", strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Index struct {
			Counts storage.Counts `json:"counts"`
			Errors []string       `json:"errors"`
		} `json:"index"`
		Hosts []map[string]any `json:"hosts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, storage.Counts{Replicas: 2, Queries: 1, Runs: 1, Files: 1, Hosts: 2}, body.Index.Counts)
	require.Empty(t, body.Index.Errors)
	require.Len(t, body.Hosts, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
