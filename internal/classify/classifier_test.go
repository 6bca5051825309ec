package classify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"

	"github.com/iwanhae/qdblocks/internal/metrics"
	"github.com/iwanhae/qdblocks/internal/record"
)

type ClassifierTestSuite struct {
	suite.Suite
	fs      afero.Fs
	results string
	c       *Classifier
}

func (s *ClassifierTestSuite) SetupTest() {
	s.fs = afero.NewOsFs()
	s.results = filepath.Join(s.T().TempDir(), "results")
	s.Require().NoError(s.fs.MkdirAll(s.results, 0755))
	s.c = NewClassifier(s.fs, Config{ResultsDir: s.results}, log.NewNopLogger())
}

func TestClassifierTestSuite(t *testing.T) {
	suite.Run(t, new(ClassifierTestSuite))
}

func (s *ClassifierTestSuite) path(elem ...string) string {
	return filepath.Join(append([]string{s.results}, elem...)...)
}

func (s *ClassifierTestSuite) writeFile(path, content string) {
	s.Require().NoError(s.fs.MkdirAll(filepath.Dir(path), 0755))
	s.Require().NoError(afero.WriteFile(s.fs, path, []byte(content), 0644))
}

// writeRun places a record with the given query text in dir/QueryDataBlocks.
func (s *ClassifierTestSuite) writeRun(dir, query string) {
	data, err := record.Marshal(&record.ExtractionRecord{Query: query})
	s.Require().NoError(err)
	s.writeFile(filepath.Join(dir, recordsDir, "hive_1.json"), string(data))
}

func (s *ClassifierTestSuite) exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	s.Require().NoError(err)
	return ok
}

func (s *ClassifierTestSuite) TestNoRun() {
	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.True(out.Skipped)
	s.False(s.exists(s.path(dataDir)), "data is only created when there is a run")
}

func (s *ClassifierTestSuite) TestFirstRun() {
	s.writeRun(s.path(namenodeDir), "select 1")
	before := testutil.ToFloat64(metrics.RunsClassified.WithLabelValues("created"))

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("q1", out.Folder)
	s.Equal("q1_1", out.Run)
	s.False(out.Appended)
	s.Equal("select 1", out.Query)
	s.True(s.exists(s.path(dataDir, "q1", "q1_1", recordsDir, "hive_1.json")))
	s.False(s.exists(s.path(namenodeDir)))
	s.Equal(before+1, testutil.ToFloat64(metrics.RunsClassified.WithLabelValues("created")))
}

func (s *ClassifierTestSuite) TestSameQueryJoinsFolder() {
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select * from t")
	s.writeRun(s.path(namenodeDir), "select * from t")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.True(out.Appended)
	s.Equal("q1_2", out.Run)
	s.True(s.exists(s.path(dataDir, "q1", "q1_2", recordsDir)))
	s.False(s.exists(s.path(dataDir, "q2")))
}

func (s *ClassifierTestSuite) TestDifferentQueryCreatesFolder() {
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select * from t")
	s.writeRun(s.path(namenodeDir), "select * from u")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.False(out.Appended)
	s.Equal("q2", out.Folder)
	s.True(s.exists(s.path(dataDir, "q2", "q2_1", recordsDir)))
}

func (s *ClassifierTestSuite) TestNaturalOrder() {
	for i := 1; i <= 10; i++ {
		s.writeRun(s.path(dataDir, FolderName(i), RunName(FolderName(i), 1)), "select "+FolderName(i))
	}
	s.writeRun(s.path(dataDir, "q9", "q9_2"), "select q9")
	s.writeRun(s.path(dataDir, "q9", "q9_10"), "select q9")

	s.writeRun(s.path(namenodeDir), "select new")
	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("q11", out.Folder)

	s.writeRun(s.path(namenodeDir), "select q9")
	out, err = s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("q9_11", out.Run)
}

func (s *ClassifierTestSuite) TestFirstMatchWins() {
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select 1")
	s.writeRun(s.path(dataDir, "q2", "q2_1"), "select 2")
	s.writeRun(s.path(dataDir, "q3", "q3_1"), "select 2")
	s.writeRun(s.path(namenodeDir), "select 2")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("q2_2", out.Run)
	s.False(s.exists(s.path(dataDir, "q3", "q3_2")))
}

func (s *ClassifierTestSuite) TestMissingRecordNeverMatches() {
	s.Require().NoError(s.fs.MkdirAll(s.path(dataDir, "q1", "q1_1"), 0755))
	s.Require().NoError(s.fs.MkdirAll(s.path(namenodeDir, recordsDir), 0755))

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("", out.Query)
	s.Equal("q2", out.Folder)
}

func (s *ClassifierTestSuite) TestMalformedRecordNeverMatches() {
	s.writeFile(s.path(dataDir, "q1", "q1_1", recordsDir, "a.json"), "{not json")
	s.writeFile(s.path(namenodeDir, recordsDir, "a.json"), "{not json")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("q2_1", out.Run)
}

func (s *ClassifierTestSuite) TestStrayFilesAreNotRecords() {
	s.writeFile(s.path(dataDir, "q1", "q1_1", recordsDir, "hive_a.json"), `{"query":"select 1"}`)
	s.writeFile(s.path(dataDir, "q1", "q1_1", recordsDir, "README"), "notes")
	s.writeFile(s.path(namenodeDir, recordsDir, "hive_b.json"), `{"query":"select 1"}`)
	s.writeFile(s.path(namenodeDir, recordsDir, ".hive_b.json.123.tmp"), "{trunc")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	s.Equal("select 1", out.Query)
	s.Equal("q1", out.Folder)
	s.Equal("q1_2", out.Run)
}

func (s *ClassifierTestSuite) TestMalformedFolderName() {
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select 1")
	s.Require().NoError(s.fs.MkdirAll(s.path(dataDir, "zzz"), 0755))
	s.writeRun(s.path(namenodeDir), "select 2")

	_, err := s.c.Classify(context.Background())
	s.Require().Error(err)
	s.True(s.exists(s.path(namenodeDir, recordsDir, "hive_1.json")), "nothing is moved")
}

func (s *ClassifierTestSuite) TestMalformedRunName() {
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select 1")
	s.Require().NoError(s.fs.MkdirAll(s.path(dataDir, "q1", "q1_x"), 0755))
	s.writeRun(s.path(namenodeDir), "select 1")

	_, err := s.c.Classify(context.Background())
	s.Require().Error(err)
	s.True(s.exists(s.path(namenodeDir)))
}

func (s *ClassifierTestSuite) TestNodeLogsRelocated() {
	s.writeRun(s.path(namenodeDir), "select 1")
	s.writeFile(s.path(namenodeDir, "hdfs_read.log"), "namenode")
	s.writeFile(s.path("node1", "hdfs_read.log"), "one")
	s.writeFile(s.path("node2", "hdfs_read.log"), "two")
	s.Require().NoError(s.fs.MkdirAll(s.path("node3"), 0755))
	s.writeFile(s.path("other", "hdfs_read.log"), "other")

	out, err := s.c.Classify(context.Background())
	s.Require().NoError(err)
	logs := s.path(dataDir, "q1", "q1_1", nodeLogsDir)
	s.ElementsMatch([]string{
		filepath.Join(logs, "hdfs_read_node1.log"),
		filepath.Join(logs, "hdfs_read_node2.log"),
	}, out.NodeLogs)

	content, err := afero.ReadFile(s.fs, filepath.Join(logs, "hdfs_read_node2.log"))
	s.Require().NoError(err)
	s.Equal("two", string(content))
	s.False(s.exists(s.path("node1", "hdfs_read.log")))
	s.True(s.exists(s.path("other", "hdfs_read.log")), "entries without the node marker are left alone")
	s.True(s.exists(s.path(dataDir, "q1", "q1_1", "hdfs_read.log")), "the namenode log moves with the run")
}

func (s *ClassifierTestSuite) TestCustomNodeMarker() {
	c := NewClassifier(s.fs, Config{ResultsDir: s.results, NodeMarker: "worker"}, log.NewNopLogger())
	s.writeRun(s.path(namenodeDir), "select 1")
	s.writeFile(s.path("worker-a", "hdfs_read.log"), "a")
	s.writeFile(s.path("node1", "hdfs_read.log"), "one")

	out, err := c.Classify(context.Background())
	s.Require().NoError(err)
	s.Len(out.NodeLogs, 1)
	s.True(s.exists(s.path("node1", "hdfs_read.log")))
}

func (s *ClassifierTestSuite) TestClean() {
	s.writeFile(s.path("node3", "sub", "file.log"), "x")
	s.writeFile(s.path("node1", "hdfs_read.log"), "x")
	s.writeRun(s.path(namenodeDir), "select 1")
	s.writeRun(s.path(dataDir, "q1", "q1_1"), "select 1")
	s.writeFile(s.path("other", "file.log"), "x")
	before := testutil.ToFloat64(metrics.NodePathsDeleted)

	removed, err := s.c.Clean(context.Background())
	s.Require().NoError(err)
	s.Equal(5, removed)
	s.Equal(before+5, testutil.ToFloat64(metrics.NodePathsDeleted))

	s.False(s.exists(s.path("node3", "sub", "file.log")))
	s.False(s.exists(s.path("node3", "sub")))
	s.False(s.exists(s.path("node3")))
	s.False(s.exists(s.path("node1")))
	s.True(s.exists(s.path(namenodeDir, recordsDir, "hive_1.json")))
	s.True(s.exists(s.path(dataDir, "q1", "q1_1", recordsDir, "hive_1.json")))
	s.True(s.exists(s.path("other", "file.log")))
}

func (s *ClassifierTestSuite) TestCleanMissingResults() {
	c := NewClassifier(s.fs, Config{ResultsDir: s.path("absent")}, log.NewNopLogger())
	removed, err := c.Clean(context.Background())
	s.Require().NoError(err)
	s.Zero(removed)
}

func (s *ClassifierTestSuite) TestCleanCollectsFailures() {
	s.writeFile(s.path("node1", "a.log"), "x")
	s.writeFile(s.path("node2", "b.log"), "x")
	c := NewClassifier(afero.NewReadOnlyFs(s.fs), Config{ResultsDir: s.results}, log.NewNopLogger())

	removed, err := c.Clean(context.Background())
	s.Require().Error(err)
	s.Zero(removed)
	s.True(s.exists(s.path("node2", "b.log")))
}
