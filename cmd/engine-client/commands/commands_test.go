package commands

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/moolen/engine-client/internal/config"
	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// stubEngine serves a single job "farequote" with a fixed set of buckets,
// paged two at a time.
type stubEngine struct {
	url     string
	buckets []results.Bucket

	mu       sync.Mutex
	uploaded []string
	closed   bool
}

func newStubEngine(t *testing.T) *stubEngine {
	t.Helper()
	s := &stubEngine{}
	start := time.Date(2014, 6, 27, 0, 0, 0, 0, time.UTC)
	for i, score := range []float64{12, 0, 87.5, 40, 3} {
		ts := start.Add(time.Duration(i) * time.Hour)
		s.buckets = append(s.buckets, results.Bucket{
			Timestamp:                ts,
			Epoch:                    ts.Unix(),
			AnomalyScore:             score,
			MaxNormalizedProbability: score / 2,
			RecordCount:              1,
			Records: []results.AnomalyRecord{{
				Function:     "metric",
				FieldName:    "responsetime",
				ByFieldName:  "airline",
				ByFieldValue: "AAL",
				Probability:  float64(5-i) / 1000,
				AnomalyScore: score,
			}},
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusCreated, results.CreateJobResponse{ID: "farequote"})
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "farequote" {
			writeTestJSON(w, http.StatusNotFound, results.APIError{ErrorCode: 20101, Message: "No job with id '" + r.PathValue("id") + "'"})
			return
		}
		writeTestJSON(w, http.StatusOK, results.SingleDocument[results.JobDetails]{
			Exists:   true,
			Document: &results.JobDetails{ID: "farequote", Status: results.JobStatusRunning},
		})
	})
	mux.HandleFunc("POST /data/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				writeTestJSON(w, http.StatusBadRequest, results.APIError{ErrorCode: 30001, Message: "Content is not gzip"})
				return
			}
			body = gz
		}
		data, _ := io.ReadAll(body)
		s.mu.Lock()
		s.uploaded = append(s.uploaded, string(data))
		s.mu.Unlock()
		lines := int64(strings.Count(strings.TrimSpace(string(data)), "\n"))
		writeTestJSON(w, http.StatusAccepted, results.MultiDataPostResult{Responses: []results.DataPostResponse{{
			JobID:         r.PathValue("id"),
			UploadSummary: &results.DataCounts{InputRecordCount: lines, ProcessedRecordCount: lines},
		}}})
	})
	mux.HandleFunc("POST /data/{id}/close", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		writeTestJSON(w, http.StatusAccepted, results.Acknowledgement{Acknowledged: true})
	})
	mux.HandleFunc("GET /results/{id}/buckets", func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		end := min(skip+2, len(s.buckets))
		page := results.Pagination[results.Bucket]{
			HitCount:      int64(len(s.buckets)),
			Skip:          skip,
			Take:          2,
			DocumentCount: end - skip,
		}
		for _, b := range s.buckets[skip:end] {
			if r.URL.Query().Get("expand") != "true" {
				b.Records = nil
			}
			page.Documents = append(page.Documents, b)
		}
		if end < len(s.buckets) {
			page.NextPage = s.url + "/results/farequote/buckets?skip=" + strconv.Itoa(end) + "&take=2"
		}
		writeTestJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("GET /results/{id}/buckets/{epoch}", func(w http.ResponseWriter, r *http.Request) {
		for _, b := range s.buckets {
			if b.ID() == r.PathValue("epoch") {
				writeTestJSON(w, http.StatusOK, results.SingleDocument[results.Bucket]{Exists: true, Document: &b})
				return
			}
		}
		writeTestJSON(w, http.StatusNotFound, results.SingleDocument[results.Bucket]{})
	})
	mux.HandleFunc("GET /results/{id}/records", func(w http.ResponseWriter, r *http.Request) {
		var records []results.AnomalyRecord
		for _, b := range s.buckets {
			records = append(records, b.Records...)
		}
		writeTestJSON(w, http.StatusOK, results.Pagination[results.AnomalyRecord]{
			HitCount:      int64(len(records)),
			DocumentCount: len(records),
			Documents:     records,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	data, _ := testJSON.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	s := &session{}
	t.Cleanup(s.close)

	cmd := newRootCmd(s)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const farequoteCSV = `time,airline,responsetime,sourcetype
2014-06-27 00:00:00Z,AAL,132.2046,farequote
2014-06-27 00:10:00Z,JZA,990.4628,farequote
`

func TestFarequoteCommand(t *testing.T) {
	engine := newStubEngine(t)
	data := filepath.Join(t.TempDir(), "farequote.csv")
	require.NoError(t, os.WriteFile(data, []byte(farequoteCSV), 0644))

	out, err := run(t, "--url", engine.url, "--log-level", "error", "farequote", data)
	require.NoError(t, err)

	assert.Equal(t, []string{farequoteCSV}, engine.uploaded)
	assert.True(t, engine.closed)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Time, Anomaly Score, Unusual Score", lines[0])
	assert.Equal(t, "2014-06-27T00:00:00Z,12.000000,6.000000", lines[1])
	assert.Equal(t, "2014-06-27T04:00:00Z,3.000000,1.500000", lines[5])
	assert.Contains(t, out, "The bucket at time 2014-06-27 02:00:00Z has the largest anomaly score with a value of 87.500000")
	assert.Contains(t, out, `"byFieldValue": "AAL"`)
}

func TestFarequoteCommand_MissingFile(t *testing.T) {
	engine := newStubEngine(t)
	_, err := run(t, "--url", engine.url, "farequote", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open data file")
}

func TestBucketsCommand(t *testing.T) {
	engine := newStubEngine(t)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "--url", engine.url, "buckets", "farequote", "--take", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "ANOMALY SCORE")
		assert.Equal(t, 6, strings.Count(out, "\n"), "header plus five buckets")
	})

	t.Run("json sorted by score following links", func(t *testing.T) {
		out, err := run(t, "--url", engine.url, "buckets", "farequote", "--json", "--sort-by-score", "--follow-next-page")
		require.NoError(t, err)
		var buckets []results.Bucket
		require.NoError(t, testJSON.Unmarshal([]byte(out), &buckets))
		require.Len(t, buckets, 5)
		assert.Equal(t, 87.5, buckets[0].AnomalyScore)
		assert.Equal(t, 0.0, buckets[4].AnomalyScore)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := run(t, "--url", engine.url, "buckets", "farequote", "--start", "now-1h", "--end", "now-2h")
		assert.Error(t, err)
	})
}

func TestBucketCommand(t *testing.T) {
	engine := newStubEngine(t)

	out, err := run(t, "--url", engine.url, "bucket", "farequote", engine.buckets[2].ID(), "--expand")
	require.NoError(t, err)
	var b results.Bucket
	require.NoError(t, testJSON.Unmarshal([]byte(out), &b))
	assert.Equal(t, 87.5, b.AnomalyScore)
	assert.Len(t, b.Records, 1)

	_, err = run(t, "--url", engine.url, "bucket", "farequote", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRecordsCommand(t *testing.T) {
	engine := newStubEngine(t)

	out, err := run(t, "--url", engine.url, "records", "farequote", "--sort", "normalizedProbability", "--desc")
	require.NoError(t, err)
	assert.Contains(t, out, "airline=AAL")
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestRecordsCommand_ByProbability(t *testing.T) {
	engine := newStubEngine(t)

	out, err := run(t, "--url", engine.url, "records", "farequote", "--by-probability", "--json")
	require.NoError(t, err)

	var records []results.AnomalyRecord
	require.NoError(t, testJSON.Unmarshal([]byte(out), &records))
	require.Len(t, records, 5)
	assert.Equal(t, 0.001, records[0].Probability)
	assert.Equal(t, 3.0, records[0].AnomalyScore, "the latest bucket holds the least probable record")
	for i := 1; i < len(records); i++ {
		assert.LessOrEqual(t, records[i-1].Probability, records[i].Probability)
	}
}

func TestJobCommands(t *testing.T) {
	engine := newStubEngine(t)
	dir := t.TempDir()
	template := filepath.Join(dir, "job.yaml")

	out, err := run(t, "job", "template", template)
	require.NoError(t, err)
	assert.Contains(t, out, template)

	cfg, err := job.LoadConfiguration(template)
	require.NoError(t, err)
	assert.Equal(t, job.FarequoteConfiguration(), cfg)

	out, err = run(t, "--url", engine.url, "job", "create", template)
	require.NoError(t, err)
	assert.Equal(t, "farequote\n", out)

	out, err = run(t, "--url", engine.url, "job", "get", "farequote")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "RUNNING"`)

	_, err = run(t, "--url", engine.url, "job", "get", "unknown")
	assert.Error(t, err)

	data := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(data, []byte(farequoteCSV), 0644))
	out, err = run(t, "--url", engine.url, "job", "upload", "farequote", data, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "PROCESSED")

	out, err = run(t, "--url", engine.url, "job", "close", "farequote")
	require.NoError(t, err)
	assert.Equal(t, "Closed job farequote\n", out)
}

func TestRootCommand_InvalidURL(t *testing.T) {
	_, err := run(t, "--url", "localhost:8080", "job", "get", "farequote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --url")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	engine := newStubEngine(t)
	path := filepath.Join(t.TempDir(), "engine-client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: "+engine.url+"\npage_size: 2\nbucket_cache:\n  enabled: true\n"), 0644))

	out, err := run(t, "--config", path, "bucket", "farequote", engine.buckets[0].ID())
	require.NoError(t, err)
	assert.Contains(t, out, `"anomalyScore": 12`)
}

func TestConfigInit(t *testing.T) {
	engine := newStubEngine(t)
	path := filepath.Join(t.TempDir(), "engine-client.yaml")

	out, err := run(t, "--url", engine.url, "config", "init", path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote configuration to "+path+"\n", out)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	want := config.Default()
	want.BaseURL = engine.url
	assert.Equal(t, want, cfg)

	_, err = run(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "init", "--force", path)
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBaseURL, cfg.BaseURL)

	_, err = run(t, "--url", engine.url, "config", "init", "--force", path)
	require.NoError(t, err)
	out, err = run(t, "--config", path, "bucket", "farequote", engine.buckets[2].ID())
	require.NoError(t, err)
	assert.Contains(t, out, `"anomalyScore": 87.5`)
}

func TestConfigInit_InvalidURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-client.yaml")
	_, err := run(t, "--url", "localhost:8080", "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --url")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
