package engine

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/moolen/engine-client/internal/job"
	"github.com/moolen/engine-client/internal/results"
	"github.com/moolen/engine-client/internal/transport"
	"github.com/stretchr/testify/require"
)

var testJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// fakeEngine is an in-memory Engine API with the paging behaviour of the
// real service: skip/take offsets, documentCount and absolute nextPage URLs.
// When mounted under a prefix it emits path-absolute links instead, the way
// the service does behind a reverse proxy.
type fakeEngine struct {
	t      *testing.T
	server *httptest.Server
	prefix string

	mu       sync.Mutex
	jobs     map[string]*fakeJob
	nextID   int
	requests []*http.Request
	uploads  []fakeUpload

	bucketLookups atomic.Int64
}

type fakeJob struct {
	cfg     job.JobConfiguration
	details results.JobDetails
	closed  bool
	events  []time.Time
	buckets []results.Bucket
}

type fakeUpload struct {
	jobID    string
	encoding string
	payload  string
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	return newFakeEngineAt(t, "")
}

// newFakeEngineAt serves the API below prefix, e.g. "/engine/v2".
func newFakeEngineAt(t *testing.T, prefix string) *fakeEngine {
	t.Helper()
	f := &fakeEngine{t: t, prefix: prefix, jobs: make(map[string]*fakeJob)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", f.createJob)
	mux.HandleFunc("GET /jobs/{id}", f.getJob)
	mux.HandleFunc("DELETE /jobs/{id}", f.deleteJob)
	mux.HandleFunc("POST /data/{id}", f.upload)
	mux.HandleFunc("POST /data/{id}/close", f.closeJob)
	mux.HandleFunc("GET /results/{id}/buckets", f.listBuckets)
	mux.HandleFunc("GET /results/{id}/buckets/{epoch}", f.getBucket)
	mux.HandleFunc("GET /results/{id}/records", f.listRecords)

	var handler http.Handler = mux
	if prefix != "" {
		handler = http.StripPrefix(prefix, mux)
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

// root is the API base URL clients are configured with.
func (f *fakeEngine) root() string {
	return f.server.URL + f.prefix
}

// linkBase is what paging links are built on: the full origin for an
// unprefixed engine, only the mount path otherwise.
func (f *fakeEngine) linkBase() string {
	if f.prefix != "" {
		return f.prefix
	}
	return f.server.URL
}

// client returns a client for the fake engine. Transport options given
// here are applied after the server's own HTTP client.
func (f *fakeEngine) client(opts ...Option) *Client {
	f.t.Helper()
	tr := transport.NewHTTP(transport.WithHTTPClient(f.server.Client()))
	c, err := NewClient(f.root(), append([]Option{WithTransport(tr)}, opts...)...)
	require.NoError(f.t, err)
	return c
}

// paths returns the request paths seen so far, prefix included.
func (f *fakeEngine) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.URL.Path
	}
	return out
}

// requestCount returns how many requests matched method and path prefix.
func (f *fakeEngine) requestCount(method, pathPrefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && strings.HasPrefix(r.URL.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (f *fakeEngine) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// skips returns the skip parameter of every collection request to path.
func (f *fakeEngine) skips(path string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, r := range f.requests {
		if r.URL.Path == path {
			n, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeEngine) lastUpload() fakeUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.uploads)
	return f.uploads[len(f.uploads)-1]
}

// seedClosedJob installs a finished job holding buckets.
func (f *fakeEngine) seedClosedJob(id string, buckets []results.Bucket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := job.FarequoteConfiguration()
	cfg.ID = id
	f.jobs[id] = &fakeJob{
		cfg:     *cfg,
		details: results.JobDetails{ID: id, Status: results.JobStatusClosed},
		closed:  true,
		buckets: buckets,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := testJSON.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeAPIError(w http.ResponseWriter, status int, code int64, msg string) {
	writeJSON(w, status, results.APIError{ErrorCode: code, Message: msg})
}

func (f *fakeEngine) lookup(w http.ResponseWriter, r *http.Request) (*fakeJob, bool) {
	id := r.PathValue("id")
	j, ok := f.jobs[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, 20101, fmt.Sprintf("No job with id '%s'", id))
	}
	return j, ok
}

func (f *fakeEngine) createJob(w http.ResponseWriter, r *http.Request) {
	var cfg job.JobConfiguration
	if err := testJSON.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeAPIError(w, http.StatusBadRequest, 10001, "Cannot parse job configuration")
		return
	}
	if len(cfg.AnalysisConfig.Detectors) == 0 {
		writeAPIError(w, http.StatusBadRequest, 10101, "No detectors configured")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := cfg.ID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("20140519113920-%05d", f.nextID)
	}
	if _, exists := f.jobs[id]; exists {
		writeAPIError(w, http.StatusBadRequest, 10110, fmt.Sprintf("The job cannot be created with the Id '%s'. The Id is already used.", id))
		return
	}

	f.jobs[id] = &fakeJob{
		cfg: cfg,
		details: results.JobDetails{
			ID:              id,
			Description:     cfg.Description,
			Status:          results.JobStatusRunning,
			CreateTime:      time.Date(2014, 5, 19, 11, 39, 20, 0, time.UTC),
			AnalysisConfig:  &cfg.AnalysisConfig,
			DataDescription: &cfg.DataDescription,
			Location:        f.root() + "/jobs/" + id,
		},
	}
	writeJSON(w, http.StatusCreated, results.CreateJobResponse{ID: id})
}

func (f *fakeEngine) getJob(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.lookup(w, r)
	if !ok {
		return
	}
	details := j.details
	details.Counts = &results.DataCounts{ProcessedRecordCount: int64(len(j.events)), BucketCount: int64(len(j.buckets))}
	writeJSON(w, http.StatusOK, results.SingleDocument[results.JobDetails]{Exists: true, Type: "job", Document: &details})
}

func (f *fakeEngine) deleteJob(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lookup(w, r); !ok {
		return
	}
	delete(f.jobs, r.PathValue("id"))
	writeJSON(w, http.StatusOK, results.Acknowledgement{Acknowledged: true})
}

func (f *fakeEngine) upload(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	encoding := r.Header.Get("Content-Encoding")
	if encoding == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, 30001, "Content is not gzip")
			return
		}
		defer gz.Close()
		body = gz
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, 30001, "Cannot read upload: "+err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	f.uploads = append(f.uploads, fakeUpload{jobID: id, encoding: encoding, payload: string(payload)})

	j, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if j.closed {
		writeJSON(w, http.StatusConflict, results.MultiDataPostResult{Responses: []results.DataPostResponse{{
			JobID: id,
			Error: &results.APIError{ErrorCode: 20105, Message: "Job " + id + " is closed"},
		}}})
		return
	}

	counts := j.ingest(string(payload))
	writeJSON(w, http.StatusAccepted, results.MultiDataPostResult{Responses: []results.DataPostResponse{{
		JobID:         id,
		UploadSummary: counts,
	}}})
}

// ingest parses delimited rows with a header line.
func (j *fakeJob) ingest(payload string) *results.DataCounts {
	dd := j.cfg.DataDescription
	counts := &results.DataCounts{InputBytes: int64(len(payload))}

	scanner := bufio.NewScanner(strings.NewReader(payload))
	timeIdx := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cols := strings.Split(line, dd.FieldDelimiter)
		if timeIdx < 0 {
			for i, c := range cols {
				if c == dd.TimeField {
					timeIdx = i
				}
			}
			continue
		}
		counts.InputRecordCount++
		if timeIdx >= len(cols) {
			counts.MissingFieldCount++
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04:05Z0700", cols[timeIdx])
		if err != nil {
			counts.InvalidDateCount++
			continue
		}
		counts.ProcessedRecordCount++
		j.events = append(j.events, ts)
	}
	return counts
}

func (f *fakeEngine) closeJob(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if j.closed {
		writeAPIError(w, http.StatusBadRequest, 20104, "Job "+j.details.ID+" is already closed")
		return
	}

	span := j.cfg.AnalysisConfig.BucketSpan
	perBucket := map[int64]int{}
	for _, ts := range j.events {
		perBucket[ts.Unix()/span*span]++
	}
	for epoch, n := range perBucket {
		j.buckets = append(j.buckets, results.Bucket{
			Timestamp:   time.Unix(epoch, 0).UTC(),
			Epoch:       epoch,
			RecordCount: n,
			EventCount:  int64(n),
		})
	}
	sort.Slice(j.buckets, func(a, b int) bool { return j.buckets[a].Epoch < j.buckets[b].Epoch })

	j.closed = true
	j.details.Status = results.JobStatusClosed
	writeJSON(w, http.StatusAccepted, results.Acknowledgement{Acknowledged: true})
}

// view renders a bucket for a response. Without expand the records keep
// their scores but lose cause detail.
func view(b results.Bucket, expand bool) results.Bucket {
	if expand || len(b.Records) == 0 {
		return b
	}
	records := make([]results.AnomalyRecord, len(b.Records))
	for i, rec := range b.Records {
		rec.Causes = nil
		records[i] = rec
	}
	b.Records = records
	return b
}

func pageParams(r *http.Request) (skip, take int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	take, err := strconv.Atoi(r.URL.Query().Get("take"))
	if err != nil || take <= 0 {
		take = 100
	}
	return skip, take
}

func paginate[T any](base string, r *http.Request, all []T) results.Pagination[T] {
	skip, take := pageParams(r)
	if skip > len(all) {
		skip = len(all)
	}
	end := skip + take
	if end > len(all) {
		end = len(all)
	}

	page := results.Pagination[T]{
		HitCount:      int64(len(all)),
		Skip:          skip,
		Take:          take,
		DocumentCount: end - skip,
		Documents:     append([]T{}, all[skip:end]...),
	}
	q := r.URL.Query()
	if end < len(all) {
		q.Set("skip", strconv.Itoa(end))
		q.Set("take", strconv.Itoa(take))
		page.NextPage = base + r.URL.Path + "?" + q.Encode()
	}
	if skip > 0 {
		prev := skip - take
		if prev < 0 {
			prev = 0
		}
		q.Set("skip", strconv.Itoa(prev))
		page.PreviousPage = base + r.URL.Path + "?" + q.Encode()
	}
	return page
}

func (f *fakeEngine) listBuckets(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.lookup(w, r)
	if !ok {
		return
	}

	expand := r.URL.Query().Get("expand") == "true"
	minScore, _ := strconv.ParseFloat(r.URL.Query().Get("anomalyScore"), 64)
	var selected []results.Bucket
	for _, b := range j.buckets {
		if b.AnomalyScore >= minScore {
			selected = append(selected, view(b, expand))
		}
	}
	writeJSON(w, http.StatusOK, paginate(f.linkBase(), r, selected))
}

func (f *fakeEngine) getBucket(w http.ResponseWriter, r *http.Request) {
	f.bucketLookups.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.lookup(w, r)
	if !ok {
		return
	}

	epoch, _ := strconv.ParseInt(r.PathValue("epoch"), 10, 64)
	for _, b := range j.buckets {
		if b.Epoch == epoch {
			doc := view(b, r.URL.Query().Get("expand") == "true")
			writeJSON(w, http.StatusOK, results.SingleDocument[results.Bucket]{Exists: true, Type: "bucket", Document: &doc})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, results.SingleDocument[results.Bucket]{Exists: false, Type: "bucket"})
}

func (f *fakeEngine) listRecords(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.lookup(w, r)
	if !ok {
		return
	}

	var all []results.AnomalyRecord
	for _, b := range j.buckets {
		all = append(all, b.Records...)
	}
	if r.URL.Query().Get("sort") == "normalizedProbability" {
		desc := r.URL.Query().Get("desc") == "true"
		sort.SliceStable(all, func(a, b int) bool {
			if desc {
				return all[a].NormalizedProbability > all[b].NormalizedProbability
			}
			return all[a].NormalizedProbability < all[b].NormalizedProbability
		})
	}
	writeJSON(w, http.StatusOK, paginate(f.linkBase(), r, all))
}

// makeBuckets builds n hourly buckets starting 2014-06-27.
func makeBuckets(n int) []results.Bucket {
	start := time.Date(2014, 6, 27, 0, 0, 0, 0, time.UTC)
	out := make([]results.Bucket, n)
	for i := range out {
		ts := start.Add(time.Duration(i) * time.Hour)
		out[i] = results.Bucket{
			Timestamp:                ts,
			Epoch:                    ts.Unix(),
			AnomalyScore:             float64((i * 37) % 100),
			MaxNormalizedProbability: float64((i * 53) % 100),
			EventCount:               int64(1000 + i),
		}
	}
	return out
}

// flakyTransport fails selected exchanges with a transport error without
// touching the request body, then delegates the rest.
type flakyTransport struct {
	inner transport.Transport
	calls atomic.Int64
	// failCall is the 1-based exchange to fail; zero fails none.
	failCall int64
	// failAll fails every exchange.
	failAll bool
}

func (ft *flakyTransport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	n := ft.calls.Add(1)
	if ft.failAll || n == ft.failCall {
		return nil, &transport.TransportError{Method: req.Method, URL: req.URL, Err: io.ErrUnexpectedEOF}
	}
	return ft.inner.Do(ctx, req)
}
