package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers just enough of the S3 API for bucket checks and uploads.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	puts     []string
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.puts = append(f.puts, r.URL.Path)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestArchive(t *testing.T, fake *fakeS3) *S3Archive {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	a, err := NewS3Archive(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "test",
		SecretKey: "testsecret",
		Bucket:    "leads",
	})
	require.NoError(t, err)
	return a
}

func TestArchiveCreatesBucketOnceAndUploads(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{buckets: map[string]bool{}}
	a := newTestArchive(t, fake)

	lead := domain.LeadSnapshot{
		SessionID:   "sess-1",
		Phone:       "11999999999",
		CollectedAt: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, a.Notify(context.Background(), lead))
	lead.SessionID = "sess-2"
	require.NoError(t, a.Notify(context.Background(), lead))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"/leads/leads/2024/03/sess-1.json", "/leads/leads/2024/03/sess-2.json"}, fake.puts)

	bucketChecks := 0
	for _, r := range fake.requests {
		if r == "HEAD /leads" {
			bucketChecks++
		}
	}
	assert.Equal(t, 1, bucketChecks)
	assert.True(t, fake.buckets["leads"])
}

func TestArchiveRequiresSessionID(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, &fakeS3{buckets: map[string]bool{}})
	assert.Error(t, a.Notify(context.Background(), domain.LeadSnapshot{}))
}

func TestS3ConfigComplete(t *testing.T) {
	t.Parallel()

	assert.False(t, S3Config{}.Complete())
	assert.True(t, S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b", Bucket: "c"}.Complete())
	_, err := NewS3Archive(S3Config{Endpoint: "minio:9000"})
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	lead := domain.LeadSnapshot{SessionID: "abc", CollectedAt: time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)}
	assert.Equal(t, "leads/2025/12/abc.json", ObjectKey(lead))
}
