package archive

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

var at = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func sampleRun() *pipeline.Run {
	return &pipeline.Run{
		Summary: types.Summary{
			RunID:             "r-1",
			TableName:         "shop.orders",
			IsPassed:          true,
			SchemaCheckResult: types.SchemaCheck{ExecutionDT: types.NewDateTime(at)},
		},
		Measurements: []record.Measurement{{Metric: "row_count", Value: "3", TableName: "shop.orders", ExecutionDatetime: at}},
		TestResults:  []record.TestResult{{ID: "t1", Title: "rows", TableName: "shop.orders", Passed: true, ExecutionDatetime: at}},
	}
}

type fakeUploader struct {
	enabled bool
	err     error
	names   []string
	data    [][]byte
}

func (f *fakeUploader) Enabled() bool { return f.enabled }

func (f *fakeUploader) Upload(_ context.Context, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.names = append(f.names, name)
	f.data = append(f.data, data)
	return "mem://" + name, nil
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "shop.orders/20240501T080000Z-r-1.json.zstd", ObjectName(sampleRun().Summary))
	assert.Equal(t, "dq/runs/x", joinPrefix("/dq/runs/", "x"))
	assert.Equal(t, "x", joinPrefix("", "x"))
}

func TestEncodeDecode(t *testing.T) {
	run := sampleRun()
	run.WriteErr = errors.New("store down")

	data, err := Encode(NewArtifact(run))
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, run.Summary.RunID, got.Summary.RunID)
	assert.Equal(t, "store down", got.WriteError)
	require.Len(t, got.Measurements, 1)
	assert.True(t, got.Measurements[0].ExecutionDatetime.Equal(at))
}

func TestArchiver_Publish(t *testing.T) {
	on := &fakeUploader{enabled: true}
	off := &fakeUploader{enabled: false}
	a := NewArchiver(nil, on, off, NoopUploader{})

	require.NoError(t, a.Publish(context.Background(), sampleRun()))
	assert.Equal(t, []string{"shop.orders/20240501T080000Z-r-1.json.zstd"}, on.names)
	assert.Empty(t, off.names)

	got, err := Decode(bytes.NewReader(on.data[0]))
	require.NoError(t, err)
	assert.Equal(t, "shop.orders", got.Summary.TableName)
}

func TestArchiver_UploadFailure(t *testing.T) {
	ok := &fakeUploader{enabled: true}
	broken := &fakeUploader{enabled: true, err: errors.New("denied")}
	err := NewArchiver(nil, broken, ok).Publish(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	// remaining uploaders still receive the artifact
	assert.Len(t, ok.names, 1)
}

func TestArchiver_Disabled(t *testing.T) {
	a := NewArchiver(nil, NoopUploader{})
	assert.False(t, a.Enabled())
	assert.NoError(t, a.Publish(context.Background(), sampleRun()))
}

func TestDisabledCloudUploaders(t *testing.T) {
	g, err := NewGCS(context.Background(), config.GCSConfig{})
	require.NoError(t, err)
	assert.False(t, g.Enabled())
	url, err := g.Upload(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Empty(t, url)

	s, err := NewS3(context.Background(), config.S3Config{})
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestS3Uploader_PathStyleEndpoint(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPut {
			path = r.URL.Path
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := NewS3(context.Background(), config.S3Config{
		Enabled:         true,
		Bucket:          "dq",
		Prefix:          "runs",
		Region:          "us-east-1",
		Endpoint:        ts.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	url, err := u.Upload(context.Background(), "shop.orders/a.json.zstd", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "s3://dq/runs/shop.orders/a.json.zstd", url)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasSuffix(path, "/dq/runs/shop.orders/a.json.zstd"), path)
}
