package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// Codec is the compression used for archived artifacts.
const Codec = "zstd"

// Artifact is the archived form of one run.
type Artifact struct {
	Summary      types.Summary        `json:"summary"`
	Measurements []record.Measurement `json:"measurements"`
	TestResults  []record.TestResult  `json:"test_results"`
	WriteError   string               `json:"write_error,omitempty"`
}

func NewArtifact(run *pipeline.Run) Artifact {
	a := Artifact{
		Summary:      run.Summary,
		Measurements: run.Measurements,
		TestResults:  run.TestResults,
	}
	if run.WriteErr != nil {
		a.WriteError = run.WriteErr.Error()
	}
	return a
}

// Encode returns the artifact as zstd-compressed JSON.
func Encode(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(zw).Encode(a); err != nil {
		_ = zw.Close()
		return nil, errors.Wrap(err, "encode artifact")
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(r io.Reader) (*Artifact, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var a Artifact
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "decode artifact")
	}
	return &a, nil
}

// ObjectName is the artifact path below an uploader's prefix:
// <table>/<YYYYMMDDTHHMMSSZ>-<run id>.json.zst
func ObjectName(s types.Summary) string {
	ts := s.SchemaCheckResult.ExecutionDT.UTC().Format("20060102T150405Z")
	table := strings.ReplaceAll(s.TableName, "/", "_")
	return path.Join(table, ts+"-"+s.RunID+".json."+Codec)
}

func joinPrefix(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type Uploader interface {
	Enabled() bool
	// Upload stores data under name and returns the object URL.
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

type NoopUploader struct{}

func (n NoopUploader) Enabled() bool {
	return false
}

func (n NoopUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	return "", nil
}

// Archiver uploads each run artifact to every enabled uploader.
type Archiver struct {
	uploaders []Uploader
	logger    *zap.Logger
}

func NewArchiver(logger *zap.Logger, uploaders ...Uploader) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{uploaders: uploaders, logger: logger}
}

// Enabled reports whether at least one uploader will receive artifacts.
func (a *Archiver) Enabled() bool {
	for _, u := range a.uploaders {
		if u.Enabled() {
			return true
		}
	}
	return false
}

func (a *Archiver) Name() string {
	return "archive"
}

func (a *Archiver) Publish(ctx context.Context, run *pipeline.Run) error {
	if !a.Enabled() {
		return nil
	}
	data, err := Encode(NewArtifact(run))
	if err != nil {
		return err
	}
	name := ObjectName(run.Summary)

	var failures []string
	for _, u := range a.uploaders {
		if !u.Enabled() {
			continue
		}
		url, err := u.Upload(ctx, name, data)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		a.logger.Info("archived run", zap.String("url", url), zap.Int("bytes", len(data)))
	}
	if len(failures) > 0 {
		return errors.Errorf("archive upload failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
