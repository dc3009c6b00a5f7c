package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileScanner reads a result document previously written by a scan engine.
type FileScanner struct {
	path string
	opts Options
}

func NewFileScanner(path string, opts Options) *FileScanner {
	return &FileScanner{path: path, opts: opts}
}

func (s *FileScanner) Scan(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read scan result")
	}
	doc, err := DecodeDocument(data, filepath.Ext(s.path))
	if err != nil {
		return nil, err
	}

	table := s.opts.Table
	if table == "" {
		table = doc.TableName
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.Wrapf(ErrMalformed, "scan result %s names no table", s.path)
	}
	return NewResult(s.opts.Dialect, table, s.opts.CompletedAt(), doc), nil
}

// DecodeDocument parses a JSON document, or YAML when ext is .yaml/.yml.
func DecodeDocument(data []byte, ext string) (Document, error) {
	var doc Document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, errors.Wrapf(ErrMalformed, "parse yaml: %v", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, errors.Wrapf(ErrMalformed, "parse json: %v", err)
		}
	}
	return doc, nil
}
