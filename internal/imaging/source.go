package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Source is a reference to an image that has not been decoded yet.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource is a stored sample resolved relative to a base directory.
type FileSource struct {
	Base     string
	Filename string
}

func (s FileSource) Name() string { return s.Filename }

func (s FileSource) Path() string { return filepath.Join(s.Base, s.Filename) }

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.Path())
}

// BytesSource is an in-memory image, such as an upload.
type BytesSource struct {
	Label string
	Data  []byte
}

func (s BytesSource) Name() string { return s.Label }

func (s BytesSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// URLSource fetches the image over HTTP.
type URLSource struct {
	URL    string
	Client *http.Client
}

func (s URLSource) Name() string { return s.URL }

func (s URLSource) Open(ctx context.Context) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %s", s.URL, resp.Status)
	}
	return resp.Body, nil
}
