package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/Brownie44l1/classbench/internal/tensor"
)

// Session is a ready-to-run model graph. Run reports the time spent in the
// forward pass alone.
type Session interface {
	Run(t tensor.Tensor) ([]float32, time.Duration, error)
	Destroy() error
}

// Runtime builds sessions from raw artifact bytes.
type Runtime interface {
	NewSession(artifact []byte, d model.Descriptor) (Session, error)
}

// Fetcher retrieves model artifacts.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ArtifactFetcher reads artifacts from the filesystem, or over HTTP when the
// location is an http(s) URL.
type ArtifactFetcher struct {
	Client *http.Client
}

func (f ArtifactFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.ReadFile(location)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", location, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
