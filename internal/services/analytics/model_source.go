package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	domrepo "VolGuard/internal/domain/repository"
	xhttp "VolGuard/pkg/http"

	"github.com/cenkalti/backoff/v4"
)

// FileModelSource reads the model artifact from the local filesystem.
type FileModelSource struct {
	path string
}

func NewFileModelSource(path string) *FileModelSource { return &FileModelSource{path: path} }

func (s *FileModelSource) Fetch(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return b, nil
}

func (s *FileModelSource) Describe() string { return "file://" + s.path }

// HTTPModelSource downloads the model artifact, retrying transient failures
// with exponential backoff. 4xx responses are not retried.
type HTTPModelSource struct {
	url        string
	client     *xhttp.Client
	maxElapsed time.Duration
}

func NewHTTPModelSource(url string, timeout, maxElapsed time.Duration) *HTTPModelSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return &HTTPModelSource{
		url:        url,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("volguard-model-fetch"), xhttp.WithMaxBody(1<<20)),
		maxElapsed: maxElapsed,
	}
}

func (s *HTTPModelSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.url == "" {
		return nil, fmt.Errorf("model url not configured")
	}
	var body []byte
	op := func() error {
		b, err := s.client.GetBytes(ctx, s.url, map[string]string{"Accept": "application/json"})
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *HTTPModelSource) Describe() string { return s.url }

var (
	_ domrepo.ModelSource = (*FileModelSource)(nil)
	_ domrepo.ModelSource = (*HTTPModelSource)(nil)
)
