package materializer

import (
	"TargetFetcher/internal/config"
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/target"
	"TargetFetcher/pkg/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrFilesystem    = errors.New("filesystem error")
	ErrMissingSource = target.ErrMissingSource
	ErrTransport     = errors.New("transport error")
	ErrOwnership     = errors.New("ownership change error")
)

func NewHttpClient(cfg config.FetcherConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,          // Maximum idle connections across all hosts
		MaxIdleConnsPerHost: cfg.ConcurrentWorkers * 2, // Maximum idle connections per host
		IdleConnTimeout:     90 * time.Second,          // How long idle connections stay open
		DisableKeepAlives:   false,                     // Enable keep-alive (connection reuse)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.HTTPTimeout, // zero means no timeout
	}
}

func NewMaterializer(cfg config.FetcherConfig) *Materializer {
	return &Materializer{
		OwnerUID:   cfg.OwnerUID,
		HttpClient: NewHttpClient(cfg),
		Logger:     logging.GlobalLogger,
		Elevated:   IsElevated,
		Chown:      ChownUser,
	}
}

// Materialize makes t exist on disk. A destination that already exists, of
// any type, counts as done and is left untouched.
func (m *Materializer) Materialize(ctx context.Context, t target.Target) error {
	switch t.Kind() {
	case target.Directory:
		return m.materializeDirectory(t)
	case target.File:
		return m.materializeFile(ctx, t)
	default:
		err := fmt.Errorf("%w: %s", target.ErrUnknownKind, t.Kind())
		m.Logger.Error(t.String() + ": " + err.Error())
		return err
	}
}

func (m *Materializer) materializeDirectory(t target.Target) error {
	dest := t.Destination()
	if exists(dest) {
		// A plain file here also blocks creation; it is reported as done.
		m.Logger.Debug(t.String() + ": already exists")
		return nil
	}

	if err := os.Mkdir(dest, 0o755); err != nil {
		err = fmt.Errorf("%w: create directory %s: %w", ErrFilesystem, dest, err)
		m.Logger.Error(t.String() + ": " + err.Error())
		return err
	}
	if err := m.normalizeOwner(dest); err != nil {
		m.Logger.Error(t.String() + ": " + err.Error())
		return err
	}

	m.Logger.Info(t.String() + ": directory created")
	return nil
}

func (m *Materializer) materializeFile(ctx context.Context, t target.Target) error {
	dest := t.Destination()
	if exists(dest) {
		m.Logger.Info(t.String() + ": already exists")
		return nil
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		err = fmt.Errorf("%w: create parent %s: %w", ErrFilesystem, parent, err)
		m.Logger.Error(t.String() + ": " + err.Error())
		return err
	}

	m.Logger.Info(t.String() + ": download started")
	n, err := m.fetch(ctx, t)
	if err != nil {
		m.Logger.Error(t.String() + ": download failed: " + err.Error())
		return err
	}
	m.Logger.Info(fmt.Sprintf("%s: download succeeded (%d bytes)", t, n))
	return nil
}

// fetch streams the source into the staging file and renames it over the
// destination. On error the staging file stays behind; the next attempt
// truncates it.
func (m *Materializer) fetch(ctx context.Context, t target.Target) (int64, error) {
	dest := t.Destination()
	url, ok := t.Source()
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrMissingSource, dest)
	}

	tmpPath := dest + StagingSuffix
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create staging file %s: %w", ErrFilesystem, tmpPath, err)
	}
	defer utils.CloseStreamSafe(tmpFile)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %w", ErrTransport, err)
	}
	resp, err := m.HttpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %w", ErrTransport, url, err)
	}
	defer utils.CloseStreamSafe(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: GET %s: unexpected status %s", ErrTransport, url, resp.Status)
	}

	body := &sourceReader{r: resp.Body}
	written, err := io.Copy(tmpFile, body)
	if err != nil {
		if body.err != nil {
			return written, fmt.Errorf("%w: read %s after %d bytes: %w", ErrTransport, url, written, err)
		}
		return written, fmt.Errorf("%w: write %s: %w", ErrFilesystem, tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return written, fmt.Errorf("%w: close %s: %w", ErrFilesystem, tmpPath, err)
	}

	if err := m.normalizeOwner(tmpPath); err != nil {
		return written, err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return written, fmt.Errorf("%w: publish %s: %w", ErrFilesystem, dest, err)
	}
	return written, nil
}

func (m *Materializer) normalizeOwner(path string) error {
	if !m.Elevated() {
		return nil
	}
	if err := m.Chown(path, m.OwnerUID); err != nil {
		return fmt.Errorf("%w: chown %s to %d: %w", ErrOwnership, path, m.OwnerUID, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// sourceReader remembers read errors so a failed copy can be attributed to
// the network rather than the staging file.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
