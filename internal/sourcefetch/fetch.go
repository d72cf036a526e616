// Package sourcefetch downloads test media and ffmpeg builds, verifies
// their checksums and unpacks archives.
package sourcefetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BotBlake/jellybench/api"
)

// ErrChecksum means the downloaded file does not match its published hash.
var ErrChecksum = errors.New("checksum mismatch")

// Progress is called during a download with the bytes received so far and
// the total size (0 when unknown).
type Progress func(done, total int64)

// Fetcher downloads files into a target directory, reusing files that are
// already present and checksum-valid.
type Fetcher struct {
	http *http.Client
	log  *slog.Logger
}

func NewFetcher(log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{http: http.DefaultClient, log: log}
}

// Obtain returns the local path of the file at sourceURL, downloading it if
// missing or invalid. When hashes contain a supported entry the file is
// verified against it; otherwise it is accepted as-is.
func (f *Fetcher) Obtain(ctx context.Context, targetDir, sourceURL string, hashes []api.Hash, progress Progress) (string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	name := filepath.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("source url %s has no file name", sourceURL)
	}
	path := filepath.Join(targetDir, name)
	expected := matchHash(hashes)

	if _, err := os.Stat(path); err == nil {
		ok, err := verify(path, expected)
		if err != nil {
			return "", err
		}
		if ok {
			f.log.Debug("reusing existing file", slog.String("path", path))
			return path, nil
		}
		// Stale or corrupt copy; re-download.
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove stale file: %w", err)
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	if err := f.download(ctx, sourceURL, path, progress); err != nil {
		return "", err
	}

	ok, err := verify(path, expected)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrChecksum, name)
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, sourceURL, path string, progress Progress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: server replied %d", sourceURL, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	reader := io.Reader(resp.Body)
	if progress != nil {
		reader = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("download %s: %w", sourceURL, err)
	}
	return nil
}

// matchHash picks the first hash with a supported algorithm. Only sha256 is
// supported today.
func matchHash(hashes []api.Hash) string {
	for _, h := range hashes {
		if h.Type == "sha256" {
			return h.Hash
		}
	}
	return ""
}

// verify reports whether the file matches the expected sha256. An empty
// expectation always verifies.
func verify(path, expected string) (bool, error) {
	if expected == "" {
		return true, nil
	}
	actual, err := sha256File(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)
	p.fn(p.done, p.total)
	return n, err
}
