// Package packager downloads linked documents and bundles session artifacts.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Failure is one link that could not be saved.
type Failure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Downloader fetches documents with a bounded per-request timeout.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
	workers int
	log     *zap.Logger
}

func NewDownloader(cfg config.DownloadConfig, client *http.Client, log *zap.Logger) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{client: client, timeout: cfg.RequestTimeout(), workers: cfg.Workers(), log: log}
}

// DownloadAll saves each link as <prefix>_<index>.pdf in destDir. Failures
// are collected per link and never stop the others. Saved paths keep link order.
func (d *Downloader) DownloadAll(ctx context.Context, links []string, destDir, prefix string) ([]string, []Failure) {
	if len(links) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		fails := make([]Failure, 0, len(links))
		for _, link := range links {
			fails = append(fails, newFailure(link, err))
		}
		return nil, fails
	}

	saved := make([]string, len(links))
	errs := make([]error, len(links))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, link := range links {
		g.Go(func() error {
			path := filepath.Join(destDir, fmt.Sprintf("%s_%d.pdf", prefix, i))
			if err := d.fetch(ctx, link, path); err != nil {
				errs[i] = err
				d.log.Warn("document download failed", zap.String("url", link), zap.Error(err))
				return nil
			}
			saved[i] = path
			return nil
		})
	}
	_ = g.Wait()

	var paths []string
	var fails []Failure
	for i := range links {
		if errs[i] != nil {
			fails = append(fails, newFailure(links[i], errs[i]))
			continue
		}
		paths = append(paths, saved[i])
	}
	return paths, fails
}

func newFailure(link string, err error) Failure {
	wrapped := failure.Wrap(failure.DownloadFailure, err, "download %s", link)
	return Failure{URL: link, Reason: err.Error(), Err: wrapped}
}

func (d *Downloader) fetch(ctx context.Context, link, path string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// Archive zips paths under their base names into destDir/name. An empty
// input produces no archive and returns "".
func Archive(paths []string, destDir, name string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(destDir, name)
	err := writeAtomic(target, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, p := range paths {
			if err := addFile(zw, p); err != nil {
				_ = zw.Close()
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	return target, nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// writeAtomic writes through a temp file in the same directory and renames it into place.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
