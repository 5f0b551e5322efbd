package packager

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 " + r.URL.Path))
	})
	mux.HandleFunc("/missing.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow.pdf", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadAllPartialSuccess(t *testing.T) {
	srv := documentServer(t)
	dir := t.TempDir()
	d := NewDownloader(config.DownloadConfig{Timeout: "200ms", Concurrency: 2}, srv.Client(), nil)

	links := []string{
		srv.URL + "/ok/a.pdf",
		srv.URL + "/missing.pdf",
		srv.URL + "/slow.pdf",
		srv.URL + "/ok/b.pdf",
		"http://127.0.0.1:1/unreachable.pdf",
	}
	paths, fails := d.DownloadAll(context.Background(), links, dir, "sess")

	assert.Equal(t, []string{
		filepath.Join(dir, "sess_0.pdf"),
		filepath.Join(dir, "sess_3.pdf"),
	}, paths)
	require.Len(t, fails, 3)
	assert.Equal(t, links[1], fails[0].URL)
	assert.Contains(t, fails[0].Reason, "404")
	assert.Equal(t, failure.DownloadFailure, failure.KindOf(fails[0].Err))

	raw, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 /ok/b.pdf", string(raw))

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".partial-*"))
	assert.Empty(t, leftovers)
}

func TestDownloadAllRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = w.Write([]byte("pdf"))
	}))
	defer srv.Close()

	d := NewDownloader(config.DownloadConfig{Concurrency: 2}, srv.Client(), nil)
	links := make([]string, 8)
	for i := range links {
		links[i] = srv.URL + "/doc.pdf"
	}
	paths, fails := d.DownloadAll(context.Background(), links, t.TempDir(), "p")
	assert.Len(t, paths, 8)
	assert.Empty(t, fails)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDownloadAllNoLinks(t *testing.T) {
	d := NewDownloader(config.DownloadConfig{}, nil, nil)
	paths, fails := d.DownloadAll(context.Background(), nil, t.TempDir(), "x")
	assert.Empty(t, paths)
	assert.Empty(t, fails)
}

func TestArchiveEmpty(t *testing.T) {
	dir := t.TempDir()
	path, err := Archive(nil, dir, "s_files.zip")
	require.NoError(t, err)
	assert.Empty(t, path)
	_, statErr := os.Stat(filepath.Join(dir, "s_files.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestArchiveUsesBaseNames(t *testing.T) {
	src := t.TempDir()
	var inputs []string
	for _, name := range []string{"a.pdf", "b.pdf"} {
		p := filepath.Join(src, name)
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o644))
		inputs = append(inputs, p)
	}

	out := t.TempDir()
	path, err := Archive(inputs, out, "s_files.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "s_files.zip"), path)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names)
}

func TestArchiveMissingInput(t *testing.T) {
	out := t.TempDir()
	_, err := Archive([]string{filepath.Join(out, "gone.pdf")}, out, "x.zip")
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(out, "x.zip"))
	assert.True(t, os.IsNotExist(statErr))
}
