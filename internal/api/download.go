package api

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
)

// Download serves an artifact from the output directory as an attachment.
// GET /download?path=<path>
func (h *Handler) Download(c echo.Context) error {
	raw := c.QueryParam("path")
	if raw == "" {
		return writeError(c, &failure.Error{Kind: failure.InvalidRequest, Field: "path", Message: "missing 'path' parameter"})
	}
	path, err := resolveArtifact(h.svc.OutputDir(), raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.Attachment(path, filepath.Base(path))
}

// resolveArtifact maps raw onto an existing regular file inside outputDir.
// raw may be a path as returned by the workflows or a name relative to
// outputDir. Symlinks are resolved before the containment check.
func resolveArtifact(outputDir, raw string) (string, error) {
	root, err := filepath.Abs(outputDir)
	if err != nil {
		return "", failure.Wrap(failure.Internal, err, "output directory is unusable")
	}
	realRoot := root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = r
	}

	candidates := []string{raw}
	if !filepath.IsAbs(raw) {
		candidates = append(candidates, filepath.Join(outputDir, raw))
	}

	missing := false
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil || !(within(root, abs) || within(realRoot, abs)) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if errors.Is(err, fs.ErrNotExist) {
			missing = true
			continue
		}
		if err != nil || !within(realRoot, resolved) {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			missing = true
			continue
		}
		return resolved, nil
	}
	if missing {
		return "", failure.New(failure.ResultNotFound, "file not found")
	}
	return "", &failure.Error{Kind: failure.PathValidationFailure, Field: "path", Message: "path is outside the output directory"}
}

// within reports whether path is strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
