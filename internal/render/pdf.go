// Package render turns letter HTML into PDF files using a locally installed
// Chromium-family browser in headless mode.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// renderTimeout bounds a single browser invocation.
const renderTimeout = 20 * time.Second

// browserCandidates is searched in order. The first binary found on PATH or
// at a known install location wins.
var browserCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"msedge",
	"microsoft-edge",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
}

// Renderer produces PDFs from HTML documents.
type Renderer struct {
	browserPath string
}

// New locates a usable browser. It returns an error when none is installed;
// callers degrade to HTML-only output in that case.
func New() (*Renderer, error) {
	for _, candidate := range browserCandidates {
		if filepath.IsAbs(candidate) {
			if _, err := os.Stat(candidate); err == nil {
				return &Renderer{browserPath: candidate}, nil
			}
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			return &Renderer{browserPath: path}, nil
		}
	}
	return nil, fmt.Errorf("no headless-capable browser found")
}

// NewWithBrowser builds a renderer around an explicit browser binary.
func NewWithBrowser(path string) *Renderer {
	return &Renderer{browserPath: path}
}

// RenderFile converts an HTML file to a PDF at outputPath. Success is
// defined by the output file existing afterwards; the browser's exit status
// alone is not trustworthy across versions.
func (r *Renderer) RenderFile(ctx context.Context, htmlPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.browserPath,
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--no-pdf-header-footer",
		"--print-to-pdf="+outputPath,
		htmlPath,
	)
	out, err := cmd.CombinedOutput()

	if _, statErr := os.Stat(outputPath); statErr == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("pdf render timed out after %s", renderTimeout)
	}
	log.Debug().Err(err).Str("output", string(out)).Msg("pdf render failed")
	return fmt.Errorf("pdf render produced no output: %w", err)
}

// RenderHTML writes html to a temp file next to outputPath and renders it.
func (r *Renderer) RenderHTML(ctx context.Context, html, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "render-*.html")
	if err != nil {
		return fmt.Errorf("creating temp html: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp html: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp html: %w", err)
	}
	return r.RenderFile(ctx, tmpPath, outputPath)
}
