// Package models knows which whisper.cpp ggml models exist and fetches them
// into the local models directory.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseURL is the HuggingFace repository whisper.cpp publishes its ggml models in.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Model describes one downloadable ggml model.
type Model struct {
	Name         string // file name, e.g. "ggml-base.en.bin"
	SizeMB       int
	Multilingual bool
}

// Catalog lists the ggml models published upstream, smallest first.
var Catalog = []Model{
	{Name: "ggml-tiny.en.bin", SizeMB: 75},
	{Name: "ggml-tiny.bin", SizeMB: 75, Multilingual: true},
	{Name: "ggml-base.en.bin", SizeMB: 142},
	{Name: "ggml-base.bin", SizeMB: 142, Multilingual: true},
	{Name: "ggml-small.en.bin", SizeMB: 466},
	{Name: "ggml-small.bin", SizeMB: 466, Multilingual: true},
	{Name: "ggml-medium.en.bin", SizeMB: 1500},
	{Name: "ggml-medium.bin", SizeMB: 1500, Multilingual: true},
	{Name: "ggml-large-v3.bin", SizeMB: 2900, Multilingual: true},
	{Name: "ggml-large-v3-turbo.bin", SizeMB: 1600, Multilingual: true},
}

// Lookup finds a catalog entry. The "ggml-" prefix and ".bin" suffix are
// optional, so "base.en" resolves to ggml-base.en.bin.
func Lookup(name string) (Model, bool) {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin")
	for _, m := range Catalog {
		if m.Name == "ggml-"+name+".bin" {
			return m, true
		}
	}
	return Model{}, false
}

// Status pairs a catalog entry with its local install state.
type Status struct {
	Model
	Path      string
	Installed bool
}

// List reports every catalog model and whether it is present in dir.
func List(dir string) []Status {
	out := make([]Status, 0, len(Catalog))
	for _, m := range Catalog {
		path := filepath.Join(dir, m.Name)
		info, err := os.Stat(path)
		out = append(out, Status{
			Model:     m,
			Path:      path,
			Installed: err == nil && info.Size() > 0,
		})
	}
	return out
}

// Downloader fetches catalog models into Dir.
type Downloader struct {
	BaseURL string
	Dir     string
	Client  *http.Client
	Out     io.Writer // progress output; nil discards it
}

// Download fetches the named model and returns its local path. An existing
// non-empty file is left as is. The body is streamed to a .tmp file and
// renamed into place once complete.
func (d *Downloader) Download(ctx context.Context, name string) (string, error) {
	m, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("models: unknown model %q (see 'models list')", name)
	}

	out := d.Out
	if out == nil {
		out = io.Discard
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("models: creating models dir: %w", err)
	}

	destPath := filepath.Join(d.Dir, m.Name)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(out, "  Model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	url := strings.TrimSuffix(base, "/") + "/" + m.Name
	fmt.Fprintf(out, "  Downloading %s\n", m.Name)
	fmt.Fprintf(out, "  URL: %s\n", url)
	fmt.Fprintf(out, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("models: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: downloading %s: %w", m.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download %s failed: HTTP %d", m.Name, resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("models: creating temp file: %w", err)
	}

	pr := &progressWriter{
		writer: f,
		out:    out,
		total:  resp.ContentLength,
		label:  m.Name,
	}

	written, err := io.Copy(pr, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: writing model file: %w", err)
	}
	if written == 0 {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: download %s returned an empty body", m.Name)
	}

	fmt.Fprintf(out, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: moving model file: %w", err)
	}

	return destPath, nil
}

// progressWriter wraps an io.Writer and prints download progress to out.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
