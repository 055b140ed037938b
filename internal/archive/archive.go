// Package archive bundles a completed task's deliverables into a single zip
// served from the static /archives route.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/unicodeveloper/supplement-research/internal/models"
)

// maxDeliverableSize caps a single downloaded deliverable at 50 MiB.
const maxDeliverableSize = 50 << 20

// Builder downloads deliverables from the upstream file host and zips them.
// The bearer callback supplies the same credential the task client uses,
// since deliverable URLs live behind the research API's auth.
type Builder struct {
	dir    string
	bearer func() string
	client *http.Client
}

func NewBuilder(dir string, bearer func() string) *Builder {
	if bearer == nil {
		bearer = func() string { return "" }
	}
	return &Builder{
		dir:    dir,
		bearer: bearer,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Build downloads every deliverable and writes {taskID}.zip into the archive
// dir. Per-file failures are collected rather than fatal; the archive is
// built from whatever downloaded. An error is returned only when nothing
// could be archived.
func (b *Builder) Build(ctx context.Context, taskID string, deliverables []models.Deliverable) (string, []string, error) {
	var files []string
	var failures []string

	for _, d := range deliverables {
		path, err := b.download(ctx, d)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", d.Type, err))
			continue
		}
		files = append(files, path)
	}
	defer cleanup(files)

	if len(files) == 0 {
		return "", failures, fmt.Errorf("no deliverables could be downloaded for task %s", taskID)
	}

	archivePath := filepath.Join(b.dir, taskID+".zip")
	if err := writeZip(archivePath, files); err != nil {
		return "", failures, fmt.Errorf("creating archive: %w", err)
	}

	return archivePath, failures, nil
}

func (b *Builder) download(ctx context.Context, d models.Deliverable) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return "", err
	}
	if token := b.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading deliverable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deliverable host returned %d", resp.StatusCode)
	}

	name := fmt.Sprintf("%s-%s.%s", d.Type, uuid.NewString(), d.Type)
	path := filepath.Join(b.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxDeliverableSize)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("saving file: %w", err)
	}

	return path, nil
}

func writeZip(archivePath string, files []string) error {
	archive, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	zw := zip.NewWriter(archive)
	defer zw.Close()

	for _, file := range files {
		if err := addFileToZip(zw, file); err != nil {
			return err
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, file)
	return err
}

func cleanup(files []string) {
	for _, f := range files {
		os.Remove(f)
	}
}
