package media

import (
	"context"
	"errors"
	"io"
	"os"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidID    = errors.New("invalid file id")
)

// FileInfo describes a stored file.
type FileInfo struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// Uploader re-hosts a file and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename, contentType string) (FileInfo, error)
}

// Downloader fetches a URL into a temporary local file.
type Downloader interface {
	Download(ctx context.Context, url string, cookies map[string]string) (*Download, error)
}

// Download is a fetched file on local disk; callers must Remove it.
type Download struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

func (d *Download) Open() (*os.File, error) {
	return os.Open(d.Path)
}

func (d *Download) Remove() {
	if d != nil && d.Path != "" {
		_ = os.Remove(d.Path)
	}
}
