package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/comfy-mcp/comfy-mcp/internal/shared"
)

type HTTPDownloader struct {
	httpClient *http.Client
	tempDir    string
	logger     *slog.Logger
}

func NewHTTPDownloader(tempDir string, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDownloader{
		httpClient: &http.Client{},
		tempDir:    tempDir,
		logger:     logger.With("component", "media_downloader"),
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, rawURL string, cookies map[string]string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, shared.NewMediaError("download", "invalid URL "+rawURL, err)
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, shared.NewMediaError("download", "Download media failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, shared.NewMediaError("download", fmt.Sprintf("Download media failed: HTTP %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := FilenameFromURL(rawURL, contentType)

	if d.tempDir != "" {
		if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
			return nil, shared.NewMediaError("download", "failed to create temp dir", err)
		}
	}
	tmp, err := os.CreateTemp(d.tempDir, "media-*"+filepath.Ext(filename))
	if err != nil {
		return nil, shared.NewMediaError("download", "failed to create temp file", err)
	}
	size, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, shared.NewMediaError("download", "failed to save media", copyErr)
	}

	if ct, _, _ := mime.ParseMediaType(contentType); ct == "" || ct == "application/octet-stream" {
		contentType = ContentTypeFor(filename)
	}
	d.logger.Debug("Downloaded media", "url", rawURL, "path", tmp.Name(), "size", size)
	return &Download{Path: tmp.Name(), Filename: filename, ContentType: contentType, Size: size}, nil
}

// FilenameFromURL prefers a ?filename= query value (ComfyUI /view URLs) over the last path segment.
func FilenameFromURL(rawURL, contentType string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		if q := u.Query().Get("filename"); q != "" {
			name = path.Base(q)
		} else if base := path.Base(u.Path); base != "/" && base != "." {
			name = base
		}
	}
	if name == "" || name == "/" {
		name = "media"
	}
	if filepath.Ext(name) == "" {
		name += extensionFor(contentType)
	}
	return name
}

// mediaTypes covers the formats workflows produce; the stdlib table depends on the host's mime.types.
var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// ContentTypeFor guesses from the extension, falling back to application/octet-stream.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func extensionFor(contentType string) string {
	ct, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	for ext, known := range mediaTypes {
		if k, _, _ := mime.ParseMediaType(known); k == ct && ext != ".jpeg" {
			return ext
		}
	}
	if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
