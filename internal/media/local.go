package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/comfy-mcp/comfy-mcp/internal/shared"
)

const metaSuffix = ".meta.json"

var (
	fileIDPattern = regexp.MustCompile(`^[a-f0-9]{32}(\.[A-Za-z0-9]{1,10})?$`)
	extPattern    = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// LocalStorage keeps uploaded files on disk under uuid-based ids and serves them from readURL/files/<id>.
type LocalStorage struct {
	root    string
	readURL string
	logger  *slog.Logger
}

func NewLocalStorage(root, readURL string, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", root, err)
	}
	return &LocalStorage{
		root:    root,
		readURL: strings.TrimRight(readURL, "/"),
		logger:  logger.With("component", "media_storage"),
	}, nil
}

func (s *LocalStorage) Upload(_ context.Context, r io.Reader, filename, contentType string) (FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}

	pf, err := renameio.NewPendingFile(s.path(id))
	if err != nil {
		return FileInfo{}, shared.NewMediaError("upload", "failed to create file", err)
	}
	defer func() { _ = pf.Cleanup() }()

	size, err := io.Copy(pf, r)
	if err != nil {
		return FileInfo{}, shared.NewMediaError("upload", "failed to write file", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return FileInfo{}, shared.NewMediaError("upload", "failed to commit file", err)
	}

	info := FileInfo{
		FileID:      id,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URL:         s.URL(id),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return FileInfo{}, err
	}
	if err := renameio.WriteFile(s.path(id)+metaSuffix, meta, 0o644); err != nil {
		_ = os.Remove(s.path(id))
		return FileInfo{}, shared.NewMediaError("upload", "failed to write file info", err)
	}

	s.logger.Debug("Stored file", "file_id", id, "filename", filename, "size", size)
	return info, nil
}

// URL is where a stored id is served.
func (s *LocalStorage) URL(id string) string {
	return s.readURL + "/files/" + id
}

func (s *LocalStorage) path(id string) string {
	return filepath.Join(s.root, id)
}

func (s *LocalStorage) Info(id string) (FileInfo, error) {
	if !fileIDPattern.MatchString(id) {
		return FileInfo{}, ErrInvalidID
	}
	st, err := os.Stat(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileInfo{}, ErrFileNotFound
		}
		return FileInfo{}, err
	}

	info := FileInfo{FileID: id, Filename: id, ContentType: ContentTypeFor(id), Size: st.Size(), URL: s.URL(id)}
	if data, err := os.ReadFile(s.path(id) + metaSuffix); err == nil {
		var stored FileInfo
		if json.Unmarshal(data, &stored) == nil {
			info.Filename = stored.Filename
			info.ContentType = stored.ContentType
		}
	}
	return info, nil
}

func (s *LocalStorage) Exists(id string) bool {
	_, err := s.Info(id)
	return err == nil
}

// Open returns the stored file; the caller closes it.
func (s *LocalStorage) Open(id string) (io.ReadSeekCloser, FileInfo, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, FileInfo{}, err
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, FileInfo{}, err
	}
	return f, info, nil
}
