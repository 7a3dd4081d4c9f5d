package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/shared"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// Node types whose string inputs name a file already on the backend.
var uploadClassTypes = map[string]bool{
	"LoadImage":           true,
	"VHS_LoadAudioUpload": true,
	"VHS_LoadVideo":       true,
}

// MediaStore hosts a local file on a backend and returns the handle nodes refer to it by.
type MediaStore interface {
	UploadMedia(ctx context.Context, r io.Reader, filename string) (string, error)
}

// UploadFunc adapts a plain function to MediaStore.
type UploadFunc func(ctx context.Context, r io.Reader, filename string) (string, error)

func (f UploadFunc) UploadMedia(ctx context.Context, r io.Reader, filename string) (string, error) {
	return f(ctx, r, filename)
}

// ParamApplier writes caller arguments into a copy of a workflow graph.
type ParamApplier struct {
	downloader media.Downloader
	logger     *slog.Logger
}

func NewParamApplier(downloader media.Downloader, logger *slog.Logger) *ParamApplier {
	return &ParamApplier{
		downloader: downloader,
		logger:     logger.With("component", "param_applier"),
	}
}

// ShouldUpload reports whether value has to be re-hosted before it can be written to the mapped node.
func ShouldUpload(m workflow.ParamMapping, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	if m.HandlerType != workflow.HandlerUploadRel && !uploadClassTypes[m.NodeClassType] {
		return false
	}
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Apply returns a deep copy of graph with every mapped parameter set.
// Keys in params that no mapping references are ignored.
func (a *ParamApplier) Apply(ctx context.Context, graph workflow.Graph, md *workflow.Metadata, params map[string]any, store MediaStore, cookies map[string]string) (workflow.Graph, error) {
	out := graph.Clone()
	for _, m := range md.MappingInfo.ParamMappings {
		value, err := resolveValue(md, m, params)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}

		node, ok := out[m.NodeID]
		if !ok {
			a.logger.Warn("Mapped node not found in workflow", "node_id", m.NodeID, "param", m.ParamName)
			continue
		}

		if ShouldUpload(m, value) {
			value, err = a.Rehost(ctx, m.ParamName, value.(string), store, cookies)
			if err != nil {
				return nil, err
			}
		}

		if node.Inputs == nil {
			node.Inputs = make(map[string]any)
		}
		node.Inputs[m.InputField] = value
	}
	return out, nil
}

func resolveValue(md *workflow.Metadata, m workflow.ParamMapping, params map[string]any) (any, error) {
	if v, ok := params[m.ParamName]; ok && v != nil {
		return v, nil
	}
	p := md.Params[m.ParamName]
	if p != nil && p.Default != nil {
		return p.Default, nil
	}
	if p != nil && p.Required {
		return nil, shared.NewParseError("", fmt.Sprintf("Required parameter '%s' is missing", m.ParamName), nil)
	}
	return nil, nil
}

// Rehost downloads url and uploads it through store, returning the store's handle.
func (a *ParamApplier) Rehost(ctx context.Context, param, url string, store MediaStore, cookies map[string]string) (string, error) {
	if store == nil {
		return "", shared.NewMediaError("upload_media", fmt.Sprintf("no media store for parameter '%s'", param), nil)
	}
	dl, err := a.downloader.Download(ctx, url, cookies)
	if err != nil {
		return "", shared.NewMediaError("upload_media", fmt.Sprintf("download for parameter '%s' failed", param), err)
	}
	defer dl.Remove()

	f, err := dl.Open()
	if err != nil {
		return "", shared.NewMediaError("upload_media", "open downloaded file", err)
	}
	defer f.Close()

	handle, err := store.UploadMedia(ctx, f, dl.Filename)
	if err != nil {
		return "", shared.NewMediaError("upload_media", fmt.Sprintf("upload for parameter '%s' failed", param), err)
	}
	a.logger.Info("Re-hosted parameter media", "param", param, "url", url, "handle", handle)
	return handle, nil
}
