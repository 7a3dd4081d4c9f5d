package executor

import (
	"fmt"
	"path"
	"strings"

	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// Node output keys that list produced files.
var mediaOutputKeys = []string{"images", "gifs", "audio"}

var (
	imageExts = extSet("png", "jpg", "jpeg", "webp", "bmp", "tiff")
	videoExts = extSet("mp4", "mov", "avi", "webm", "gif")
	audioExts = extSet("mp3", "wav", "flac", "ogg", "aac", "m4a", "wma", "opus")
)

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

// ViewURLFunc builds a fetchable URL for a file reported by a node.
type ViewURLFunc func(filename, subfolder, folderType string) string

// HasCollectableOutput reports whether a node output carries media or text.
func HasCollectableOutput(out map[string]any) bool {
	for _, k := range mediaOutputKeys {
		if _, ok := out[k]; ok {
			return true
		}
	}
	_, ok := out["text"]
	return ok
}

type nodeMedia struct {
	images, videos, audios []string
}

// splitMedia sorts the files a node reported into images, videos and audios by extension.
func splitMedia(out map[string]any, viewURL ViewURLFunc) nodeMedia {
	var nm nodeMedia
	for _, key := range mediaOutputKeys {
		items, ok := out[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			file, ok := item.(map[string]any)
			if !ok {
				continue
			}
			filename, _ := file["filename"].(string)
			if filename == "" {
				continue
			}
			subfolder, _ := file["subfolder"].(string)
			folderType, _ := file["type"].(string)
			if folderType == "" {
				folderType = "output"
			}
			url := viewURL(filename, subfolder, folderType)

			ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
			switch {
			case imageExts[ext]:
				nm.images = append(nm.images, url)
			case videoExts[ext]:
				nm.videos = append(nm.videos, url)
			case audioExts[ext]:
				nm.audios = append(nm.audios, url)
			}
		}
	}
	return nm
}

func nodeTexts(out map[string]any) ([]string, bool) {
	v, ok := out["text"]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []any:
		texts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				texts = append(texts, s)
			} else {
				texts = append(texts, fmt.Sprint(item))
			}
		}
		return texts, true
	case []string:
		return t, true
	default:
		return []string{fmt.Sprint(t)}, true
	}
}

// groupByVar keys per-node lists by output variable, falling back to the node id.
// Nodes sharing a variable are appended in node order.
func groupByVar(byNode map[string][]string, outputVars map[string]string) (map[string][]string, []string) {
	ids := make([]string, 0, len(byNode))
	for id := range byNode {
		ids = append(ids, id)
	}
	workflow.SortNodeIDs(ids)

	grouped := make(map[string][]string)
	var flat []string
	seen := make(map[string]bool)
	for _, id := range ids {
		key := id
		if v, ok := outputVars[id]; ok && v != "" {
			key = v
		}
		grouped[key] = append(grouped[key], byNode[id]...)
		for _, u := range byNode[id] {
			if !seen[u] {
				seen[u] = true
				flat = append(flat, u)
			}
		}
	}
	return grouped, flat
}

// BuildResult classifies raw node outputs into a completed Result.
func BuildResult(promptID string, outputs map[string]map[string]any, outputVars map[string]string, viewURL ViewURLFunc) *Result {
	res := NewResult(promptID)
	res.Status = StatusCompleted

	images := map[string][]string{}
	videos := map[string][]string{}
	audios := map[string][]string{}
	texts := map[string][]string{}
	raw := make(map[string]any, len(outputs))

	for id, out := range outputs {
		raw[id] = out
		nm := splitMedia(out, viewURL)
		if len(nm.images) > 0 {
			images[id] = nm.images
		}
		if len(nm.videos) > 0 {
			videos[id] = nm.videos
		}
		if len(nm.audios) > 0 {
			audios[id] = nm.audios
		}
		if t, ok := nodeTexts(out); ok {
			texts[id] = t
		}
	}

	if len(images) > 0 {
		res.ImagesByVar, res.Images = groupByVar(images, outputVars)
	}
	if len(videos) > 0 {
		res.VideosByVar, res.Videos = groupByVar(videos, outputVars)
	}
	if len(audios) > 0 {
		res.AudiosByVar, res.Audios = groupByVar(audios, outputVars)
	}
	if len(texts) > 0 {
		res.TextsByVar, res.Texts = groupByVar(texts, outputVars)
	}
	res.Outputs = raw
	return res
}
