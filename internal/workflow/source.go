package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// SourceRunningHub marks a workflow file that only references a cloud-hosted graph.
const SourceRunningHub = "runninghub"

// SourceReference is the content of a file that points at a remotely stored graph.
type SourceReference struct {
	Source     string `json:"_source"`
	WorkflowID string `json:"workflow_id"`
}

// ReadSourceReference reports whether data is a source reference rather than a literal graph.
func ReadSourceReference(data []byte) (*SourceReference, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["_source"]; !ok {
		return nil, false
	}
	var ref SourceReference
	if err := json.Unmarshal(data, &ref); err != nil || ref.Source == "" {
		return nil, false
	}
	return &ref, true
}

// IsSourceReferenceFile peeks at a file on disk.
func IsSourceReferenceFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, ok := ReadSourceReference(data)
	return ok
}

// WriteSourceReference atomically writes a reference file at path.
func WriteSourceReference(path string, ref SourceReference) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}
	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}
