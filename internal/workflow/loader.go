package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/comfy-mcp/comfy-mcp/internal/shared"
)

// RemoteGraphSource fetches the API-format graph of a cloud-hosted workflow.
type RemoteGraphSource interface {
	GetWorkflowJSON(ctx context.Context, workflowID string) (json.RawMessage, error)
}

// Workflow is a parsed workflow file ready for execution.
type Workflow struct {
	Path     string
	Graph    Graph
	Metadata *Metadata
}

// Loader resolves workflow files, following source references through a RemoteGraphSource.
type Loader struct {
	parser *Parser
	remote RemoteGraphSource
	logger *slog.Logger
}

func NewLoader(parser *Parser, remote RemoteGraphSource, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{parser: parser, remote: remote, logger: logger}
}

func (l *Loader) Load(ctx context.Context, path, toolName string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.NewParseError("load_workflow", "failed to read workflow file", err)
	}

	title := TitleFor(path, toolName)

	if ref, ok := ReadSourceReference(data); ok {
		return l.loadReference(ctx, path, title, ref)
	}

	graph, err := DecodeGraph(data)
	if err != nil {
		return nil, shared.NewParseError("load_workflow", "", err)
	}
	md, err := l.parser.Parse(graph, title)
	if err != nil {
		return nil, err
	}
	return &Workflow{Path: path, Graph: graph, Metadata: md}, nil
}

func (l *Loader) loadReference(ctx context.Context, path, title string, ref *SourceReference) (*Workflow, error) {
	if ref.Source != SourceRunningHub {
		return nil, shared.NewParseError("load_workflow", fmt.Sprintf("source %q", ref.Source), ErrUnsupportedSource)
	}
	if l.remote == nil {
		return nil, shared.NewParseError("load_workflow", "", ErrRunningHubNotConfigured)
	}
	if ref.WorkflowID == "" {
		return nil, shared.NewParseError("load_workflow", "workflow reference has no workflow_id", nil)
	}

	l.logger.Info("Fetching RunningHub workflow graph", "workflow_id", ref.WorkflowID, "title", title)
	raw, err := l.remote.GetWorkflowJSON(ctx, ref.WorkflowID)
	if err != nil {
		return nil, shared.NewParseError("load_workflow", "failed to fetch RunningHub workflow "+ref.WorkflowID, err)
	}
	graph, err := DecodeGraph(raw)
	if err != nil {
		return nil, shared.NewParseError("load_workflow", "", err)
	}
	md, err := l.parser.Parse(graph, title)
	if err != nil {
		return nil, err
	}
	md.WorkflowID = ref.WorkflowID
	md.IsRunningHub = true
	return &Workflow{Path: path, Graph: graph, Metadata: md}, nil
}
