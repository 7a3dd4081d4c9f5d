package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/shared/metrics"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

// WorkflowLoader resolves a workflow file into its graph and metadata.
type WorkflowLoader interface {
	Load(ctx context.Context, path, toolName string) (*workflow.Workflow, error)
}

// Manager keeps the set of workflows exposed as MCP tools.
type Manager struct {
	dir       string
	loader    WorkflowLoader
	runner    executor.Executor
	registrar domain.ToolRegistrar
	metrics   metrics.Collector
	logger    *slog.Logger

	// opMu serializes load, unload and reload; mu guards entries for readers.
	opMu    sync.Mutex
	mu      sync.RWMutex
	entries map[string]*domain.Entry
}

func NewManager(dir string, loader WorkflowLoader, runner executor.Executor, registrar domain.ToolRegistrar, collector metrics.Collector, logger *slog.Logger) *Manager {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Manager{
		dir:       dir,
		loader:    loader,
		runner:    runner,
		registrar: registrar,
		metrics:   collector,
		logger:    logger.With("component", "workflow_manager"),
		entries:   make(map[string]*domain.Entry),
	}
}

// Dir is the directory workflows are copied to and loaded from.
func (m *Manager) Dir() string { return m.dir }

// Load parses file, registers it as a tool and copies it into the workflow directory.
// An existing tool with the same title is replaced.
func (m *Manager) Load(ctx context.Context, file, toolName string) domain.LoadResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.load(ctx, file, toolName)
}

func (m *Manager) load(ctx context.Context, file, toolName string) domain.LoadResult {
	if _, err := os.Stat(file); err != nil {
		m.logger.Error("Workflow file does not exist", "file", file)
		return domain.LoadResult{SourceFile: file, Error: fmt.Sprintf("Workflow file does not exist: %s", file)}
	}

	wf, err := m.loader.Load(ctx, file, toolName)
	if err != nil {
		m.logger.Error("Cannot parse workflow metadata", "file", file, "error", err)
		return domain.LoadResult{SourceFile: file, Error: fmt.Sprintf("Cannot parse workflow metadata: %v", err)}
	}
	md := wf.Metadata
	if err := workflow.ValidateTitle(md.Title); err != nil {
		m.logger.Error("Invalid tool name", "title", md.Title, "file", file)
		return domain.LoadResult{
			SourceFile: file,
			Error: fmt.Sprintf("Tool name '%s' format is invalid. Only letters, digits, underscores, dots, and hyphens are allowed.",
				md.Title),
		}
	}

	target := filepath.Join(m.dir, md.Title+".json")
	saved := m.saveIfNeeded(file, target)

	entry := &domain.Entry{
		Function:   m.dispatcher(wf),
		Metadata:   md,
		LoadedAt:   time.Now(),
		SourceFile: saved,
	}

	m.registrar.AddTool(BuildTool(md), m.toolHandler(md.Title))

	m.mu.Lock()
	m.entries[md.Title] = entry
	m.mu.Unlock()

	m.logger.Info("Workflow loaded", "name", md.Title, "params", len(md.Params), "runninghub", md.IsRunningHub)
	return domain.LoadResult{
		Success:    true,
		Name:       md.Title,
		SourceFile: file,
		SavedTo:    saved,
		Params:     describeParams(md),
	}
}

// saveIfNeeded copies file to target unless they are the same file. A failed copy is
// only logged: the tool stays registered from the original location.
func (m *Manager) saveIfNeeded(file, target string) string {
	absFile, err1 := filepath.Abs(file)
	absTarget, err2 := filepath.Abs(target)
	if err1 == nil && err2 == nil && absFile == absTarget {
		return target
	}

	data, err := os.ReadFile(file)
	if err == nil {
		if err = os.MkdirAll(m.dir, 0o755); err == nil {
			err = renameio.WriteFile(target, data, 0o644)
		}
	}
	if err != nil {
		m.logger.Warn("Failed to save workflow file", "file", file, "target", target, "error", err)
		return file
	}
	m.logger.Info("Workflow file saved", "target", target)
	return target
}

// Unload removes the tool, deletes its file from the workflow directory and forgets it.
func (m *Manager) Unload(ctx context.Context, name string) domain.UnloadResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	_, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return domain.UnloadResult{Name: name, Error: fmt.Sprintf("Workflow '%s' does not exist or not loaded", name)}
	}

	m.registrar.DeleteTools(name)

	removed := false
	path := filepath.Join(m.dir, name+".json")
	if err := os.Remove(path); err == nil {
		removed = true
	} else if !os.IsNotExist(err) {
		m.logger.Warn("Failed to delete workflow file", "path", path, "error", err)
	}

	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()
	m.metrics.Reset(name)

	m.logger.Info("Workflow unloaded", "name", name, "file_removed", removed)
	return domain.UnloadResult{Success: true, Name: name, FileRemoved: removed}
}

// LoadAll loads every *.json file of the workflow directory, creating it when missing.
func (m *Manager) LoadAll(ctx context.Context) domain.ReloadResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.loadAll(ctx)
}

func (m *Manager) loadAll(ctx context.Context) domain.ReloadResult {
	result := domain.ReloadResult{Success: []string{}, Failed: []domain.FailedReload{}}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		m.logger.Error("Failed to create workflow directory", "dir", m.dir, "error", err)
		result.Failed = append(result.Failed, domain.FailedReload{File: m.dir, Error: err.Error()})
		return result
	}

	files, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		result.Failed = append(result.Failed, domain.FailedReload{File: m.dir, Error: err.Error()})
		return result
	}
	sort.Strings(files)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		res := m.load(ctx, file, "")
		if res.Success {
			result.Success = append(result.Success, res.Name)
		} else {
			result.Failed = append(result.Failed, domain.FailedReload{File: filepath.Base(file), Error: res.Error})
		}
	}

	m.logger.Info("Workflow directory loaded", "dir", m.dir, "success", len(result.Success), "failed", len(result.Failed))
	return result
}

// ReloadAll drops every workflow tool and loads the directory again. Readers may observe
// an empty registry while this runs.
func (m *Manager) ReloadAll(ctx context.Context) domain.ReloadResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.entries = make(map[string]*domain.Entry)
	m.mu.Unlock()

	if len(names) > 0 {
		m.registrar.DeleteTools(names...)
	}
	m.logger.Info("Reloading all workflows", "previously_loaded", len(names))

	return m.loadAll(ctx)
}

// Get returns the entry registered under name.
func (m *Manager) Get(name string) (*domain.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	return e, ok
}

// Names lists loaded workflow titles in lexical order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports every loaded workflow with its execution counters.
func (m *Manager) Status() domain.StatusReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := domain.StatusReport{Directory: m.dir, Count: len(m.entries), Workflows: []domain.WorkflowStatus{}}
	for name, e := range m.entries {
		stats := m.metrics.ToolStats(name)
		report.Workflows = append(report.Workflows, domain.WorkflowStatus{
			Name:         name,
			Description:  e.Metadata.Description,
			SourceFile:   e.SourceFile,
			LoadedAt:     e.LoadedAt,
			IsRunningHub: e.Metadata.IsRunningHub,
			WorkflowID:   e.Metadata.WorkflowID,
			ParamCount:   len(e.Metadata.Params),
			Executions:   stats.Executions,
			Failures:     stats.Failures,
		})
	}
	sort.Slice(report.Workflows, func(i, j int) bool { return report.Workflows[i].Name < report.Workflows[j].Name })
	return report
}

// Invoke runs the workflow registered under name with raw tool arguments.
func (m *Manager) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	entry, ok := m.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
	}
	return entry.Function(ctx, args), nil
}
