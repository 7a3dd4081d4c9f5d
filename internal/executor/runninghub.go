package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/runninghub"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// OutputKind is the classification of one RunningHub output file.
type OutputKind int

const (
	OutputUnknown OutputKind = iota
	OutputImage
	OutputVideo
	OutputAudio
	OutputText
)

func (k OutputKind) String() string {
	switch k {
	case OutputImage:
		return "image"
	case OutputVideo:
		return "video"
	case OutputAudio:
		return "audio"
	case OutputText:
		return "text"
	}
	return "unknown"
}

// Classify maps a RunningHub fileType (an extension or a MIME-like string) to an output kind.
func Classify(fileType string) OutputKind {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	switch ft {
	case "png", "jpg", "jpeg", "gif", "webp":
		return OutputImage
	case "mp4", "avi", "mov", "mkv":
		return OutputVideo
	case "mp3", "wav", "flac":
		return OutputAudio
	case "txt", "text", "json", "xml":
		return OutputText
	}
	switch {
	case strings.Contains(ft, "image"):
		return OutputImage
	case strings.Contains(ft, "video"):
		return OutputVideo
	case strings.Contains(ft, "audio"):
		return OutputAudio
	case strings.Contains(ft, "text"):
		return OutputText
	}
	return OutputUnknown
}

// RunningHubExecutor runs workflows as RunningHub cloud tasks.
type RunningHubExecutor struct {
	client     runninghub.Client
	params     *ParamApplier
	downloader media.Downloader
	cfg        config.RunningHubConfig
	logger     *slog.Logger
}

func NewRunningHubExecutor(client runninghub.Client, params *ParamApplier, downloader media.Downloader, cfg config.RunningHubConfig, logger *slog.Logger) *RunningHubExecutor {
	return &RunningHubExecutor{
		client:     client,
		params:     params,
		downloader: downloader,
		cfg:        cfg,
		logger:     logger.With("component", "runninghub_executor"),
	}
}

func (e *RunningHubExecutor) Execute(ctx context.Context, job Job) *Result {
	start := time.Now()
	md := job.Workflow.Metadata
	if md.WorkflowID == "" {
		return errorResult("", "RunningHub workflow_id not found in metadata")
	}
	e.logger.Info("Starting RunningHub workflow execution", "workflow_id", md.WorkflowID)

	nodes, err := e.nodeInfoList(ctx, md, job.Params)
	if err != nil {
		return e.failed(err)
	}
	nodes, seeds := seedOverrides(job.Workflow.Graph, nodes)
	if len(seeds) > 0 {
		e.logger.Debug("Randomized seeds", "seeds", seeds)
	}

	task, err := e.client.CreateTask(ctx, md.WorkflowID, nodes)
	if err != nil {
		return e.failed(err)
	}
	taskID := task.TaskID.String()
	if taskID == "" {
		return errorResult("", "Failed to create RunningHub task")
	}
	e.logger.Info("RunningHub task created", "task_id", taskID)

	res := e.wait(ctx, taskID, md.OutputVars())
	res.Duration = since(start)
	return res
}

func (e *RunningHubExecutor) failed(err error) *Result {
	e.logger.Error("RunningHub workflow execution failed", "error", err)
	return errorResult("", fmt.Sprintf("RunningHub execution failed: %v", err))
}

// nodeInfoList turns caller-supplied params into field overrides. Defaults are not sent;
// the stored cloud workflow already carries them.
func (e *RunningHubExecutor) nodeInfoList(ctx context.Context, md *workflow.Metadata, params map[string]any) ([]runninghub.NodeInfo, error) {
	var nodes []runninghub.NodeInfo
	for _, m := range md.MappingInfo.ParamMappings {
		value, ok := params[m.ParamName]
		if !ok {
			continue
		}
		if ShouldUpload(m, value) {
			handle, err := e.params.Rehost(ctx, m.ParamName, value.(string), UploadFunc(e.client.UploadFile), nil)
			if err != nil {
				return nil, err
			}
			value = handle
		}
		nodes = append(nodes, runninghub.NodeInfo{
			NodeID:     m.NodeID,
			FieldName:  m.InputField,
			FieldValue: value,
		})
	}
	return nodes, nil
}

// seedOverrides appends a fresh seed for every zero seed in graph that the caller did not set.
// The graph itself is not modified.
func seedOverrides(graph workflow.Graph, nodes []runninghub.NodeInfo) ([]runninghub.NodeInfo, map[string]int64) {
	overridden := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.FieldName == "seed" {
			overridden[n.NodeID] = true
		}
	}
	seeds := make(map[string]int64)
	for _, id := range graph.NodeIDs() {
		node := graph[id]
		if node == nil || overridden[id] {
			continue
		}
		if v, ok := node.Inputs["seed"]; !ok || !isZeroSeed(v) {
			continue
		}
		seed := randomSeed()
		seeds[id] = seed
		nodes = append(nodes, runninghub.NodeInfo{NodeID: id, FieldName: "seed", FieldValue: seed})
	}
	return nodes, seeds
}

func (e *RunningHubExecutor) wait(ctx context.Context, taskID string, outputVars map[string]string) *Result {
	deadline := time.Now().Add(e.cfg.Timeout)
	for time.Now().Before(deadline) {
		status, err := e.client.QueryTaskStatus(ctx, taskID)
		switch {
		case errors.Is(err, runninghub.ErrUnknownTaskStatus):
			e.logger.Error("Unexpected RunningHub task status", "task_id", taskID, "error", err)
			return errorResult(taskID, fmt.Sprintf("RunningHub execution failed: %v", err))
		case err != nil:
			e.logger.Error("Error checking task status", "task_id", taskID, "error", err)
		case status == runninghub.StatusSuccess:
			outputs, err := e.client.QueryTaskResult(ctx, taskID)
			if err != nil {
				return errorResult(taskID, fmt.Sprintf("Failed to process task result: %v", err))
			}
			return e.buildResult(ctx, taskID, outputs, outputVars)
		case status == runninghub.StatusFailed:
			return errorResult(taskID, "RunningHub task failed")
		default:
			e.logger.Info("Task still in progress", "task_id", taskID, "status", status)
		}

		if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
			return errorResult(taskID, err.Error())
		}
	}
	return errorResult(taskID, fmt.Sprintf("RunningHub task timeout after %s", e.cfg.Timeout))
}

func (e *RunningHubExecutor) buildResult(ctx context.Context, taskID string, outputs []runninghub.TaskOutput, outputVars map[string]string) *Result {
	res := NewResult(taskID)
	res.Status = StatusCompleted

	images := map[string][]string{}
	videos := map[string][]string{}
	audios := map[string][]string{}
	texts := map[string][]string{}

	for i, out := range outputs {
		if out.FileURL == "" {
			continue
		}
		nodeID := out.NodeID.String()
		if nodeID == "" {
			nodeID = strconv.Itoa(i)
		}

		switch kind := Classify(out.FileType); kind {
		case OutputImage:
			images[nodeID] = append(images[nodeID], out.FileURL)
		case OutputVideo:
			videos[nodeID] = append(videos[nodeID], out.FileURL)
		case OutputAudio:
			audios[nodeID] = append(audios[nodeID], out.FileURL)
		case OutputText:
			text, err := e.fetchText(ctx, out.FileURL)
			if err != nil {
				e.logger.Error("Failed to download text output", "url", out.FileURL, "error", err)
				continue
			}
			texts[nodeID] = append(texts[nodeID], text)
		default:
			e.logger.Warn("Unknown output file type, skipping", "file_type", out.FileType, "url", out.FileURL, "node_id", nodeID)
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
	res.Outputs = map[string]any{"raw_data": outputs}

	e.logger.Info("RunningHub task completed",
		"task_id", taskID,
		"images", len(res.Images),
		"videos", len(res.Videos),
		"audios", len(res.Audios),
		"texts", len(res.Texts))
	return res
}

func (e *RunningHubExecutor) fetchText(ctx context.Context, url string) (string, error) {
	dl, err := e.downloader.Download(ctx, url, nil)
	if err != nil {
		return "", err
	}
	defer dl.Remove()
	data, err := os.ReadFile(dl.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
