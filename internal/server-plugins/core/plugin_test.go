//go:build !integration

package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mcpserver "github.com/comfy-mcp/comfy-mcp/internal/server"
	serverDomain "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/core/domain"
)

type fakeSystem struct {
	stats map[string]any
	err   error
}

func (f *fakeSystem) Endpoint() string     { return "http://comfy.local:8188" }
func (f *fakeSystem) ExecutorType() string { return "http" }
func (f *fakeSystem) GetSystemStats(ctx context.Context) (map[string]any, error) {
	return f.stats, f.err
}

type fakeCloud struct{ configured bool }

func (f *fakeCloud) Endpoint() string { return "https://www.runninghub.ai" }
func (f *fakeCloud) Configured() bool { return f.configured }

type fakeLogs struct{ lines []string }

func (f *fakeLogs) GetLast(n int) []string {
	if n > len(f.lines) {
		n = len(f.lines)
	}
	return f.lines[len(f.lines)-n:]
}
func (f *fakeLogs) Capacity() int { return 1000 }

type fakeRegistry struct {
	backends []string
	synced   time.Time
	active   []serverDomain.ServerPlugin
}

func (f *fakeRegistry) AvailableBackends() ([]string, time.Time) { return f.backends, f.synced }
func (f *fakeRegistry) GetActiveServerPlugins() []serverDomain.ServerPlugin {
	return f.active
}

type fakeProvider struct{ tools []serverDomain.ToolProvider }

func (f *fakeProvider) GetResourceProviders() []serverDomain.ResourceProvider { return nil }
func (f *fakeProvider) GetToolProviders() []serverDomain.ToolProvider         { return f.tools }
func (f *fakeProvider) GetPromptProviders() []serverDomain.PromptProvider     { return nil }

var _ mcpserver.ServerPluginProvider = (*fakeProvider)(nil)

func decode(res *mcp.CallToolResult) mcpserver.ToolResponse {
	Expect(res.Content).To(HaveLen(1))
	text, ok := res.Content[0].(mcp.TextContent)
	Expect(ok).To(BeTrue())
	var resp mcpserver.ToolResponse
	Expect(json.Unmarshal([]byte(text.Text), &resp)).To(Succeed())
	return resp
}

func callTool(p *core.CoreServerPlugin, name string, args map[string]any) *mcp.CallToolResult {
	tools, err := p.GetTools(context.Background())
	Expect(err).NotTo(HaveOccurred())
	for _, t := range tools {
		if t.Name == name {
			req := mcp.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = args
			res, err := t.Handler(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			return res
		}
	}
	Fail(fmt.Sprintf("tool %s not found", name))
	return nil
}

func readResource(p *core.CoreServerPlugin, uri string) (string, error) {
	resources, err := p.GetResources(context.Background())
	Expect(err).NotTo(HaveOccurred())
	for _, r := range resources {
		if r.URI == uri {
			req := mcp.ReadResourceRequest{}
			req.Params.URI = uri
			contents, err := r.Handler(context.Background(), req)
			if err != nil {
				return "", err
			}
			Expect(contents).To(HaveLen(1))
			return contents[0].(mcp.TextResourceContents).Text, nil
		}
	}
	Fail(fmt.Sprintf("resource %s not found", uri))
	return "", nil
}

var _ = Describe("CoreServerPlugin", func() {
	var (
		system *fakeSystem
		cloud  *fakeCloud
		logs   *fakeLogs
		plugin *core.CoreServerPlugin
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		system = &fakeSystem{stats: map[string]any{"system": map[string]any{"os": "posix"}}}
		cloud = &fakeCloud{}
		logs = &fakeLogs{}
		service := application.NewCoreService(system, cloud, logs, logger)
		plugin = core.NewCoreServerPlugin(service, logger)
	})

	It("is always active", func() {
		Expect(plugin.ID()).To(Equal("core"))
		Expect(plugin.RequiredBackend()).To(BeEmpty())
	})

	Describe("get_system_status", func() {
		It("reports a reachable ComfyUI with its stats", func() {
			resp := decode(callTool(plugin, "get_system_status", nil))
			Expect(resp.Status).To(Equal(mcpserver.ToolStatusOK))

			data := resp.Data.(map[string]any)
			comfy := data["comfyui"].(map[string]any)
			Expect(comfy["available"]).To(BeTrue())
			Expect(comfy["endpoint"]).To(Equal("http://comfy.local:8188"))
			Expect(data["system_stats"]).To(HaveKey("system"))

			hub := data["runninghub"].(map[string]any)
			Expect(hub["available"]).To(BeFalse())
			Expect(hub["detail"]).To(Equal("API key not configured"))
		})

		It("returns a partial result when ComfyUI is down", func() {
			system.err = errors.New("connection refused")
			cloud.configured = true

			res := callTool(plugin, "get_system_status", nil)
			Expect(res.IsError).To(BeFalse())
			resp := decode(res)
			Expect(resp.Status).To(Equal(mcpserver.ToolStatusPartial))

			data := resp.Data.(map[string]any)
			comfy := data["comfyui"].(map[string]any)
			Expect(comfy["available"]).To(BeFalse())
			Expect(comfy["detail"]).To(ContainSubstring("connection refused"))
			Expect(data["runninghub"].(map[string]any)["available"]).To(BeTrue())
		})
	})

	Describe("get_server_logs", func() {
		BeforeEach(func() {
			logs.lines = []string{
				"level=INFO msg=started",
				"level=DEBUG msg=request api_key=sk-secret123",
				"level=INFO msg=done",
			}
		})

		It("returns the requested number of lines", func() {
			resp := decode(callTool(plugin, "get_server_logs", map[string]any{"lines": float64(2)}))
			data := resp.Data.(map[string]any)
			Expect(data["count"]).To(BeEquivalentTo(2))
			Expect(data["capacity"]).To(BeEquivalentTo(1000))
		})

		It("redacts credentials", func() {
			resp := decode(callTool(plugin, "get_server_logs", nil))
			data := resp.Data.(map[string]any)
			Expect(data["count"]).To(BeEquivalentTo(3))
			lines := fmt.Sprint(data["lines"])
			Expect(lines).NotTo(ContainSubstring("sk-secret123"))
		})
	})

	Describe("resources", func() {
		It("fails until the registry is injected", func() {
			_, err := readResource(plugin, "comfy://core/backends")
			Expect(err).To(HaveOccurred())
			_, err = readResource(plugin, "comfy://core/capabilities")
			Expect(err).To(HaveOccurred())
		})

		It("reports backends and active plugins", func() {
			synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			registry := &fakeRegistry{
				backends: []string{"comfyui"},
				synced:   synced,
				active:   []serverDomain.ServerPlugin{plugin},
			}
			plugin.SetRegistry(registry, &fakeProvider{})

			text, err := readResource(plugin, "comfy://core/backends")
			Expect(err).NotTo(HaveOccurred())

			var report domain.BackendsReport
			Expect(json.Unmarshal([]byte(text), &report)).To(Succeed())
			Expect(report.Available).To(Equal([]string{"comfyui"}))
			Expect(report.Plugins).To(Equal([]string{"core"}))
			Expect(report.LastSync.Equal(synced)).To(BeTrue())
		})

		It("indexes the tools of active plugins", func() {
			plugin.SetRegistry(&fakeRegistry{}, &fakeProvider{tools: []serverDomain.ToolProvider{plugin}})

			text, err := readResource(plugin, "comfy://core/capabilities")
			Expect(err).NotTo(HaveOccurred())

			var index domain.CapabilityIndex
			Expect(json.Unmarshal([]byte(text), &index)).To(Succeed())
			Expect(index.Tools).To(HaveLen(2))
			Expect(index.Tools[0].Name).To(Equal("get_server_logs"))
			Expect(index.Tools[1].Name).To(Equal("get_system_status"))
			Expect(index.Tools[0].Plugin).To(Equal("core"))
			Expect(index.Resources).To(BeEmpty())
		})
	})
})
