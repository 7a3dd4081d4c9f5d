//go:build !integration

package application_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/application"
	"github.com/comfy-mcp/comfy-mcp/internal/server-plugins/workflows/domain"
	"github.com/comfy-mcp/comfy-mcp/internal/shared/metrics"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

var _ = Describe("Manager", func() {
	var (
		ctx       context.Context
		dir       string
		srcDir    string
		registrar *fakeRegistrar
		runner    *fakeRunner
		collector *metrics.InMemoryCollector
		manager   *application.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = filepath.Join(GinkgoT().TempDir(), "custom_workflows")
		srcDir = GinkgoT().TempDir()
		registrar = newFakeRegistrar()
		runner = &fakeRunner{result: imageResult("http://localhost:8188/view?filename=cat.png&type=output")}
		collector = metrics.NewInMemoryCollector()

		logger := quietLogger()
		loader := workflow.NewLoader(workflow.NewParser(logger), nil, logger)
		manager = application.NewManager(dir, loader, runner, registrar, collector, logger)
	})

	Describe("Load", func() {
		It("publishes a tool with a required prompt and runs it end to end", func() {
			file := writeFile(srcDir, "t2i.json", promptGraph)

			res := manager.Load(ctx, file, "")
			Expect(res.Error).To(BeEmpty())
			Expect(res.Success).To(BeTrue())
			Expect(res.Name).To(Equal("t2i"))
			Expect(res.Params).To(HaveLen(1))
			Expect(res.Params[0].Name).To(Equal("prompt"))
			Expect(res.Params[0].Type).To(Equal("str"))
			Expect(res.Params[0].Required).To(BeTrue())

			tool, ok := registrar.Tool("t2i")
			Expect(ok).To(BeTrue())
			Expect(tool.InputSchema.Required).To(ConsistOf("prompt"))
			Expect(tool.InputSchema.Properties).To(HaveKey("prompt"))
			Expect(tool.InputSchema.Properties["prompt"]).To(HaveKeyWithValue("type", "string"))

			text, err := manager.Invoke(ctx, "t2i", map[string]any{"prompt": "a cat"})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("http://localhost:8188/view?filename=cat.png&type=output"))

			jobs := runner.Jobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Params).To(Equal(map[string]any{"prompt": "a cat"}))
			Expect(jobs[0].Workflow.Metadata.Title).To(Equal("t2i"))
		})

		It("serves the registered MCP handler through the dispatcher", func() {
			manager.Load(ctx, writeFile(srcDir, "t2i.json", promptGraph), "")

			req := mcp.CallToolRequest{}
			req.Params.Name = "t2i"
			req.Params.Arguments = map[string]any{"prompt": "a dog"}

			out, err := registrar.Handler("t2i")(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.IsError).To(BeFalse())
			Expect(out.Content).To(HaveLen(1))
			text, ok := out.Content[0].(mcp.TextContent)
			Expect(ok).To(BeTrue())
			Expect(text.Text).To(HavePrefix("Generated successfully"))
		})

		It("copies the file into the workflow directory under the tool name", func() {
			file := writeFile(srcDir, "original.json", promptGraph)

			res := manager.Load(ctx, file, "renamed")
			Expect(res.Success).To(BeTrue())
			Expect(res.SavedTo).To(Equal(filepath.Join(dir, "renamed.json")))

			data, err := os.ReadFile(filepath.Join(dir, "renamed.json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(promptGraph))

			entry, ok := manager.Get("renamed")
			Expect(ok).To(BeTrue())
			Expect(entry.SourceFile).To(Equal(filepath.Join(dir, "renamed.json")))
			Expect(entry.LoadedAt).NotTo(BeZero())
		})

		It("orders required params before optional ones and keeps defaults", func() {
			res := manager.Load(ctx, writeFile(srcDir, "steps.json", stepsGraph), "")
			Expect(res.Success).To(BeTrue())
			Expect(res.Params).To(HaveLen(2))
			Expect(res.Params[0].Name).To(Equal("prompt"))
			Expect(res.Params[1].Name).To(Equal("steps"))
			Expect(res.Params[1].Default).To(Equal(int64(20)))

			tool, _ := registrar.Tool("steps")
			Expect(tool.InputSchema.Properties["steps"]).To(HaveKeyWithValue("type", "number"))
			Expect(tool.InputSchema.Properties["steps"]).To(HaveKeyWithValue("default", 20.0))
		})

		It("rejects an invalid tool name", func() {
			res := manager.Load(ctx, writeFile(srcDir, "t2i.json", promptGraph), "bad name!")
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(ContainSubstring("format is invalid"))
			_, ok := registrar.Tool("bad name!")
			Expect(ok).To(BeFalse())
		})

		It("reports a missing file", func() {
			res := manager.Load(ctx, filepath.Join(srcDir, "nope.json"), "")
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(ContainSubstring("does not exist"))
		})

		It("reports parse errors without registering anything", func() {
			res := manager.Load(ctx, writeFile(srcDir, "broken.json", brokenGraph), "")
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(ContainSubstring("has no default value but not marked as required"))
			Expect(manager.Names()).To(BeEmpty())
			_, err := os.Stat(filepath.Join(dir, "broken.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("Unload", func() {
		It("removes the tool, its file and the entry", func() {
			manager.Load(ctx, writeFile(srcDir, "t2i.json", promptGraph), "")

			res := manager.Unload(ctx, "t2i")
			Expect(res.Success).To(BeTrue())
			Expect(res.FileRemoved).To(BeTrue())
			Expect(registrar.deleted).To(ContainElement("t2i"))
			_, ok := manager.Get("t2i")
			Expect(ok).To(BeFalse())
			_, err := os.Stat(filepath.Join(dir, "t2i.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())

			again := manager.Unload(ctx, "t2i")
			Expect(again.Success).To(BeFalse())
			Expect(again.Error).To(ContainSubstring("does not exist or not loaded"))
		})

		It("round-trips load and unload", func() {
			file := writeFile(srcDir, "t2i.json", promptGraph)
			Expect(manager.Load(ctx, file, "").Success).To(BeTrue())
			Expect(manager.Unload(ctx, "t2i").Success).To(BeTrue())
			Expect(manager.Load(ctx, file, "").Success).To(BeTrue())
			Expect(manager.Names()).To(Equal([]string{"t2i"}))
		})
	})

	Describe("LoadAll and ReloadAll", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			writeFile(dir, "a.json", promptGraph)
			writeFile(dir, "b.json", stepsGraph)
			writeFile(dir, "c.json", brokenGraph)
			writeFile(dir, "notes.txt", "ignored")
		})

		It("loads every json file and collects failures", func() {
			res := manager.LoadAll(ctx)
			Expect(res.Success).To(ConsistOf("a", "b"))
			Expect(res.Failed).To(HaveLen(1))
			Expect(res.Failed[0].File).To(Equal("c.json"))
		})

		It("drops all tools before loading the directory again", func() {
			manager.LoadAll(ctx)
			Expect(os.Remove(filepath.Join(dir, "b.json"))).To(Succeed())

			res := manager.ReloadAll(ctx)
			Expect(registrar.deleted).To(ConsistOf("a", "b"))
			Expect(res.Success).To(ConsistOf("a"))
			Expect(manager.Names()).To(Equal([]string{"a"}))
			_, ok := registrar.Tool("b")
			Expect(ok).To(BeFalse())
		})

		It("creates the directory when it is missing", func() {
			Expect(os.RemoveAll(dir)).To(Succeed())
			res := manager.LoadAll(ctx)
			Expect(res.Success).To(BeEmpty())
			Expect(res.Failed).To(BeEmpty())
			Expect(dir).To(BeADirectory())
		})
	})

	Describe("Dispatcher", func() {
		BeforeEach(func() {
			Expect(manager.Load(ctx, writeFile(srcDir, "steps.json", stepsGraph), "").Success).To(BeTrue())
		})

		It("coerces numeric arguments to the declared types", func() {
			_, err := manager.Invoke(ctx, "steps", map[string]any{"prompt": "x", "steps": 30.0})
			Expect(err).NotTo(HaveOccurred())
			Expect(runner.Jobs()[0].Params).To(HaveKeyWithValue("steps", int64(30)))
		})

		It("reports argument coercion failures as exceptions", func() {
			text, _ := manager.Invoke(ctx, "steps", map[string]any{"prompt": "x", "steps": "many"})
			Expect(text).To(HavePrefix("Workflow execution exception: "))
			Expect(runner.Jobs()).To(BeEmpty())
		})

		It("reports failed results with their message", func() {
			runner.result = func(executor.Job) *executor.Result {
				r := executor.NewResult("p-1")
				r.Status = executor.StatusError
				r.Msg = "CUDA out of memory"
				return r
			}
			text, _ := manager.Invoke(ctx, "steps", map[string]any{"prompt": "x"})
			Expect(text).To(Equal("Workflow execution failed: CUDA out of memory"))
		})

		It("falls back to the status when there is no message", func() {
			runner.result = func(executor.Job) *executor.Result {
				r := executor.NewResult("p-1")
				r.Status = executor.StatusTimeout
				return r
			}
			text, _ := manager.Invoke(ctx, "steps", map[string]any{"prompt": "x"})
			Expect(text).To(Equal("Workflow execution failed: timeout"))
		})

		It("turns a panicking executor into an exception string", func() {
			runner.result = func(executor.Job) *executor.Result { panic("boom") }
			text, _ := manager.Invoke(ctx, "steps", map[string]any{"prompt": "x"})
			Expect(text).To(Equal("Workflow execution exception: boom"))
		})

		It("counts executions in the status report", func() {
			manager.Invoke(ctx, "steps", map[string]any{"prompt": "x"})
			runner.result = func(executor.Job) *executor.Result {
				r := executor.NewResult("p-2")
				r.Status = executor.StatusError
				return r
			}
			manager.Invoke(ctx, "steps", map[string]any{"prompt": "y"})

			report := manager.Status()
			Expect(report.Count).To(Equal(1))
			Expect(report.Workflows[0].Name).To(Equal("steps"))
			Expect(report.Workflows[0].Executions).To(Equal(int64(2)))
			Expect(report.Workflows[0].Failures).To(Equal(int64(1)))
		})

		It("returns an error for unknown workflows", func() {
			_, err := manager.Invoke(ctx, "missing", nil)
			Expect(err).To(MatchError(domain.ErrWorkflowNotFound))
		})
	})
})
