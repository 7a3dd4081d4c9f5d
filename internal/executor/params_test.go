//go:build !integration

package executor_test

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/internal/shared"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

const i2iGraph = `{
	"3": {"class_type": "KSampler", "inputs": {"seed": 0, "steps": 20, "model": ["4", 0]}, "_meta": {"title": "$steps.steps"}},
	"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "", "clip": ["4", 1]}, "_meta": {"title": "$prompt.text!: what to draw"}},
	"10": {"class_type": "LoadImage", "inputs": {"image": "default.png"}, "_meta": {"title": "$image.image"}},
	"11": {"class_type": "LoadImageMask", "inputs": {"image": "mask.png"}, "_meta": {"title": "$mask.~image"}},
	"9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0]}, "_meta": {"title": "$output.result"}}
}`

var _ = Describe("ParamApplier", func() {
	var (
		dl      *fakeDownloader
		applier *executor.ParamApplier
		wf      *workflow.Workflow
		ctx     context.Context
		handles []string
		store   executor.UploadFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		dl = &fakeDownloader{}
		applier = executor.NewParamApplier(dl, quietLogger())
		wf = mustWorkflow("i2i", i2iGraph)
		handles = nil
		store = func(_ context.Context, r io.Reader, filename string) (string, error) {
			_, _ = io.ReadAll(r)
			handles = append(handles, filename)
			return "uploaded/" + filename, nil
		}
	})

	It("writes caller values and defaults into a copy of the graph", func() {
		out, err := applier.Apply(ctx, wf.Graph, wf.Metadata, map[string]any{"prompt": "a cat", "unknown": 1}, store, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out["6"].Inputs["text"]).To(Equal("a cat"))
		Expect(out["3"].Inputs["steps"]).To(Equal(int64(20)))
		Expect(out["10"].Inputs["image"]).To(Equal("default.png"))
		Expect(wf.Graph["6"].Inputs["text"]).To(Equal(""))
		Expect(dl.Calls()).To(BeEmpty())
	})

	It("fails when a required parameter is missing", func() {
		_, err := applier.Apply(ctx, wf.Graph, wf.Metadata, map[string]any{}, store, nil)
		Expect(err).To(MatchError(ContainSubstring("Required parameter 'prompt' is missing")))
		Expect(shared.IsCategory(err, shared.CategoryParse)).To(BeTrue())
	})

	It("re-hosts URLs for upload nodes and upload_rel fields", func() {
		cookies := map[string]string{"session": "abc"}
		out, err := applier.Apply(ctx, wf.Graph, wf.Metadata, map[string]any{
			"prompt": "x",
			"image":  "https://cdn.example.com/cat.png",
			"mask":   "http://cdn.example.com/mask.png",
		}, store, cookies)
		Expect(err).NotTo(HaveOccurred())
		Expect(out["10"].Inputs["image"]).To(Equal("uploaded/cat.png"))
		Expect(out["11"].Inputs["image"]).To(Equal("uploaded/mask.png"))
		Expect(dl.Calls()).To(ConsistOf("https://cdn.example.com/cat.png", "http://cdn.example.com/mask.png"))
		Expect(dl.cookies[0]).To(Equal(cookies))
	})

	It("passes plain file names through untouched", func() {
		out, err := applier.Apply(ctx, wf.Graph, wf.Metadata, map[string]any{"prompt": "x", "image": "local.png"}, store, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out["10"].Inputs["image"]).To(Equal("local.png"))
		Expect(handles).To(BeEmpty())
	})

	It("reports download failures as media errors", func() {
		dl.fail = errors.New("404")
		_, err := applier.Apply(ctx, wf.Graph, wf.Metadata, map[string]any{"prompt": "x", "image": "https://cdn/x.png"}, store, nil)
		Expect(shared.IsCategory(err, shared.CategoryMedia)).To(BeTrue())
	})

	It("skips mappings whose node disappeared", func() {
		g := wf.Graph.Clone()
		delete(g, "3")
		out, err := applier.Apply(ctx, g, wf.Metadata, map[string]any{"prompt": "x"}, store, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(HaveKey("3"))
	})

	DescribeTable("ShouldUpload",
		func(m workflow.ParamMapping, value any, want bool) {
			Expect(executor.ShouldUpload(m, value)).To(Equal(want))
		},
		Entry("load image with URL", workflow.ParamMapping{NodeClassType: "LoadImage"}, "https://x/a.png", true),
		Entry("upload_rel with URL", workflow.ParamMapping{NodeClassType: "Custom", HandlerType: workflow.HandlerUploadRel}, "http://x/a", true),
		Entry("load image with file name", workflow.ParamMapping{NodeClassType: "LoadImage"}, "a.png", false),
		Entry("other node with URL", workflow.ParamMapping{NodeClassType: "CLIPTextEncode"}, "https://x", false),
		Entry("non-string", workflow.ParamMapping{NodeClassType: "LoadImage"}, 3, false),
	)
})
