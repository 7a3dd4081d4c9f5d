//go:build !integration

package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comfy-mcp/comfy-mcp/internal/shared"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
)

func mustGraph(src string) workflow.Graph {
	g, err := workflow.DecodeGraph([]byte(src))
	Expect(err).NotTo(HaveOccurred())
	return g
}

var _ = Describe("Parser", func() {
	var parser *workflow.Parser

	BeforeEach(func() {
		parser = workflow.NewParser(quietLogger())
	})

	Describe("ParseParamTitle", func() {
		It("decodes every DSL component", func() {
			pt, ok := workflow.ParseParamTitle("  $image.~image!: Source image ")
			Expect(ok).To(BeTrue())
			Expect(pt.Name).To(Equal("image"))
			Expect(pt.Field).To(Equal("image"))
			Expect(pt.Required).To(BeTrue())
			Expect(pt.Description).To(Equal("Source image"))
			Expect(pt.HandlerType).To(Equal(workflow.HandlerUploadRel))
		})

		DescribeTable("rejects non-parameter titles",
			func(title string) {
				_, ok := workflow.ParseParamTitle(title)
				Expect(ok).To(BeFalse())
			},
			Entry("plain title", "KSampler"),
			Entry("missing field", "$prompt"),
			Entry("bad characters", "$pro-mpt.text"),
			Entry("empty", ""),
		)
	})

	It("marks bang params required and drops their literal default", func() {
		g := mustGraph(`{"6":{"class_type":"CLIPTextEncode","inputs":{"text":"a dog","clip":["4",1]},"_meta":{"title":"$prompt.text!"}}}`)
		md, err := parser.Parse(g, "t2i")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.Params).To(HaveKey("prompt"))
		p := md.Params["prompt"]
		Expect(p.Required).To(BeTrue())
		Expect(p.Default).To(BeNil())
		Expect(p.Type).To(Equal(workflow.TypeStr))
	})

	It("fails when an optional param has no literal default", func() {
		g := mustGraph(`{"3":{"class_type":"KSampler","inputs":{"model":["4",0]},"_meta":{"title":"$model.model"}}}`)
		_, err := parser.Parse(g, "t2i")
		Expect(err).To(HaveOccurred())
		Expect(shared.IsCategory(err, shared.CategoryParse)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("has no default value but not marked as required"))
	})

	It("treats connection values as missing defaults", func() {
		g := mustGraph(`{"3":{"class_type":"KSampler","inputs":{"seed":["10",0]},"_meta":{"title":"$seed.seed"}}}`)
		_, err := parser.Parse(g, "t2i")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("infers the type from the literal default",
		func(literal string, want workflow.ParamType, wantDefault any) {
			g := mustGraph(`{"1":{"class_type":"X","inputs":{"v":` + literal + `},"_meta":{"title":"$v.v"}}}`)
			md, err := parser.Parse(g, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(md.Params["v"].Type).To(Equal(want))
			Expect(md.Params["v"].Default).To(Equal(wantDefault))
		},
		Entry("bool before int", `true`, workflow.TypeBool, true),
		Entry("int", `20`, workflow.TypeInt, int64(20)),
		Entry("float", `7.5`, workflow.TypeFloat, 7.5),
		Entry("float with zero fraction", `1.0`, workflow.TypeFloat, 1.0),
		Entry("string", `"euler"`, workflow.TypeStr, "euler"),
	)

	It("records known save nodes as outputs keyed by node id", func() {
		g := mustGraph(`{
			"9":{"class_type":"SaveImage","inputs":{"images":["8",0]}},
			"12":{"class_type":"VHS_SaveVideo","inputs":{},"_meta":{"title":"Save Video"}}
		}`)
		md, err := parser.Parse(g, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.MappingInfo.OutputMappings).To(ConsistOf(
			workflow.OutputMapping{NodeID: "9", OutputVar: "9"},
			workflow.OutputMapping{NodeID: "12", OutputVar: "12"},
		))
	})

	It("prefers explicit output markers over the class type", func() {
		g := mustGraph(`{"9":{"class_type":"SaveImage","inputs":{},"_meta":{"title":"$output.portrait"}}}`)
		md, err := parser.Parse(g, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.MappingInfo.OutputMappings).To(Equal([]workflow.OutputMapping{{NodeID: "9", OutputVar: "portrait"}}))
	})

	It("ignores an output marker without a variable", func() {
		g := mustGraph(`{"9":{"class_type":"PreviewImage","inputs":{},"_meta":{"title":"$output."}}}`)
		md, err := parser.Parse(g, "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.MappingInfo.OutputMappings).To(BeEmpty())
	})

	It("rejects duplicate parameter names", func() {
		g := mustGraph(`{
			"1":{"class_type":"A","inputs":{"text":"x"},"_meta":{"title":"$prompt.text"}},
			"2":{"class_type":"B","inputs":{"text":"y"},"_meta":{"title":"$prompt.text"}}
		}`)
		_, err := parser.Parse(g, "t")
		Expect(err).To(MatchError(ContainSubstring("duplicate parameter name `prompt`")))
	})

	It("orders mappings by numeric node id", func() {
		g := mustGraph(`{
			"10":{"class_type":"A","inputs":{"w":512},"_meta":{"title":"$width.w"}},
			"2":{"class_type":"B","inputs":{"h":512},"_meta":{"title":"$height.h"}},
			"x":{"class_type":"C","inputs":{"t":"hi"},"_meta":{"title":"$text.t!"}}
		}`)
		md, err := parser.Parse(g, "t")
		Expect(err).NotTo(HaveOccurred())
		names := []string{}
		for _, m := range md.MappingInfo.ParamMappings {
			names = append(names, m.ParamName)
		}
		Expect(names).To(Equal([]string{"height", "width", "text"}))

		sig := md.Signature()
		Expect(sig[0].Name).To(Equal("text"))
		Expect(sig[1].Name).To(Equal("height"))
		Expect(md.Validate()).To(Succeed())
	})

	Describe("description node", func() {
		It("reads the first candidate field case-insensitively", func() {
			g := mustGraph(`{"99":{"class_type":"PrimitiveString","inputs":{"Text":"  Draws a cat  "},"_meta":{"title":"MCP"}}}`)
			md, err := parser.Parse(g, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(md.Description).To(Equal("Draws a cat"))
		})

		It("ignores the description when several nodes claim it", func() {
			g := mustGraph(`{
				"1":{"class_type":"P","inputs":{"value":"a"},"_meta":{"title":"MCP"}},
				"2":{"class_type":"P","inputs":{"value":"b"},"_meta":{"title":"MCP"}}
			}`)
			md, err := parser.Parse(g, "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(md.Description).To(BeEmpty())
		})
	})

	It("takes the title from the file stem when no tool name is given", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "upscale_x4.json")
		Expect(os.WriteFile(path, []byte(`{"1":{"class_type":"SaveImage","inputs":{}}}`), 0o644)).To(Succeed())

		_, md, err := parser.ParseFile(path, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.Title).To(Equal("upscale_x4"))

		_, md, err = parser.ParseFile(path, "custom")
		Expect(err).NotTo(HaveOccurred())
		Expect(md.Title).To(Equal("custom"))
	})
})

var _ = Describe("ValidateTitle", func() {
	It("accepts letters, digits, dot, dash and underscore", func() {
		Expect(workflow.ValidateTitle("flux-dev_1.2")).To(Succeed())
	})

	It("rejects spaces and slashes", func() {
		Expect(errors.Is(workflow.ValidateTitle("my tool"), workflow.ErrInvalidTitle)).To(BeTrue())
		Expect(workflow.ValidateTitle("../etc")).NotTo(Succeed())
	})
})

var _ = Describe("Graph", func() {
	It("clones without sharing nested inputs", func() {
		g := mustGraph(`{"1":{"class_type":"A","inputs":{"list":[1,2],"obj":{"k":"v"}},"_meta":{"title":"x"}}}`)
		cp := g.Clone()
		cp["1"].Inputs["obj"].(map[string]any)["k"] = "changed"
		cp["1"].Meta.Title = "y"
		Expect(g["1"].Inputs["obj"].(map[string]any)["k"]).To(Equal("v"))
		Expect(g["1"].Title()).To(Equal("x"))
	})

	It("skips entries that are not nodes", func() {
		g := mustGraph(`{"1":{"class_type":"A","inputs":{}},"version":3}`)
		Expect(g).To(HaveLen(1))
	})

	It("rejects malformed JSON", func() {
		_, err := workflow.DecodeGraph([]byte(`[1,2]`))
		Expect(err).To(MatchError(workflow.ErrInvalidGraph))
	})
})

type fakeRemote struct {
	graphs map[string]string
	calls  []string
}

func (f *fakeRemote) GetWorkflowJSON(_ context.Context, id string) (json.RawMessage, error) {
	f.calls = append(f.calls, id)
	g, ok := f.graphs[id]
	if !ok {
		return nil, errors.New("workflow not found")
	}
	return json.RawMessage(g), nil
}

var _ = Describe("Loader", func() {
	var (
		dir    string
		remote *fakeRemote
		loader *workflow.Loader
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		remote = &fakeRemote{graphs: map[string]string{
			"1850925505116598274": `{"6":{"class_type":"CLIPTextEncode","inputs":{"text":"x"},"_meta":{"title":"$prompt.text!"}}}`,
		}}
		loader = workflow.NewLoader(workflow.NewParser(quietLogger()), remote, quietLogger())
	})

	It("resolves source references through the remote source", func() {
		path := filepath.Join(dir, "cloud.json")
		Expect(workflow.WriteSourceReference(path, workflow.SourceReference{
			Source: workflow.SourceRunningHub, WorkflowID: "1850925505116598274",
		})).To(Succeed())
		Expect(workflow.IsSourceReferenceFile(path)).To(BeTrue())

		wf, err := loader.Load(context.Background(), path, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(wf.Metadata.Title).To(Equal("cloud"))
		Expect(wf.Metadata.IsRunningHub).To(BeTrue())
		Expect(wf.Metadata.WorkflowID).To(Equal("1850925505116598274"))
		Expect(wf.Metadata.Params).To(HaveKey("prompt"))
		Expect(remote.calls).To(Equal([]string{"1850925505116598274"}))
	})

	It("fails on references without a configured remote", func() {
		path := filepath.Join(dir, "cloud.json")
		Expect(workflow.WriteSourceReference(path, workflow.SourceReference{Source: workflow.SourceRunningHub, WorkflowID: "1"})).To(Succeed())

		_, err := workflow.NewLoader(workflow.NewParser(quietLogger()), nil, quietLogger()).Load(context.Background(), path, "")
		Expect(err).To(MatchError(workflow.ErrRunningHubNotConfigured))
	})

	It("rejects unknown sources", func() {
		path := filepath.Join(dir, "other.json")
		Expect(os.WriteFile(path, []byte(`{"_source":"elsewhere","workflow_id":"1"}`), 0o644)).To(Succeed())
		_, err := loader.Load(context.Background(), path, "")
		Expect(err).To(MatchError(workflow.ErrUnsupportedSource))
	})

	It("loads literal graphs without touching the remote", func() {
		path := filepath.Join(dir, "local.json")
		Expect(os.WriteFile(path, []byte(`{"9":{"class_type":"SaveImage","inputs":{}}}`), 0o644)).To(Succeed())
		wf, err := loader.Load(context.Background(), path, "renamed")
		Expect(err).NotTo(HaveOccurred())
		Expect(wf.Metadata.Title).To(Equal("renamed"))
		Expect(wf.Metadata.IsRunningHub).To(BeFalse())
		Expect(remote.calls).To(BeEmpty())
	})
})

var _ = Describe("CoerceArgs", func() {
	md := &workflow.Metadata{Params: map[string]*workflow.Param{
		"steps":  {Name: "steps", Type: workflow.TypeInt},
		"cfg":    {Name: "cfg", Type: workflow.TypeFloat},
		"tiled":  {Name: "tiled", Type: workflow.TypeBool},
		"prompt": {Name: "prompt", Type: workflow.TypeStr},
	}}

	It("narrows JSON numbers to the declared types", func() {
		out, err := workflow.CoerceArgs(md, map[string]any{
			"steps": 20.0, "cfg": "7.5", "tiled": "true", "prompt": 5.0, "extra": "kept", "skip": nil,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(map[string]any{
			"steps": int64(20), "cfg": 7.5, "tiled": true, "prompt": "5", "extra": "kept",
		}))
	})

	It("refuses fractional values for int params", func() {
		_, err := workflow.CoerceArgs(md, map[string]any{"steps": 2.5})
		Expect(err).To(MatchError(ContainSubstring(`parameter "steps"`)))
	})
})
