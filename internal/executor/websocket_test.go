//go:build !integration

package executor_test

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/executor"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// streamFrames upgrades /ws and, once a prompt was queued, writes frames and then
// holds the socket open until the client hangs up.
func streamFrames(comfy *fakeComfy, frames []string) {
	upgrader := websocket.Upgrader{}
	comfy.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("clientId") == "" {
			http.Error(w, "missing clientId", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for deadline := time.Now().Add(5 * time.Second); len(comfy.Submitted()) == 0; {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 1})
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

var _ = Describe("WebSocketExecutor", func() {
	var (
		comfy *fakeComfy
		cfg   config.ComfyUIConfig
	)

	BeforeEach(func() {
		comfy = newFakeComfy()
		cfg = config.ComfyUIConfig{
			BaseURL:       comfy.srv.URL,
			ExecutorType:  "websocket",
			Timeout:       30 * time.Second,
			WSReadTimeout: time.Second,
		}
	})

	execute := func() *executor.Result {
		client := comfyui.NewClient(cfg, quietLogger())
		dl := &fakeDownloader{}
		params := executor.NewParamApplier(dl, quietLogger())
		tr := executor.NewTransferer(dl, &fakeUploader{}, false, quietLogger())
		e := executor.NewWebSocketExecutor(client, params, tr, cfg, quietLogger())
		return e.Execute(context.Background(), executor.Job{
			Workflow: mustWorkflow("t2i", t2iGraph),
			Params:   map[string]any{"prompt": "a fox"},
		})
	}

	It("collects executed outputs until the prompt finishes", func() {
		streamFrames(comfy, []string{
			`{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}`,
			`{"type": "execution_start", "data": {"prompt_id": "p-1"}}`,
			`{"type": "execution_cached", "data": {"nodes": ["4"], "prompt_id": "p-1"}}`,
			`{"type": "executing", "data": {"node": "3", "prompt_id": "p-1"}}`,
			`{"type": "executed", "data": {"node": "9", "output": {"images": [{"filename": "other.png", "type": "output"}]}, "prompt_id": "p-other"}}`,
			`{"type": "executed", "data": {"node": "9", "output": {"images": [{"filename": "fox.png", "subfolder": "", "type": "output"}]}, "prompt_id": "p-1"}}`,
			`{"type": "executing", "data": {"node": null, "prompt_id": "p-1"}}`,
		})

		res := execute()
		Expect(res.Status).To(Equal(executor.StatusCompleted), res.Msg)
		Expect(res.Images).To(Equal([]string{comfy.srv.URL + "/view?filename=fox.png&type=output"}))
		Expect(res.ImagesByVar).To(HaveKey("image"))
	})

	It("returns as soon as the run reports an execution error", func() {
		streamFrames(comfy, []string{
			`{"type": "execution_start", "data": {"prompt_id": "p-1"}}`,
			`{"type": "executing", "data": {"node": "3", "prompt_id": "p-1"}}`,
			`{"type": "execution_error", "data": {"prompt_id": "p-1", "node_id": "3", "node_type": "KSampler", "exception_message": "CUDA out of memory"}}`,
		})

		start := time.Now()
		res := execute()
		Expect(time.Since(start)).To(BeNumerically("<", cfg.WSReadTimeout))
		Expect(res.Status).To(Equal(executor.StatusError))
		Expect(res.Msg).To(Equal("CUDA out of memory"))
		Expect(res.PromptID).To(Equal("p-1"))
	})

	It("fails when the run finishes without collectable outputs", func() {
		streamFrames(comfy, []string{
			`{"type": "executed", "data": {"node": "3", "output": {"latent": [1]}, "prompt_id": "p-1"}}`,
			`{"type": "executing", "data": {"node": null, "prompt_id": "p-1"}}`,
		})

		res := execute()
		Expect(res.Status).To(Equal(executor.StatusError))
		Expect(res.Msg).To(Equal("no outputs collected"))
	})

	It("reports a dial failure without submitting", func() {
		res := execute()
		Expect(res.Status).To(Equal(executor.StatusError))
		Expect(comfy.Submitted()).To(BeEmpty())
	})

	It("times out when the stream goes quiet", func() {
		cfg.Timeout = 150 * time.Millisecond
		cfg.WSReadTimeout = 50 * time.Millisecond
		streamFrames(comfy, []string{`{"type": "executing", "data": {"node": "3", "prompt_id": "p-1"}}`})

		res := execute()
		Expect(res.Status).To(Equal(executor.StatusTimeout))
	})
})
