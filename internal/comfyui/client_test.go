//go:build !integration

package comfyui_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/comfy-mcp/comfy-mcp/internal/comfyui"
	"github.com/comfy-mcp/comfy-mcp/internal/shared"
	"github.com/comfy-mcp/comfy-mcp/internal/workflow"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("ParseCookies", func() {
	ctx := context.Background()

	It("returns nil for an empty setting", func() {
		cookies, err := comfyui.ParseCookies(ctx, http.DefaultClient, "  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(cookies).To(BeNil())
	})

	It("parses key/value pairs", func() {
		cookies, err := comfyui.ParseCookies(ctx, http.DefaultClient, "session=abc; token = x=y ;broken")
		Expect(err).NotTo(HaveOccurred())
		Expect(cookies).To(Equal(map[string]string{"session": "abc", "token": "x=y"}))
	})

	It("parses a JSON object", func() {
		cookies, err := comfyui.ParseCookies(ctx, http.DefaultClient, `{"session":"abc","n":1}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(cookies).To(Equal(map[string]string{"session": "abc", "n": "1"}))
	})

	It("fetches the setting from a URL", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "a=1; b=2\n")
		}))
		DeferCleanup(srv.Close)

		cookies, err := comfyui.ParseCookies(ctx, srv.Client(), srv.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(cookies).To(Equal(map[string]string{"a": "1", "b": "2"}))
		Expect(comfyui.CookieHeader(cookies)).To(Equal("a=1; b=2"))
	})

	It("fails when the cookie URL does not answer 200", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		DeferCleanup(srv.Close)

		_, err := comfyui.ParseCookies(ctx, srv.Client(), srv.URL)
		Expect(err).To(MatchError(ContainSubstring("HTTP 403")))
	})
})

var _ = Describe("URLs", func() {
	It("escapes view parameters and skips an empty subfolder", func() {
		Expect(comfyui.BuildViewURL("http://h:8188/", "a b.png", "", "output")).
			To(Equal("http://h:8188/view?filename=a+b.png&type=output"))
		Expect(comfyui.BuildViewURL("http://h:8188", "x.mp4", "vids/2", "temp")).
			To(Equal("http://h:8188/view?filename=x.mp4&subfolder=vids%2F2&type=temp"))
	})

	It("derives the websocket endpoint", func() {
		u, err := comfyui.WebSocketURL("https://host/comfy/", "cid")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(Equal("wss://host/comfy/ws?clientId=cid"))

		u, err = comfyui.WebSocketURL("http://localhost:8188", "cid")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(Equal("ws://localhost:8188/ws?clientId=cid"))
	})
})

var _ = Describe("Client", func() {
	var (
		mux    *http.ServeMux
		srv    *httptest.Server
		client comfyui.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		srv = httptest.NewServer(mux)
		DeferCleanup(srv.Close)
		client = comfyui.NewClient(config.ComfyUIConfig{BaseURL: srv.URL, Cookies: "session=s1"}, quietLogger())
	})

	It("queues prompts with cookies and extra data", func() {
		var body map[string]any
		mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			c, err := r.Cookie("session")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Value).To(Equal("s1"))
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			_, _ = io.WriteString(w, `{"prompt_id":"p-1","number":3}`)
		})

		graph := workflow.Graph{"1": {ClassType: "SaveImage", Inputs: map[string]any{}}}
		id, err := client.QueuePrompt(ctx, comfyui.PromptRequest{
			Prompt: graph, ClientID: "c-1", ExtraData: map[string]any{"api_key_comfy_org": "k"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("p-1"))
		Expect(body).To(HaveKeyWithValue("client_id", "c-1"))
		Expect(body).To(HaveKeyWithValue("extra_data", HaveKeyWithValue("api_key_comfy_org", "k")))
	})

	It("reports submission errors with the server message", func() {
		mux.HandleFunc("/prompt", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid prompt"}`)
		})
		_, err := client.QueuePrompt(ctx, comfyui.PromptRequest{Prompt: workflow.Graph{}})
		Expect(shared.IsCategory(err, shared.CategorySubmission)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("[400]"))
		Expect(comfyui.IsHTTPStatus(err, http.StatusBadRequest)).To(BeTrue())
	})

	It("fails when the server does not return a prompt id", func() {
		mux.HandleFunc("/prompt", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})
		_, err := client.QueuePrompt(ctx, comfyui.PromptRequest{Prompt: workflow.Graph{}})
		Expect(err).To(MatchError(comfyui.ErrNoPromptID))
	})

	It("returns nil history until the prompt shows up", func() {
		calls := 0
		mux.HandleFunc("/history/p-1", func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls == 1 {
				_, _ = io.WriteString(w, `{}`)
				return
			}
			_, _ = io.WriteString(w, `{"p-1":{"status":{"status_str":"success","completed":true},"outputs":{"9":{"images":[{"filename":"a.png","subfolder":"","type":"output"}]}}}}`)
		})

		entry, err := client.GetHistory(ctx, "p-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entry).To(BeNil())

		entry, err = client.GetHistory(ctx, "p-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Failed()).To(BeFalse())
		Expect(entry.Outputs).To(HaveKey("9"))
	})

	It("uploads images as multipart form data", func() {
		mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
			file, hdr, err := r.FormFile("image")
			Expect(err).NotTo(HaveOccurred())
			data, _ := io.ReadAll(file)
			Expect(string(data)).To(Equal("pixels"))
			Expect(hdr.Filename).To(Equal("cat.png"))
			Expect(hdr.Header.Get("Content-Type")).To(Equal("image/png"))
			_, _ = io.WriteString(w, `{"name":"cat (1).png","subfolder":"","type":"input"}`)
		})

		name, err := client.UploadImage(ctx, strings.NewReader("pixels"), "cat.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("cat (1).png"))
	})

	It("classifies upload failures as media errors", func() {
		mux.HandleFunc("/upload/image", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := client.UploadImage(ctx, strings.NewReader("x"), "x.png")
		Expect(shared.IsCategory(err, shared.CategoryMedia)).To(BeTrue())
	})

	It("reads system stats", func() {
		mux.HandleFunc("/system_stats", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"system":{"os":"posix"}}`)
		})
		stats, err := client.SystemStats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(HaveKey("system"))
	})
})

var _ = Describe("Messages", func() {
	decode := func(s string) comfyui.WSMessage {
		var m comfyui.WSMessage
		Expect(json.Unmarshal([]byte(s), &m)).To(Succeed())
		return m
	}

	It("decodes the completion signal", func() {
		m := decode(`{"type":"executing","data":{"node":null,"prompt_id":"p"}}`)
		data, ok := m.Data.(*comfyui.ExecutingData)
		Expect(ok).To(BeTrue())
		Expect(data.Node).To(BeNil())
		Expect(m.PromptID()).To(Equal("p"))
	})

	It("decodes executed outputs", func() {
		m := decode(`{"type":"executed","data":{"node":"19","output":{"images":[{"filename":"a.png"}]},"prompt_id":"p"}}`)
		data := m.Data.(*comfyui.ExecutedData)
		Expect(data.Node).To(Equal("19"))
		Expect(data.Output).To(HaveKey("images"))
	})

	It("leaves unknown messages without data", func() {
		m := decode(`{"type":"crystools.monitor","data":{"cpu":3}}`)
		Expect(m.Data).To(BeNil())
		Expect(m.PromptID()).To(BeEmpty())
	})

	It("joins history error messages", func() {
		var entry comfyui.HistoryEntry
		Expect(json.Unmarshal([]byte(`{"status":{"status_str":"error","messages":[
			["execution_start",{"prompt_id":"p"}],
			["execution_error",{"prompt_id":"p","exception_message":"CUDA out of memory"}],
			["execution_error",{"prompt_id":"p","exception_message":"node 4 failed"}]
		]}}`), &entry)).To(Succeed())
		Expect(entry.Failed()).To(BeTrue())
		Expect(entry.ErrorMessage()).To(Equal("CUDA out of memory\nnode 4 failed"))

		empty := comfyui.HistoryEntry{Status: comfyui.HistoryStatus{StatusStr: "error"}}
		Expect(empty.ErrorMessage()).To(Equal("Unknown error"))
	})
})
