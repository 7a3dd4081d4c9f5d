//go:build !integration

package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

var _ = Describe("Load", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	writeConfig := func(content string) string {
		path := filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("should fall back to defaults for keys absent from the file", func() {
		path := writeConfig("log_level: debug\n")

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LogLevel).To(Equal("debug"))
		Expect(cfg.ComfyUI.BaseURL).To(Equal("http://localhost:8188"))
		Expect(cfg.ComfyUI.ExecutorType).To(Equal("http"))
		Expect(cfg.ComfyUI.WSReadTimeout).To(Equal(3 * time.Second))
		Expect(cfg.RunningHub.PollInterval).To(Equal(2 * time.Second))
		Expect(cfg.RunningHub.Timeout).To(Equal(time.Hour))
	})

	It("should decode nested sections", func() {
		path := writeConfig(`
comfyui:
  base_url: http://gpu-box:8188
  executor_type: websocket
  cookies: "session=abc"
runninghub:
  api_key: rh-key
  retry_count: 2
workflows:
  dir: /srv/workflows
  watch: true
media:
  public_read_url: https://cdn.example.com/
`)
		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ComfyUI.BaseURL).To(Equal("http://gpu-box:8188"))
		Expect(cfg.ComfyUI.ExecutorType).To(Equal("websocket"))
		Expect(cfg.ComfyUI.Cookies).To(Equal("session=abc"))
		Expect(cfg.RunningHub.Configured()).To(BeTrue())
		Expect(cfg.RunningHub.RetryCount).To(Equal(2))
		Expect(cfg.Workflows.Dir).To(Equal("/srv/workflows"))
		Expect(cfg.Workflows.Watch).To(BeTrue())
		Expect(cfg.Media.ReadURL()).To(Equal("https://cdn.example.com"))
	})

	It("should reject an unknown executor type", func() {
		path := writeConfig("comfyui:\n  executor_type: grpc\n")

		_, err := config.Load(config.LoadOptions{ConfigFile: path})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported executor type"))
	})

	It("should reject an invalid log level", func() {
		path := writeConfig("log_level: verbose\n")

		_, err := config.Load(config.LoadOptions{ConfigFile: path})
		Expect(err).To(MatchError(ContainSubstring("invalid log level")))
	})

	It("should fail when an explicit config file is missing", func() {
		_, err := config.Load(config.LoadOptions{ConfigFile: filepath.Join(tempDir, "missing.yaml")})
		Expect(err).To(HaveOccurred())
	})

	It("should let bound flags override the file", func() {
		path := writeConfig("transport:\n  type: stdio\n")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("transport", "stdio", "")
		flags.String("log-level", "info", "")
		Expect(flags.Parse([]string{"--transport", "sse", "--log-level", "warn"})).To(Succeed())

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path, Flags: flags})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Transport.Type).To(Equal("sse"))
		Expect(cfg.LogLevel).To(Equal("warn"))
	})

	It("should read environment overrides with the COMFY_MCP prefix", func() {
		path := writeConfig("")
		Expect(os.Setenv("COMFY_MCP_COMFYUI_API_KEY", "from-env")).To(Succeed())
		DeferCleanup(os.Unsetenv, "COMFY_MCP_COMFYUI_API_KEY")

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ComfyUI.APIKey).To(Equal("from-env"))
	})
})

var _ = Describe("MediaConfig", func() {
	It("should derive the read URL from the media HTTP listener when no public URL is set", func() {
		cfg := config.DefaultConfig()
		Expect(cfg.Media.ReadURL()).To(Equal("http://localhost:9005"))
	})
})
