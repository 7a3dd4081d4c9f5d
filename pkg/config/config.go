package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type TransportConfig struct {
	Type string     `mapstructure:"type"` // "stdio" or "sse"
	Host string     `mapstructure:"host"`
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"` // sse only
}

type ComfyUIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Cookies       string        `mapstructure:"cookies"`       // URL, JSON object or "k=v; k2=v2"
	ExecutorType  string        `mapstructure:"executor_type"` // "http" or "websocket"
	Timeout       time.Duration `mapstructure:"timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	WSReadTimeout time.Duration `mapstructure:"ws_read_timeout"`
}

type RunningHubConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryCount       int           `mapstructure:"retry_count"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	WorkflowCacheTTL time.Duration `mapstructure:"workflow_cache_ttl"`
}

// Configured reports whether RunningHub calls can be made at all.
func (c RunningHubConfig) Configured() bool {
	return c.APIKey != "" && c.BaseURL != ""
}

type WorkflowsConfig struct {
	Dir           string        `mapstructure:"dir"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

type MediaHTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MediaConfig struct {
	StoragePath     string          `mapstructure:"storage_path"`
	PublicReadURL   string          `mapstructure:"public_read_url"`
	TempDir         string          `mapstructure:"temp_dir"`
	TransferResults bool            `mapstructure:"transfer_results"`
	HTTP            MediaHTTPConfig `mapstructure:"http"`
	CORS            CORSConfig      `mapstructure:"cors"`
}

// ReadURL is the base used when building URLs for stored files.
func (c MediaConfig) ReadURL() string {
	if c.PublicReadURL != "" {
		return strings.TrimRight(c.PublicReadURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.HTTP.Host, c.HTTP.Port)
}

type BackendDiscoveryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

type ServerConfig struct {
	Transport        TransportConfig        `mapstructure:"transport"`
	LogLevel         string                 `mapstructure:"log_level"`
	LogFormat        string                 `mapstructure:"log_format"`
	LogBufferSize    int                    `mapstructure:"log_buffer_size"`
	ComfyUI          ComfyUIConfig          `mapstructure:"comfyui"`
	RunningHub       RunningHubConfig       `mapstructure:"runninghub"`
	Workflows        WorkflowsConfig        `mapstructure:"workflows"`
	Media            MediaConfig            `mapstructure:"media"`
	BackendDiscovery BackendDiscoveryConfig `mapstructure:"backend_discovery"`
}

func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Transport: TransportConfig{
			Type: "stdio",
			Host: "localhost",
			Port: 9004,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{},
			},
		},
		LogLevel:      "info",
		LogFormat:     "json",
		LogBufferSize: 1000,
		ComfyUI: ComfyUIConfig{
			BaseURL:       "http://localhost:8188",
			ExecutorType:  "http",
			Timeout:       30 * time.Minute,
			PollInterval:  1 * time.Second,
			WSReadTimeout: 3 * time.Second,
		},
		RunningHub: RunningHubConfig{
			BaseURL:          "https://www.runninghub.ai",
			Timeout:          time.Hour,
			RetryCount:       0,
			RetryBaseDelay:   1 * time.Second,
			PollInterval:     2 * time.Second,
			WorkflowCacheTTL: 10 * time.Minute,
		},
		Workflows: WorkflowsConfig{
			Dir:           "data/custom_workflows",
			Watch:         false,
			WatchDebounce: 500 * time.Millisecond,
		},
		Media: MediaConfig{
			StoragePath:     "data/files",
			TempDir:         "data/temp",
			TransferResults: true,
			HTTP: MediaHTTPConfig{
				Enabled: true,
				Host:    "localhost",
				Port:    9005,
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{},
			},
		},
		BackendDiscovery: BackendDiscoveryConfig{
			Enabled:      true,
			SyncInterval: 1 * time.Minute,
			ProbeTimeout: 5 * time.Second,
		},
	}
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile overrides the default search paths when set.
	ConfigFile string
	// Flags are bound on top of file and environment values.
	Flags *pflag.FlagSet
}

// flagBindings maps configuration keys to CLI flag names.
var flagBindings = map[string]string{
	"transport.type": "transport",
	"log_level":      "log-level",
	"workflows.dir":  "workflows-dir",
}

func LoadConfig() (*ServerConfig, error) {
	return Load(LoadOptions{})
}

func Load(opts LoadOptions) (*ServerConfig, error) {
	config := DefaultConfig()
	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/comfy-mcp/")
		v.AddConfigPath("$HOME/.comfy-mcp/")
	}

	v.SetEnvPrefix("COMFY_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, config)

	if opts.Flags != nil {
		for key, name := range flagBindings {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || opts.ConfigFile != "" {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, config *ServerConfig) {
	// Server configuration defaults
	v.SetDefault("transport.type", config.Transport.Type)
	v.SetDefault("transport.host", config.Transport.Host)
	v.SetDefault("transport.port", config.Transport.Port)
	v.SetDefault("transport.cors.enabled", config.Transport.CORS.Enabled)
	v.SetDefault("transport.cors.allowed_origins", config.Transport.CORS.AllowedOrigins)
	v.SetDefault("log_level", config.LogLevel)
	v.SetDefault("log_format", config.LogFormat)
	v.SetDefault("log_buffer_size", config.LogBufferSize)

	// ComfyUI defaults
	v.SetDefault("comfyui.base_url", config.ComfyUI.BaseURL)
	v.SetDefault("comfyui.api_key", config.ComfyUI.APIKey)
	v.SetDefault("comfyui.cookies", config.ComfyUI.Cookies)
	v.SetDefault("comfyui.executor_type", config.ComfyUI.ExecutorType)
	v.SetDefault("comfyui.timeout", config.ComfyUI.Timeout)
	v.SetDefault("comfyui.poll_interval", config.ComfyUI.PollInterval)
	v.SetDefault("comfyui.ws_read_timeout", config.ComfyUI.WSReadTimeout)

	// RunningHub defaults
	v.SetDefault("runninghub.base_url", config.RunningHub.BaseURL)
	v.SetDefault("runninghub.api_key", config.RunningHub.APIKey)
	v.SetDefault("runninghub.timeout", config.RunningHub.Timeout)
	v.SetDefault("runninghub.retry_count", config.RunningHub.RetryCount)
	v.SetDefault("runninghub.retry_base_delay", config.RunningHub.RetryBaseDelay)
	v.SetDefault("runninghub.poll_interval", config.RunningHub.PollInterval)
	v.SetDefault("runninghub.workflow_cache_ttl", config.RunningHub.WorkflowCacheTTL)

	// Workflow directory defaults
	v.SetDefault("workflows.dir", config.Workflows.Dir)
	v.SetDefault("workflows.watch", config.Workflows.Watch)
	v.SetDefault("workflows.watch_debounce", config.Workflows.WatchDebounce)

	// Media defaults
	v.SetDefault("media.storage_path", config.Media.StoragePath)
	v.SetDefault("media.public_read_url", config.Media.PublicReadURL)
	v.SetDefault("media.temp_dir", config.Media.TempDir)
	v.SetDefault("media.transfer_results", config.Media.TransferResults)
	v.SetDefault("media.http.enabled", config.Media.HTTP.Enabled)
	v.SetDefault("media.http.host", config.Media.HTTP.Host)
	v.SetDefault("media.http.port", config.Media.HTTP.Port)
	v.SetDefault("media.cors.enabled", config.Media.CORS.Enabled)
	v.SetDefault("media.cors.allowed_origins", config.Media.CORS.AllowedOrigins)

	// Backend discovery defaults
	v.SetDefault("backend_discovery.enabled", config.BackendDiscovery.Enabled)
	v.SetDefault("backend_discovery.sync_interval", config.BackendDiscovery.SyncInterval)
	v.SetDefault("backend_discovery.probe_timeout", config.BackendDiscovery.ProbeTimeout)
}

func validateConfig(config *ServerConfig) error {
	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[config.Transport.Type] {
		return fmt.Errorf("invalid transport type: %s", config.Transport.Type)
	}

	if config.Transport.Port <= 0 || config.Transport.Port > 65535 {
		return fmt.Errorf("the transport port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format: %s", config.LogFormat)
	}

	// ComfyUI
	if config.ComfyUI.BaseURL == "" {
		return fmt.Errorf("the ComfyUI base URL cannot be empty")
	}

	validExecutors := map[string]bool{"http": true, "websocket": true}
	if !validExecutors[config.ComfyUI.ExecutorType] {
		return fmt.Errorf("unsupported executor type: %s (valid types: websocket, http)", config.ComfyUI.ExecutorType)
	}

	if config.ComfyUI.Timeout <= 0 || config.ComfyUI.PollInterval <= 0 || config.ComfyUI.WSReadTimeout <= 0 {
		return fmt.Errorf("the ComfyUI timeout, poll interval and read timeout must be positive")
	}

	// RunningHub
	if config.RunningHub.RetryCount < 0 {
		return fmt.Errorf("the RunningHub retry count cannot be negative")
	}

	if config.RunningHub.Timeout <= 0 || config.RunningHub.PollInterval <= 0 {
		return fmt.Errorf("the RunningHub timeout and poll interval must be positive")
	}

	if config.Workflows.Dir == "" {
		return fmt.Errorf("the workflows directory cannot be empty")
	}

	if config.Media.HTTP.Enabled && (config.Media.HTTP.Port <= 0 || config.Media.HTTP.Port > 65535) {
		return fmt.Errorf("the media HTTP port must be between 1 and 65535")
	}

	return nil
}
