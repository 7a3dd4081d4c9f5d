package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	// The full ServerConfig is supplied by fxapp; consumers pick the section they need
	fx.Provide(func(cfg *ServerConfig) TransportConfig { return cfg.Transport }),
	fx.Provide(func(cfg *ServerConfig) ComfyUIConfig { return cfg.ComfyUI }),
	fx.Provide(func(cfg *ServerConfig) RunningHubConfig { return cfg.RunningHub }),
	fx.Provide(func(cfg *ServerConfig) WorkflowsConfig { return cfg.Workflows }),
	fx.Provide(func(cfg *ServerConfig) MediaConfig { return cfg.Media }),
	fx.Provide(func(cfg *ServerConfig) BackendDiscoveryConfig { return cfg.BackendDiscovery }),
)
