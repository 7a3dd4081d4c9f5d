package plugins

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/internal/server-plugin/domain"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// ServerPluginRegistry manages the basic registration of server plugins
type ServerPluginRegistry struct {
	plugins map[string]domain.ServerPlugin
	mu      sync.RWMutex
}

func NewServerPluginRegistry() *ServerPluginRegistry {
	return &ServerPluginRegistry{
		plugins: make(map[string]domain.ServerPlugin),
	}
}

func (r *ServerPluginRegistry) Register(plugin domain.ServerPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins[plugin.ID()] = plugin
	return nil
}

// Count returns how many plugins were registered, active or not.
func (r *ServerPluginRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.plugins)
}

// ActivationChange is delivered to subscribers after a sync changed the active set.
type ActivationChange struct {
	Activated   []domain.ServerPlugin
	Deactivated []domain.ServerPlugin
}

// ActivationListener reacts to plugins being switched on or off after the initial registration.
type ActivationListener func(ctx context.Context, change ActivationChange)

// DynamicServerPluginRegistry manages the lifecycle of server plugins based on
// which execution backends are reachable.
type DynamicServerPluginRegistry struct {
	pluginRegistry   *ServerPluginRegistry
	backendDiscovery domain.BackendDiscoveryService
	logger           *slog.Logger
	cfg              config.BackendDiscoveryConfig

	allServerPlugins []domain.ServerPlugin
	active           map[string]bool
	backends         []string
	lastSync         time.Time
	listeners        []ActivationListener
	mu               sync.RWMutex
}

type DynamicServerPluginRegistryParams struct {
	fx.In
	PluginRegistry   *ServerPluginRegistry
	BackendDiscovery domain.BackendDiscoveryService
	Logger           *slog.Logger
	Config           config.BackendDiscoveryConfig
	ServerPlugins    []domain.ServerPlugin `group:"server_plugins"`
}

func NewDynamicServerPluginRegistry(params DynamicServerPluginRegistryParams) *DynamicServerPluginRegistry {
	return &DynamicServerPluginRegistry{
		pluginRegistry:   params.PluginRegistry,
		backendDiscovery: params.BackendDiscovery,
		logger:           params.Logger.With("component", "plugin_registry"),
		cfg:              params.Config,
		allServerPlugins: params.ServerPlugins,
		active:           make(map[string]bool),
	}
}

// Subscribe adds a listener called after every sync that activated or deactivated a plugin.
func (r *DynamicServerPluginRegistry) Subscribe(listener ActivationListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, listener)
}

// RegisterHooks connects the registry's lifecycle to the Fx application lifecycle.
func (r *DynamicServerPluginRegistry) RegisterHooks(lc fx.Lifecycle) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.logger.Info("DynamicServerPluginRegistry starting...")

			for _, srvPlugin := range r.allServerPlugins {
				if err := r.pluginRegistry.Register(srvPlugin); err != nil {
					r.logger.Error("Failed to register server plugin",
						"plugin", srvPlugin.ID(),
						"error", err)
					continue
				}
				r.logger.Debug("ServerPlugin registered with registry",
					"plugin", srvPlugin.ID(),
					"name", srvPlugin.Name(),
					"backend", srvPlugin.RequiredBackend())
			}

			// The initial sync runs from the server hook, before MCP registration
			if r.cfg.Enabled && r.cfg.SyncInterval > 0 {
				r.logger.Info("Starting backend discovery sync loop", "interval", r.cfg.SyncInterval)
				go r.runSyncLoop(ctx, r.cfg.SyncInterval)
			} else {
				r.logger.Info("Backend discovery sync loop disabled")
			}
			return nil
		},
		OnStop: func(context.Context) error {
			r.logger.Info("DynamicServerPluginRegistry stopping...")
			cancel()
			return nil
		},
	})
}

func (r *DynamicServerPluginRegistry) runSyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ServerPlugin synchronization loop stopped")
			return
		case <-ticker.C:
			if err := r.syncServerPlugins(ctx); err != nil {
				r.logger.Error("ServerPlugin sync failed", "error", err)
			}
		}
	}
}

func (r *DynamicServerPluginRegistry) syncServerPlugins(ctx context.Context) error {
	r.logger.Debug("Starting server plugin synchronization")

	backends, err := r.backendDiscovery.GetAvailableBackends(ctx)
	if err != nil {
		r.logger.Error("Failed to discover backends, proceeding with core plugins only", "error", err)
		backends = []string{}
	}

	r.mu.Lock()
	var change ActivationChange
	for _, srvPlugin := range r.allServerPlugins {
		id := srvPlugin.ID()
		backend := srvPlugin.RequiredBackend()

		shouldBeActive := backend == "" || slices.Contains(backends, backend)
		isCurrentlyActive := r.active[id]

		switch {
		case shouldBeActive && !isCurrentlyActive:
			r.active[id] = true
			change.Activated = append(change.Activated, srvPlugin)
			r.logger.Info("ServerPlugin activated", "plugin", id, "name", srvPlugin.Name(), "backend", backend)
		case !shouldBeActive && isCurrentlyActive:
			r.active[id] = false
			change.Deactivated = append(change.Deactivated, srvPlugin)
			r.logger.Info("ServerPlugin deactivated", "plugin", id, "name", srvPlugin.Name(), "backend", backend)
		}
	}
	r.backends = backends
	r.lastSync = time.Now()
	listeners := slices.Clone(r.listeners)
	totalActive := r.activeCountLocked()
	r.mu.Unlock()

	r.logger.Info("ServerPlugin synchronization completed",
		"backends", backends,
		"activated", len(change.Activated),
		"deactivated", len(change.Deactivated),
		"total_active", totalActive)

	if len(change.Activated) > 0 || len(change.Deactivated) > 0 {
		for _, listener := range listeners {
			listener(ctx, change)
		}
	}
	return nil
}

// activeCountLocked must be called with mu held.
func (r *DynamicServerPluginRegistry) activeCountLocked() int {
	count := 0
	for _, plugin := range r.allServerPlugins {
		if r.active[plugin.ID()] {
			count++
		}
	}
	return count
}

func (r *DynamicServerPluginRegistry) GetActiveServerPlugins() []domain.ServerPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var activeServerPlugins []domain.ServerPlugin
	for _, srvPlugin := range r.allServerPlugins {
		if r.active[srvPlugin.ID()] {
			activeServerPlugins = append(activeServerPlugins, srvPlugin)
		}
	}
	return activeServerPlugins
}

func (r *DynamicServerPluginRegistry) IsServerPluginActive(srvPluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active[srvPluginID]
}

// AvailableBackends returns the backends seen by the last sync and when it ran.
func (r *DynamicServerPluginRegistry) AvailableBackends() ([]string, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.backends), r.lastSync
}

// SyncServerPlugins performs a manual synchronization of server plugins.
func (r *DynamicServerPluginRegistry) SyncServerPlugins(ctx context.Context) error {
	return r.syncServerPlugins(ctx)
}
