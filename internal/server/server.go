package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"

	plugins "github.com/comfy-mcp/comfy-mcp/internal/server-plugin/application"
	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

// registerServerHooks uses fx.Hook to manage the server's lifecycle.
func registerServerHooks(lc fx.Lifecycle, cfg *config.ServerConfig, mcpServer *server.MCPServer, adapter *MCPAdapter, dynamicRegistry *plugins.DynamicServerPluginRegistry, shutdowner fx.Shutdowner, logger *slog.Logger) {
	var httpServer *http.Server

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Performing initial plugin synchronization...")
			if err := dynamicRegistry.SyncServerPlugins(ctx); err != nil {
				logger.Error("Initial plugin sync failed", "error", err)
			}

			if err := adapter.RegisterAllServerPlugins(ctx); err != nil {
				return fmt.Errorf("failed to register server plugins: %w", err)
			}

			// Later syncs add or remove plugin capabilities on the running server
			dynamicRegistry.Subscribe(func(ctx context.Context, change plugins.ActivationChange) {
				adapter.ApplyActivationChange(ctx, change.Deactivated, change.Activated)
			})

			switch cfg.Transport.Type {
			case "sse":
				addr := fmt.Sprintf("%s:%d", cfg.Transport.Host, cfg.Transport.Port)
				sseServer := server.NewSSEServer(mcpServer)
				httpServer = &http.Server{
					Addr:              addr,
					Handler:           CORSMiddleware(cfg.Transport.CORS)(sseServer),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					logger.Info("SSE server listening", "address", addr, "cors", cfg.Transport.CORS.Enabled)
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("SSE server failed", "error", err)
					}
				}()
			case "stdio":
				logger.Info("Starting MCP server with 'stdio' transport.")
				go func() {
					if err := server.ServeStdio(mcpServer); err != nil {
						logger.Error("Stdio server failed", "error", err)
					}
					// stdin closed: the client is gone
					_ = shutdowner.Shutdown()
				}()
			default:
				return fmt.Errorf("unknown transport type: %s", cfg.Transport.Type)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if httpServer != nil {
				logger.Info("Shutting down SSE server gracefully...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
			logger.Info("Stdio server shutdown.")
			return nil
		},
	})
}
