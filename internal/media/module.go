package media

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

func NewLocalStorageFromConfig(cfg config.MediaConfig, logger *slog.Logger) (*LocalStorage, error) {
	return NewLocalStorage(cfg.StoragePath, cfg.ReadURL(), logger)
}

func NewDownloaderFromConfig(cfg config.MediaConfig, logger *slog.Logger) Downloader {
	return NewHTTPDownloader(cfg.TempDir, logger)
}

func registerServerHooks(lc fx.Lifecycle, cfg config.MediaConfig, store *LocalStorage, logger *slog.Logger) {
	if !cfg.HTTP.Enabled {
		logger.Info("Media file server disabled")
		return
	}
	srv := NewServer(cfg, store, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return srv.Start() },
		OnStop:  srv.Stop,
	})
}

var Module = fx.Module("media",
	fx.Provide(NewLocalStorageFromConfig),
	fx.Provide(func(s *LocalStorage) Uploader { return s }),
	fx.Provide(NewDownloaderFromConfig),
	fx.Invoke(registerServerHooks),
)
