package executor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/comfy-mcp/comfy-mcp/internal/media"
	"github.com/comfy-mcp/comfy-mcp/internal/shared"
)

const transferConcurrency = 4

// Transferer re-hosts result media so callers get URLs that outlive the backend's output folder.
type Transferer struct {
	downloader media.Downloader
	uploader   media.Uploader
	enabled    bool
	logger     *slog.Logger
}

func NewTransferer(downloader media.Downloader, uploader media.Uploader, enabled bool, logger *slog.Logger) *Transferer {
	return &Transferer{
		downloader: downloader,
		uploader:   uploader,
		enabled:    enabled,
		logger:     logger.With("component", "result_transfer"),
	}
}

// TransferResultFiles rewrites every media URL of res in place. Each distinct URL is
// transferred once; texts are left untouched. A nil Transferer is a no-op.
func (t *Transferer) TransferResultFiles(ctx context.Context, res *Result, cookies map[string]string) error {
	if t == nil || !t.enabled || res == nil {
		return nil
	}

	var urls []string
	seen := make(map[string]bool)
	collect := func(list []string) {
		for _, u := range list {
			if u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	collect(res.Images)
	collect(res.Videos)
	collect(res.Audios)
	for _, byVar := range []map[string][]string{res.ImagesByVar, res.VideosByVar, res.AudiosByVar} {
		for _, list := range byVar {
			collect(list)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	var mu sync.Mutex
	replaced := make(map[string]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(transferConcurrency)
	for _, u := range urls {
		g.Go(func() error {
			newURL, err := t.transferOne(gctx, u, cookies)
			if err != nil {
				return err
			}
			mu.Lock()
			replaced[u] = newURL
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rewrite := func(list []string) {
		for i, u := range list {
			if n, ok := replaced[u]; ok {
				list[i] = n
			}
		}
	}
	rewrite(res.Images)
	rewrite(res.Videos)
	rewrite(res.Audios)
	for _, byVar := range []map[string][]string{res.ImagesByVar, res.VideosByVar, res.AudiosByVar} {
		for _, list := range byVar {
			rewrite(list)
		}
	}
	t.logger.Info("Transferred result files", "count", len(replaced))
	return nil
}

func (t *Transferer) transferOne(ctx context.Context, url string, cookies map[string]string) (string, error) {
	dl, err := t.downloader.Download(ctx, url, cookies)
	if err != nil {
		return "", shared.NewMediaError("transfer_result", "download "+url, err)
	}
	defer dl.Remove()

	f, err := dl.Open()
	if err != nil {
		return "", shared.NewMediaError("transfer_result", "open downloaded file", err)
	}
	defer f.Close()

	info, err := t.uploader.Upload(ctx, f, dl.Filename, dl.ContentType)
	if err != nil {
		return "", shared.NewMediaError("transfer_result", "upload "+dl.Filename, err)
	}
	return info.URL, nil
}
