package compositing

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/rs/zerolog"

	"booth/internal/domain"
)

// Loader fetches a project's watermark asset. The asset is fetched once per
// generation and treated as read-only for the duration of compositing.
type Loader struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewLoader(client *http.Client, logger zerolog.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{httpClient: client, logger: logger}
}

// Fetch downloads and decodes the watermark raster, binding it to the
// project's output canvas dimensions.
func (l *Loader) Fetch(ctx context.Context, url string, canvasW, canvasH int) (*domain.WatermarkAsset, error) {
	if url == "" {
		return nil, errors.New("watermark url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("watermark request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch watermark: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch watermark: http %d", resp.StatusCode)
	}

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode watermark: %w", err)
	}
	l.logger.Debug().Str("format", format).Int("canvas_w", canvasW).Int("canvas_h", canvasH).Msg("compositing: watermark loaded")
	return &domain.WatermarkAsset{Image: img, CanvasWidth: canvasW, CanvasHeight: canvasH}, nil
}
