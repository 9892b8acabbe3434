package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"booth/internal/domain"
)

// Uploader stores a binary payload under a key and returns a public
// reference.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// RunContext identifies the pipeline run being persisted.
type RunContext struct {
	ProjectID string
	RequestID string
}

// Payload is the final raster in whichever representation the pipeline has.
// Image wins when set; otherwise Data; a bare RemoteURL is fetched and
// converted before upload, since the upload path requires binary payloads.
type Payload struct {
	Image     image.Image
	Data      []byte
	RemoteURL string
}

// Persister uploads final rasters with format-conversion fallbacks. An
// upload failure never aborts the pipeline: the outcome falls back to the
// original remote reference or an inline-encoded representation.
type Persister struct {
	uploader   Uploader
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func NewPersister(uploader Uploader, httpClient *http.Client, logger zerolog.Logger) *Persister {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Persister{uploader: uploader, httpClient: httpClient, logger: logger, now: time.Now}
}

// Persist produces a StorageOutcome for the raster. Exactly one of the
// outcome's RemoteURL or EmbeddedFallback is populated on return.
func (p *Persister) Persist(ctx context.Context, payload Payload, run RunContext) domain.StorageOutcome {
	data, contentType, err := p.encode(ctx, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("request_id", run.RequestID).Msg("storage: encode failed")
		if payload.RemoteURL != "" {
			return domain.StorageOutcome{RemoteURL: payload.RemoteURL, FailureReason: err.Error()}
		}
		return domain.StorageOutcome{FailureReason: err.Error()}
	}

	key := p.key(run, contentType)
	url, err := p.uploader.Upload(ctx, key, data, contentType)
	if err == nil {
		return domain.StorageOutcome{RemoteURL: url}
	}
	p.logger.Warn().Err(err).Str("key", key).Msg("storage: upload failed, falling back")

	if payload.RemoteURL != "" {
		// Retain the pre-upload reference rather than lose the raster.
		return domain.StorageOutcome{RemoteURL: payload.RemoteURL, FailureReason: err.Error()}
	}
	embedded := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	return domain.StorageOutcome{EmbeddedFallback: embedded, FailureReason: err.Error()}
}

// encode converts the payload into transportable bytes. PNG is preferred;
// JPEG is the conversion fallback.
func (p *Persister) encode(ctx context.Context, payload Payload) ([]byte, string, error) {
	switch {
	case payload.Image != nil:
		var buf bytes.Buffer
		if err := png.Encode(&buf, payload.Image); err == nil {
			return buf.Bytes(), "image/png", nil
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, payload.Image, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", fmt.Errorf("encode raster: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	case len(payload.Data) > 0:
		return payload.Data, sniffContentType(payload.Data), nil
	case payload.RemoteURL != "":
		return p.fetch(ctx, payload.RemoteURL)
	default:
		return nil, "", fmt.Errorf("no raster to persist")
	}
}

func (p *Persister) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch result: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	return data, sniffContentType(data), nil
}

func (p *Persister) key(run RunContext, contentType string) string {
	ext := "png"
	if contentType == "image/jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%s-%s.%s", run.ProjectID, p.now().UTC().Format("20060102T150405"), ksuid.New().String(), ext)
}

func sniffContentType(data []byte) string {
	ct := http.DetectContentType(data)
	switch ct {
	case "image/png", "image/jpeg", "image/webp":
		return ct
	default:
		return "application/octet-stream"
	}
}
