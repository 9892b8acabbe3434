package device

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// MJPEGOpener opens an HTTP multipart MJPEG stream, the transport most
// kiosk IP cameras expose. Resolution constraints are forwarded as query
// parameters; cameras that cannot honor them reject the request and the
// manager moves down the ladder.
type MJPEGOpener struct {
	StreamURL  string
	HTTPClient *http.Client
}

func (o *MJPEGOpener) Open(ctx context.Context, c Constraints) (FrameSource, error) {
	u, err := url.Parse(o.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad stream url: %v", ErrNoDevice, err)
	}
	q := u.Query()
	if c.IdealWidth > 0 {
		q.Set("width", strconv.Itoa(c.IdealWidth))
		q.Set("height", strconv.Itoa(c.IdealHeight))
	}
	if c.MinWidth > 0 {
		q.Set("min_width", strconv.Itoa(c.MinWidth))
		q.Set("min_height", strconv.Itoa(c.MinHeight))
	}
	if c.FacingFront {
		q.Set("facing", "front")
	}
	u.RawQuery = q.Encode()

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrPermissionDenied
	case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable:
		resp.Body.Close()
		return nil, ErrBusy
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: http %d", ErrNoDevice, resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrNoDevice, resp.Header.Get("Content-Type"))
	}

	src := &mjpegSource{
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
	}
	go src.decodeLoop()
	return src, nil
}

// mjpegSource decodes JPEG parts off the wire in the background and keeps
// only the latest frame.
type mjpegSource struct {
	body   io.ReadCloser
	reader *multipart.Reader

	mu     sync.Mutex
	frame  image.Image
	width  int
	height int
	err    error
	closed bool
}

func (s *mjpegSource) decodeLoop() {
	for {
		part, err := s.reader.NextPart()
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			// A torn part mid-stream is not fatal; keep the last good frame.
			continue
		}
		b := img.Bounds()
		s.mu.Lock()
		s.frame = img
		s.width = b.Dx()
		s.height = b.Dy()
		s.mu.Unlock()
	}
}

func (s *mjpegSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.frame == nil && s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

func (s *mjpegSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *mjpegSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.frame = nil
	s.mu.Unlock()
	return s.body.Close()
}
