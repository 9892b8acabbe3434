// Package style implements the HTTP client for the external style-transfer
// service, satisfying generation.Backend.
package style

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"booth/internal/generation"
)

// Options configures the client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the style-transfer API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
	}
}

type startRequest struct {
	Prompt       string `json:"prompt"`
	ReferenceURL string `json:"reference_url,omitempty"`
	ImageB64     string `json:"image_b64"`
	OutputFormat string `json:"output_format"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type jobResponse struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	Logs     []string `json:"logs,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	ImageB64 string   `json:"image_b64,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Start submits a generation job. Backends may answer synchronously with a
// terminal status and result, which short-circuits polling upstream.
func (c *Client) Start(ctx context.Context, in generation.StartInput) (generation.StartResult, error) {
	if c == nil || c.baseURL == "" {
		return generation.StartResult{}, errors.New("style: client not configured")
	}
	if c.token == "" {
		return generation.StartResult{}, errors.New("style: API key is missing")
	}
	if len(in.ImagePNG) == 0 {
		return generation.StartResult{}, errors.New("style: image payload required")
	}

	payload := startRequest{
		Prompt:       in.Prompt,
		ReferenceURL: in.ReferenceURL,
		ImageB64:     base64.StdEncoding.EncodeToString(in.ImagePNG),
		OutputFormat: in.OutputFormat,
		Width:        in.Width,
		Height:       in.Height,
	}
	var out jobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", payload, &out); err != nil {
		return generation.StartResult{}, err
	}

	res := generation.StartResult{JobID: out.JobID}
	if out.Status == "succeeded" {
		res.Done = true
		res.ResultURL = out.ImageURL
		if out.ImageB64 != "" {
			data, err := base64.StdEncoding.DecodeString(out.ImageB64)
			if err != nil {
				return generation.StartResult{}, fmt.Errorf("style: decode result: %w", err)
			}
			res.ResultData = data
		}
	}
	if res.JobID == "" && !res.Done {
		return generation.StartResult{}, errors.New("style: missing job id")
	}
	return res, nil
}

// Poll fetches the current job status, progress transcript and result.
func (c *Client) Poll(ctx context.Context, jobID string) (generation.PollResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return generation.PollResult{}, errors.New("style: job id required")
	}
	var out jobResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &out); err != nil {
		return generation.PollResult{}, err
	}

	res := generation.PollResult{
		State:     mapState(out.Status),
		LogLines:  out.Logs,
		ResultURL: out.ImageURL,
		Message:   out.Message,
	}
	if out.ImageB64 != "" {
		data, err := base64.StdEncoding.DecodeString(out.ImageB64)
		if err != nil {
			return generation.PollResult{}, fmt.Errorf("style: decode result: %w", err)
		}
		res.ResultData = data
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("style: http %d", resp.StatusCode)
		}
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if jr, ok := out.(*jobResponse); ok && jr.Message != "" {
			return fmt.Errorf("style error: %s (%s)", jr.Message, jr.Code)
		}
		return fmt.Errorf("style: http %d", resp.StatusCode)
	}
	return nil
}

func mapState(status string) generation.JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "completed", "done":
		return generation.JobSucceeded
	case "failed", "error", "cancelled":
		return generation.JobFailed
	case "running", "processing":
		return generation.JobRunning
	default:
		return generation.JobQueued
	}
}
