// Package music provides a client for an instrumental music composition API.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/story-service/internal/core"
)

const (
	apiCompose        = "/v1/music"
	headerContentType = "Content-Type"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
)

const (
	errFmtServiceNonOKStatus = "music service returned non-OK status: %s, body: %s"
	errFmtServiceError       = "music service error (%s) %s: %s"
	errFmtLengthRange        = "%w: got %d ms"
)

var (
	// ErrPromptEmpty indicates that no music description was supplied.
	ErrPromptEmpty = errors.New("music prompt cannot be empty")
	// ErrLengthNotPositive indicates a non-positive requested length.
	ErrLengthNotPositive = errors.New("music length must be positive")
)

// Client submits composition requests and returns the resulting audio stream.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type composeRequest struct {
	Prompt        string `json:"prompt"`
	MusicLengthMs int    `json:"music_length_ms"`
}

// NewClient creates a music client. Composition is slow, so timeout should be generous.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Compose requests an instrumental track for req.Prompt. The caller must close the stream.
func (c *Client) Compose(ctx context.Context, req core.MusicRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrPromptEmpty
	}

	if req.LengthMs <= 0 {
		return nil, fmt.Errorf(errFmtLengthRange, ErrLengthNotPositive, req.LengthMs)
	}

	body, err := json.Marshal(composeRequest{Prompt: req.Prompt, MusicLengthMs: req.LengthMs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiCompose, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit composition: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp.Body, nil
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail.Message != "" {
		return fmt.Errorf(errFmtServiceError, resp.Status, errorResp.Detail.Status, errorResp.Detail.Message)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
