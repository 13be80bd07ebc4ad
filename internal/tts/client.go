// Package tts provides a speech synthesis client for the narration stage.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/story-service/internal/core"
)

// API endpoints and paths.
const (
	apiTextToSpeech = "/v1/text-to-speech/"
	apiUser         = "/v1/user"
	queryFormat     = "output_format"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Error messages.
const (
	errFmtServiceError       = "TTS service error (%s): %s"
	errFmtServiceNonOKStatus = "TTS service returned non-OK status: %s, body: %s"
)

var (
	// ErrTextEmpty indicates that no text was supplied.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrVoiceEmpty indicates that no voice id was supplied.
	ErrVoiceEmpty = errors.New("voice id cannot be empty")
)

// HTTPClient represents a client for a text-to-speech HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Request defines the JSON payload for speech synthesis.
type Request struct {
	// Text contains the full narration to convert to speech.
	Text string `json:"text"`

	// ModelID selects the synthesis model.
	ModelID string `json:"model_id,omitempty"`
}

// ErrorResponse represents a structured error response from the service.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// NewHTTPClient creates and configures a client for the TTS service.
// The baseURL should include the protocol (e.g., "https://api.elevenlabs.io").
// The timeout applies to the whole request including reading the audio body.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize requests speech for req.Text in the given voice and returns the
// audio stream. The caller must close it.
func (c *HTTPClient) Synthesize(ctx context.Context, req core.SpeechRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.VoiceID == "" {
		return nil, ErrVoiceEmpty
	}

	requestBody, err := json.Marshal(Request{Text: req.Text, ModelID: req.ModelID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + apiTextToSpeech + url.PathEscape(req.VoiceID)
	if req.OutputFormat != "" {
		endpoint += "?" + url.Values{queryFormat: {req.OutputFormat}}.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	return resp.Body, nil
}

// HealthCheck verifies that the service accepts the configured key.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiUser, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the service.
// If structured parsing fails, it falls back to returning the raw response body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && len(errorResp.Detail) > 0 {
		return fmt.Errorf(errFmtServiceError, resp.Status, detailMessage(errorResp.Detail))
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}

// detailMessage flattens a detail that is either a string or an object with a message.
func detailMessage(raw json.RawMessage) string {
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}

	var object struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &object) == nil && object.Message != "" {
		return object.Message
	}

	return string(raw)
}
