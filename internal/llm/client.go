// Package llm provides a structured-output text generation client for
// OpenAI-compatible chat completion APIs.
package llm

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

// API endpoints and paths.
const (
	apiChatCompletions = "/v1/chat/completions"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// Message roles and response format types.
const (
	roleUser             = "user"
	responseFormatSchema = "json_schema"
	schemaTypeObject     = "object"
	schemaTypeString     = "string"
)

// Error messages.
const (
	errFmtServiceNonOKStatus = "LLM service returned non-OK status: %s, body: %s"
	errFmtServiceError       = "LLM service error (%s): %s"
	errFmtMissingField       = "%w: field %q missing from structured result"
	errFmtFieldNotString     = "%w: field %q is not a string"
)

var (
	// ErrPromptEmpty indicates that no prompt was supplied.
	ErrPromptEmpty = errors.New("prompt cannot be empty")
	// ErrNoChoices indicates a response without any completion choice.
	ErrNoChoices = errors.New("LLM response contained no choices")
	// ErrMalformedResult indicates content that does not match the requested schema.
	ErrMalformedResult = errors.New("malformed structured result")
)

// Client calls a chat completions endpoint and decodes a JSON-schema constrained answer.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float64       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a text generation client.
func NewClient(opts Options) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
	}
}

// Generate sends prompt with schema as the response format and returns the
// decoded fields. Every schema field must be present as a string.
func (c *Client) Generate(ctx context.Context, prompt string, schema core.Schema) (map[string]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptEmpty
	}

	requestBody, err := json.Marshal(c.buildRequest(prompt, schema))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiChatCompletions, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	if c.apiKey != "" {
		httpReq.Header.Set(headerAuthorization, bearerPrefix+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to LLM service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var completion chatResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&completion)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if len(completion.Choices) == 0 {
		return nil, ErrNoChoices
	}

	return decodeStructured(completion.Choices[0].Message.Content, schema)
}

func (c *Client) buildRequest(prompt string, schema core.Schema) chatRequest {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: roleUser, Content: prompt}},
		ResponseFormat: responseFormat{
			Type: responseFormatSchema,
			JSONSchema: jsonSchemaFormat{
				Name:   schema.Name,
				Strict: true,
				Schema: SchemaDocument(schema),
			},
		},
	}

	if c.temperature > 0 {
		temperature := c.temperature
		req.Temperature = &temperature
	}

	return req
}

// SchemaDocument renders schema as a JSON Schema object with required string properties.
func SchemaDocument(schema core.Schema) map[string]any {
	properties := make(map[string]any, len(schema.Fields))
	required := make([]string, 0, len(schema.Fields))

	for _, field := range schema.Fields {
		properties[field.Name] = map[string]any{
			"type":        schemaTypeString,
			"description": field.Description,
		}
		required = append(required, field.Name)
	}

	return map[string]any{
		"type":                 schemaTypeObject,
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// decodeStructured parses content as a JSON object, tolerating a markdown code fence.
func decodeStructured(content string, schema core.Schema) (map[string]string, error) {
	var raw map[string]any

	unmarshalErr := json.Unmarshal([]byte(stripCodeFence(content)), &raw)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResult, unmarshalErr)
	}

	result := make(map[string]string, len(schema.Fields))

	for _, field := range schema.Fields {
		value, found := raw[field.Name]
		if !found {
			return nil, fmt.Errorf(errFmtMissingField, ErrMalformedResult, field.Name)
		}

		text, isString := value.(string)
		if !isString {
			return nil, fmt.Errorf(errFmtFieldNotString, ErrMalformedResult, field.Name)
		}

		result[field.Name] = text
	}

	return result, nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	return strings.TrimSpace(trimmed)
}

// parseErrorResponse decodes a structured error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp errorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf(errFmtServiceError, resp.Status, errorResp.Error.Message)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
