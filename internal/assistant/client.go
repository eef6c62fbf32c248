// Package assistant talks to an OpenAI-compatible generation API for chat
// replies, emotion labels, reflective prompts and entry images.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/reverie/internal/apperr"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o-mini"
	DefaultImageModel = "gpt-image-1"
	DefaultTimeout    = 120 * time.Second
)

// Config holds configuration for the generation client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	Timeout    time.Duration
}

// Client implements every generation collaborator over one HTTP client.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	model      string
	imageModel string
}

// New creates a Client, filling defaults for unset fields.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assistant: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Reply generates a therapist reply for an assembled conversation context.
func (c *Client) Reply(ctx context.Context, contextText, mode string) (string, error) {
	mode = NormalizeMode(mode)
	prompt := fmt.Sprintf("Respond as a %s therapist.\n\n%s\n\n"+
		"Provide a response that aligns with the %s approach while offering thoughtful and empathetic insights. "+
		"Keep the message to the point but meaningful.", mode, contextText, mode)
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: assistant: empty reply", apperr.ErrUpstream)
	}
	return StripEmphasis(text), nil
}

// ClassifyEmotions labels entry text with up to MaxEmotions GoEmotions labels.
func (c *Client) ClassifyEmotions(ctx context.Context, entryText string) ([]string, error) {
	prompt := "Given the following journal entry, identify the top 5 emotions strictly from this list of " +
		"28 emotions in the GoEmotions dataset: " + strings.Join(Emotions, ", ") + ".\n" +
		"If an emotion does not match exactly, use the closest valid emotion. If completely uncertain, use \"neutral\".\n" +
		"Return only JSON in the form {\"emotions\": [\"emotion1\", \"emotion2\"]}.\n\n" +
		"Journal entry:\n" + entryText
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out struct {
		Emotions []json.RawMessage `json:"emotions"`
	}
	if err := decodeEmbedded(text, &out); err != nil {
		return nil, err
	}
	raw := make([]string, 0, len(out.Emotions))
	for _, e := range out.Emotions {
		raw = append(raw, firstString(e))
	}
	return NormalizeEmotions(raw), nil
}

// ReflectivePrompt returns a short question that helps the writer explore
// the feelings in entryText.
func (c *Client) ReflectivePrompt(ctx context.Context, entryText string) (string, error) {
	prompt := "Given the following journal entry, generate a short, insightful question that helps the user " +
		"explore their emotions further. Return only JSON in the form {\"prompt\": \"Your question here.\"}.\n\n" +
		"Journal entry:\n" + entryText
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	var out struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeEmbedded(text, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Prompt) == "" {
		return "", fmt.Errorf("%w: assistant: empty prompt", apperr.ErrUpstream)
	}
	return strings.TrimSpace(out.Prompt), nil
}

// GenerateImage renders a PNG illustrating entryText.
func (c *Client) GenerateImage(ctx context.Context, entryText string) ([]byte, error) {
	prompt := "A vivid illustration of the feelings and imagery in this journal entry, in a fantastical style " +
		"that stays grounded in the ordinary world, with subtle magical details and a dreamlike atmosphere:\n" + entryText
	var resp imageResponse
	req := imageRequest{Model: c.imageModel, Prompt: prompt, N: 1, Size: "1024x1024", ResponseFormat: "b64_json"}
	if err := c.post(ctx, "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: assistant: no image data", apperr.ErrUpstream)
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: assistant: decode image: %w", apperr.ErrUpstream, err)
	}
	return img, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{Model: c.model, Messages: []chatMessage{{Role: "user", Content: prompt}}}
	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: assistant: no choices returned", apperr.ErrUpstream)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("assistant: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("assistant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: assistant: send request: %w", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: assistant: read response: %w", apperr.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return fmt.Errorf("%w: assistant: status %d: %s", apperr.ErrUpstream, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: assistant: decode response: %w", apperr.ErrUpstream, err)
	}
	return nil
}

// decodeEmbedded extracts the JSON object embedded in model output into out.
func decodeEmbedded(text string, out any) error {
	obj, ok := ExtractJSON(text)
	if !ok {
		return fmt.Errorf("%w: assistant: no JSON object in response", apperr.ErrUpstream)
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("%w: assistant: decode JSON: %w", apperr.ErrUpstream, err)
	}
	return nil
}

// firstString accepts either "label" or ["label", extra...].
func firstString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil && len(arr) > 0 {
		_ = json.Unmarshal(arr[0], &s)
	}
	return s
}
