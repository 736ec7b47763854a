// Package openai wraps the two OpenAI endpoints callscribe uses: Whisper
// audio transcription and chat completions for summarization.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/callscribe-io/callscribe/internal/retry"
)

// TranscriptionError is a transcription failure that survived retry
// exhaustion.
type TranscriptionError struct {
	AudioPath string
	Err       error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("openai: transcribe %s: %v", e.AudioPath, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// summarization runs at low temperature for stable section structure
const chatTemperature = 0.2

// Client talks to the OpenAI API (or any compatible endpoint).
type Client struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	whisperModel string
	chatModel    string
	policy       retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithWhisperModel sets the transcription model.
func WithWhisperModel(model string) Option {
	return func(c *Client) { c.whisperModel = model }
}

// WithChatModel sets the summarization model.
func WithChatModel(model string) Option {
	return func(c *Client) { c.chatModel = model }
}

// WithRetryPolicy overrides the retry policy applied to every remote call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates an OpenAI client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 300 * time.Second},
		baseURL:      "https://api.openai.com/v1",
		apiKey:       apiKey,
		whisperModel: "whisper-1",
		chatModel:    "gpt-5",
		policy:       retry.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads the audio file at audioPath and returns its transcript
// as plain text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.transcribe(ctx, audioPath)
	})
	if err != nil {
		return "", &TranscriptionError{AudioPath: audioPath, Err: err}
	}
	return text, nil
}

func (c *Client) transcribe(ctx context.Context, audioPath string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	w.WriteField("model", c.whisperModel)
	w.WriteField("response_format", "json")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var result transcriptionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return result.Text, nil
}

// Complete sends a system+user message pair to the chat-completions
// endpoint and returns the generated text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.complete(ctx, system, prompt)
	})
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	temp := chatTemperature
	body := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// --- OpenAI wire format types ---

type transcriptionResponse struct {
	Text string `json:"text"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
