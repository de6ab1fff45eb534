package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Prompts used by the chat-style providers. The wording matters less than
// producing a single normalized text output per task kind.
func promptFor(kind models.TaskKind, input string) string {
	switch kind {
	case models.TaskSummarize:
		return "Summarize the following meeting transcript in a few short paragraphs:\n\n" + input
	case models.TaskExtractActions:
		return "List the action items from the following meeting transcript, one per line, with owners where stated:\n\n" + input
	}
	return input
}

// newHTTPClient returns the client shared by provider adapters. Timeouts
// come from the per-attempt context, not the client.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// decodeAudio decodes a base64 speech-chunk payload.
func decodeAudio(input string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decoding audio input: %w", err)
	}
	return data, nil
}

// OpenAIProvider adapts the OpenAI API: chat completions for text tasks and
// the transcriptions endpoint for audio.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	chatModel  string
	audioModel string
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:    "https://api.openai.com",
		apiKey:     apiKey,
		chatModel:  "gpt-4o-mini",
		audioModel: "whisper-1",
		httpClient: newHTTPClient(),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Invoke implements Provider.
func (p *OpenAIProvider) Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error) {
	if kind == models.TaskTranscribe {
		return p.transcribe(ctx, input)
	}
	return p.chat(ctx, promptFor(kind, input))
}

func (p *OpenAIProvider) chat(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"model": p.chatModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := doJSON(p.httpClient, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) transcribe(ctx context.Context, input string) (string, error) {
	audio, err := decodeAudio(input)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "chunk.webm")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", p.audioModel)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var resp struct {
		Text string `json:"text"`
	}
	if err := doJSON(p.httpClient, req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// AnthropicProvider adapts the Anthropic messages API. Text tasks only; the
// chains keep transcription off this provider.
type AnthropicProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		baseURL:    "https://api.anthropic.com",
		apiKey:     apiKey,
		model:      "claude-3-5-haiku-latest",
		httpClient: newHTTPClient(),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Invoke implements Provider.
func (p *AnthropicProvider) Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error) {
	if kind == models.TaskTranscribe {
		return "", fmt.Errorf("anthropic: transcription not supported")
	}

	body, _ := json.Marshal(map[string]any{
		"model":      p.model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": promptFor(kind, input)},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := doJSON(p.httpClient, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty content")
	}
	return resp.Content[0].Text, nil
}

// GeminiProvider adapts the Gemini generateContent API. Audio goes inline
// as base64, which matches the speech-chunk payload directly.
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini adapter.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		baseURL:    "https://generativelanguage.googleapis.com",
		apiKey:     apiKey,
		model:      "gemini-1.5-flash",
		httpClient: newHTTPClient(),
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Invoke implements Provider.
func (p *GeminiProvider) Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error) {
	var parts []map[string]any
	if kind == models.TaskTranscribe {
		if _, err := decodeAudio(input); err != nil {
			return "", err
		}
		parts = []map[string]any{
			{"text": "Transcribe this audio."},
			{"inline_data": map[string]string{"mime_type": "audio/webm", "data": input}},
		}
	} else {
		parts = []map[string]any{{"text": promptFor(kind, input)}}
	}

	body, _ := json.Marshal(map[string]any{
		"contents": []map[string]any{{"parts": parts}},
	})

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := doJSON(p.httpClient, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// doJSON executes a request and decodes a JSON response, normalizing
// non-2xx statuses into errors.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
