package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jasonscribd/transcribe-my-journal/internal/config"
	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	requestTimeout      = 10 * time.Minute
)

var improveSystemPrompt = "You are an editor. Improve the clarity, grammar, and punctuation of the text you are given. Preserve the original meaning and structure. Reply with the improved text only."

// errUnparsableResponse marks a 2xx reply whose body could not be decoded.
var errUnparsableResponse = errors.New("unparsable response body")

// Transcriber turns a page image into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, imageBytes []byte, apiKey, model, prompt string) (string, error)
}

// Improver rewrites existing plain text.
type Improver interface {
	Improve(ctx context.Context, text, apiKey, model string) (string, error)
}

// OpenAIService calls an OpenAI-compatible chat completions endpoint for
// both transcription (vision) and text improvement. It performs a single
// request per call: no retry, no backoff; pacing is the caller's concern.
type OpenAIService struct {
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func NewOpenAIService(cfg config.Config) *OpenAIService {
	return &OpenAIService{
		baseURL:   strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Transcribe sends one inline-encoded page image and returns the model's
// reply with surrounding whitespace trimmed.
func (s *OpenAIService) Transcribe(ctx context.Context, imageBytes []byte, apiKey, model, prompt string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)

	payload := map[string]any{
		"model": model,
		"messages": []chatMessage{
			{Role: "system", Content: prompt},
			{
				Role: "user",
				Content: []map[string]any{
					{
						"type": "image_url",
						"image_url": map[string]any{
							"url": "data:image/png;base64," + encoded,
						},
					},
				},
			},
		},
	}
	if s.maxTokens > 0 {
		payload["max_tokens"] = s.maxTokens
	}

	response, err := s.post(ctx, apiKey, payload)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Improve sends the fixed rewriting instruction plus the input text. When a
// successful response cannot be parsed into a reply, the original text is
// returned unchanged rather than surfacing an error.
func (s *OpenAIService) Improve(ctx context.Context, text, apiKey, model string) (string, error) {
	payload := map[string]any{
		"model": model,
		"messages": []chatMessage{
			{Role: "system", Content: improveSystemPrompt},
			{Role: "user", Content: text},
		},
		"temperature": 0.2,
	}

	response, err := s.post(ctx, apiKey, payload)
	if errors.Is(err, errUnparsableResponse) {
		return text, nil
	}
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return text, nil
	}

	improved := strings.TrimSpace(response.Choices[0].Message.Content)
	if improved == "" {
		return text, nil
	}
	return improved, nil
}

func (s *OpenAIService) post(ctx context.Context, apiKey string, payload map[string]any) (*chatResponse, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+chatCompletionsPath, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, s.decodeAPIError(resp)
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparsableResponse, err)
	}

	return &response, nil
}

// decodeAPIError extracts the detail from the service's structured error
// body when present, otherwise carries the raw response text.
func (s *OpenAIService) decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)

	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		detail = apiErr.Error.Message
	}

	return &domain.RemoteError{Status: resp.StatusCode, Detail: detail}
}
