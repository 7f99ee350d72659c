package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

// OllamaClient implementa Client contra la API HTTP de Ollama.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaClient construye un cliente apuntando a /api/chat y /api/tags.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *OllamaClient) buildMessages(req Request) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: "user", Content: req.Prompt})
	return messages
}

func (c *OllamaClient) doChatRequest(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: c.buildMessages(req),
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if payload.Model == "" {
		payload.Model = c.model
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		c.logger.Warn("ollama error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(respBody))),
		)
		return nil, fmt.Errorf("%w: status=%d", ErrGeneration, resp.StatusCode)
	}
	return resp, nil
}

// Generate hace una llamada batch y devuelve el texto completo. Una
// respuesta vacía es ErrGeneration, nunca un mensaje vacío.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := c.doChatRequest(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var cr ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if cr.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGeneration, cr.Error)
	}
	if cr.Message.Content == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return cr.Message.Content, nil
}

// GenerateStream consume la respuesta NDJSON línea a línea, invocando
// onFragment por cada delta en orden de llegada, y devuelve el texto
// concatenado al agotarse el stream.
func (c *OllamaClient) GenerateStream(ctx context.Context, req Request, onFragment func(string)) (string, error) {
	resp, err := c.doChatRequest(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var builder strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return builder.String(), fmt.Errorf("%w: decode stream chunk: %v", ErrGeneration, err)
		}
		if chunk.Error != "" {
			return builder.String(), fmt.Errorf("%w: %s", ErrGeneration, chunk.Error)
		}

		if delta := chunk.Message.Content; delta != "" {
			builder.WriteString(delta)
			if onFragment != nil {
				onFragment(delta)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return builder.String(), fmt.Errorf("%w: read stream: %v", ErrConnection, err)
	}
	return builder.String(), nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// ListModels consulta /api/tags. El caller decide el fallback cuando la
// llamada falla o no hay modelos.
func (c *OllamaClient) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status=%d", ErrGeneration, resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}

	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, domain.ModelInfo{
			Name:       m.Name,
			Status:     "available",
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}
