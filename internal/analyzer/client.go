// Пакет analyzer — клиент LLM для анализа нормативных документов.
//
// Работает с OpenAI-совместимым endpoint chat completions в режиме
// response_format=json_object. Ответ строго проверяется: любое отклонение
// от контракта (не JSON, неизвестный тип, отсутствующее поле) — ErrClassification,
// частичный разбор не допускается.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/complyreg/register-module/internal/config"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// ErrClassification — LLM недоступна или вернула ответ не по контракту.
var ErrClassification = errors.New("ошибка анализа документа")

// maxResponseSize — ограничение на размер ответа LLM.
const maxResponseSize = 8 << 20

// Client вызывает OpenAI-совместимый endpoint chat completions.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	// Таймаут одного вызова анализа
	Timeout time.Duration
	// Максимальная длина текста (в символах), отправляемого модели
	MaxInputChars int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient создаёт клиент LLM из конфигурации.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:       cfg.LLMURL,
		APIKey:        cfg.LLMAPIKey,
		Model:         cfg.LLMModel,
		Timeout:       cfg.LLMTimeout,
		MaxInputChars: cfg.LLMMaxInputChars,
		HTTPClient:    &http.Client{Timeout: cfg.LLMTimeout},
		Logger:        logger.With(slog.String("component", "analyzer")),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze отправляет текст документа в LLM и возвращает проверенный результат.
func (c *Client) Analyze(ctx context.Context, text string) (*model.AnalysisResult, error) {
	if c.BaseURL == "" || c.Model == "" {
		return nil, fmt.Errorf("%w: не заданы URL или модель LLM", ErrClassification)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	input := c.truncate(text)
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Analyze the following text:\n\n" + input},
	}

	start := time.Now()
	content, err := c.chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	c.logger().Debug("Ответ LLM получен",
		slog.Int("input_chars", utf8.RuneCountInString(input)),
		slog.Int("response_bytes", len(content)),
		slog.Duration("duration", time.Since(start)),
	)

	result, err := parseAnalysis([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return result, nil
}

// chat выполняет запрос и возвращает содержимое первого варианта ответа.
func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:          c.Model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос к LLM: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("чтение ответа LLM: %w", err)
	}

	var payload chatResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("ответ LLM не JSON (HTTP %d): %w", resp.StatusCode, err)
	}
	if payload.Error != nil {
		return "", fmt.Errorf("LLM вернула ошибку (HTTP %d): %s", resp.StatusCode, payload.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM вернула HTTP %d", resp.StatusCode)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return "", errors.New("пустой ответ LLM")
	}
	return payload.Choices[0].Message.Content, nil
}

// truncate обрезает текст до MaxInputChars символов.
func (c *Client) truncate(text string) string {
	if c.MaxInputChars <= 0 || utf8.RuneCountInString(text) <= c.MaxInputChars {
		return text
	}
	runes := []rune(text)
	c.logger().Warn("Текст документа обрезан перед отправкой в LLM",
		slog.Int("chars", len(runes)),
		slog.Int("limit", c.MaxInputChars),
	)
	return string(runes[:c.MaxInputChars])
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
