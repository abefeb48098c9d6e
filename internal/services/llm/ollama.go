package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Ollama is the secondary provider, speaking the /api/chat endpoint of a
// local Ollama server. It has no tool-calling and no audio support.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *ratelimit.TokenBucket
	metrics    ThrottleMetrics
	logger     *logrus.Logger
}

func NewOllama(cfg *config.ProviderConfig, limiter *ratelimit.TokenBucket, metrics ThrottleMetrics, logger *logrus.Logger) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func (o *Ollama) GenerateText(ctx context.Context, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	messages := o.historyMessages(systemInstruction, history)
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})
	return o.chat(ctx, messages)
}

func (o *Ollama) GenerateWithImage(ctx context.Context, image models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	if prompt == "" {
		prompt = "Describe this image."
	}
	messages := o.historyMessages(systemInstruction, history)
	messages = append(messages, ollamaMessage{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image.Data)},
	})
	return o.chat(ctx, messages)
}

// GenerateWithAudio fails fast: the backend has no audio modality. This is a
// capability error, not a transient one, so it never triggers fallback.
func (o *Ollama) GenerateWithAudio(ctx context.Context, audio models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	o.logger.Warn("Audio generation requested but not supported by Ollama")
	return "", newError(KindCapability, o.Name(), fmt.Errorf("audio input is not supported"))
}

func (o *Ollama) chat(ctx context.Context, messages []ollamaMessage) (string, error) {
	if !o.limiter.TryAcquire() {
		o.logger.WithField("provider", o.Name()).Warn("Rate limit exceeded, waiting...")
		if o.metrics != nil {
			o.metrics.RecordThrottleWait(o.Name())
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	jsonData, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", newError(KindPermanent, o.Name(), fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", newError(KindPermanent, o.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.WithFields(logrus.Fields{
		"provider": o.Name(),
		"model":    o.model,
		"turns":    len(messages),
	}).Debug("Sending generation request")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", newError(KindTransient, o.Name(), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(KindTransient, o.Name(), fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		kind := KindPermanent
		if resp.StatusCode >= 500 {
			kind = KindTransient
		}
		return "", newError(kind, o.Name(), fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var result ollamaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", newError(KindPermanent, o.Name(), fmt.Errorf("failed to parse response: %w", err))
	}
	if result.Error != "" {
		return "", newError(KindPermanent, o.Name(), fmt.Errorf("api error: %s", result.Error))
	}
	if result.Message.Content == "" {
		return "", newError(KindPermanent, o.Name(), fmt.Errorf("empty response"))
	}
	return result.Message.Content, nil
}

// historyMessages maps stored roles to the Ollama chat roles, with the
// system instruction as the leading message.
func (o *Ollama) historyMessages(systemInstruction string, history []models.ChatMessage) []ollamaMessage {
	messages := make([]ollamaMessage, 0, len(history)+2)
	if systemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: systemInstruction})
	}
	for _, msg := range chronological(history) {
		role := msg.Role
		if role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, ollamaMessage{Role: role, Content: msg.Content})
	}
	return messages
}
