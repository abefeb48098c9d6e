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
	"github.com/horus-ai-bot-go/internal/services/tools"
	"github.com/sirupsen/logrus"
)

// Gemini is the primary provider. It speaks the generateContent REST API
// with automatic function calling enabled.
type Gemini struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *ratelimit.TokenBucket
	tools      *tools.Registry
	metrics    ThrottleMetrics
	logger     *logrus.Logger
}

func NewGemini(cfg *config.ProviderConfig, limiter *ratelimit.TokenBucket, registry *tools.Registry, metrics ThrottleMetrics, logger *logrus.Logger) *Gemini {
	return &Gemini{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		tools:      registry,
		metrics:    metrics,
		logger:     logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

// Wire types for the generateContent endpoint.

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	InlineData   *geminiInlineData   `json:"inline_data,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []tools.Declaration `json:"function_declarations"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
	ToolConfig        *struct {
		FunctionCallingConfig struct {
			Mode string `json:"mode"`
		} `json:"function_calling_config"`
	} `json:"tool_config,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) GenerateText(ctx context.Context, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	contents := historyContents(history)
	contents = append(contents, geminiContent{
		Role:  models.RoleUser,
		Parts: []geminiPart{{Text: prompt}},
	})
	return g.generate(ctx, contents, systemInstruction, true)
}

func (g *Gemini) GenerateWithImage(ctx context.Context, image models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	return g.generateWithMedia(ctx, image, prompt, systemInstruction, history)
}

func (g *Gemini) GenerateWithAudio(ctx context.Context, audio models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	return g.generateWithMedia(ctx, audio, prompt, systemInstruction, history)
}

func (g *Gemini) generateWithMedia(ctx context.Context, media models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	parts := []geminiPart{}
	if prompt != "" {
		parts = append(parts, geminiPart{Text: prompt})
	}
	parts = append(parts, geminiPart{InlineData: &geminiInlineData{
		MIMEType: media.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(media.Data),
	}})

	contents := historyContents(history)
	contents = append(contents, geminiContent{Role: models.RoleUser, Parts: parts})
	return g.generate(ctx, contents, systemInstruction, false)
}

func (g *Gemini) generate(ctx context.Context, contents []geminiContent, systemInstruction string, withTools bool) (string, error) {
	if !g.limiter.TryAcquire() {
		g.logger.WithField("provider", g.Name()).Warn("Rate limit exceeded, waiting...")
		if g.metrics != nil {
			g.metrics.RecordThrottleWait(g.Name())
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	reqBody := geminiRequest{Contents: contents}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}
	if withTools {
		if decls := g.tools.Declarations(); len(decls) > 0 {
			reqBody.Tools = []geminiTool{{FunctionDeclarations: decls}}
			reqBody.ToolConfig = &struct {
				FunctionCallingConfig struct {
					Mode string `json:"mode"`
				} `json:"function_calling_config"`
			}{}
			reqBody.ToolConfig.FunctionCallingConfig.Mode = "AUTO"
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	g.logger.WithFields(logrus.Fields{
		"provider": g.Name(),
		"model":    g.model,
		"turns":    len(contents),
	}).Debug("Sending generation request")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", newError(KindTransient, g.Name(), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(KindTransient, g.Name(), fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(logrus.Fields{
			"provider": g.Name(),
			"status":   resp.StatusCode,
			"body":     string(body),
		}).Error("Generation request failed")

		kind := KindPermanent
		if resp.StatusCode >= 500 {
			kind = KindTransient
		}
		return "", newError(kind, g.Name(), fmt.Errorf("request failed with status %d", resp.StatusCode))
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("failed to parse response: %w", err))
	}
	if result.Error.Message != "" {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("api error: %s", result.Error.Message))
	}
	if len(result.Candidates) == 0 {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("no candidates in response"))
	}

	if hasFunctionCall(&result) {
		return g.handleFunctionCalls(ctx, &result)
	}

	text := firstText(&result)
	if text == "" {
		return "", newError(KindPermanent, g.Name(), fmt.Errorf("empty response"))
	}
	return text, nil
}

func hasFunctionCall(resp *geminiResponse) bool {
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.FunctionCall != nil {
				return true
			}
		}
	}
	return false
}

func firstText(resp *geminiResponse) string {
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

// handleFunctionCalls invokes every requested tool in declaration order and
// concatenates their results (plus any interleaved text parts) as the final
// reply. Tool failures propagate to the caller and never trigger fallback.
func (g *Gemini) handleFunctionCalls(ctx context.Context, resp *geminiResponse) (string, error) {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall == nil {
				if part.Text != "" {
					b.WriteString(part.Text + "\n")
				}
				continue
			}

			args, err := models.ValuesFromJSON(part.FunctionCall.Args)
			if err != nil {
				return "", newError(KindTool, g.Name(), err)
			}

			result, err := g.tools.Execute(ctx, part.FunctionCall.Name, args)
			if err != nil {
				return "", newError(KindTool, g.Name(), err)
			}
			b.WriteString(result + "\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func historyContents(history []models.ChatMessage) []geminiContent {
	sorted := chronological(history)
	contents := make([]geminiContent, 0, len(sorted)+1)
	for _, msg := range sorted {
		contents = append(contents, geminiContent{
			Role:  msg.Role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return contents
}
