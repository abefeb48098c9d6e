package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/i18n"
	"github.com/horus-ai-bot-go/internal/middleware"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/orchestrator"
	"github.com/horus-ai-bot-go/internal/services/cache"
	"github.com/horus-ai-bot-go/pkg/markdown"
)

// Telegram bots cannot fetch files above 20MB.
const maxMediaBytes = 20 * 1024 * 1024

var errMediaTooLarge = errors.New("media exceeds the download limit")

// MessageHandler handles regular messages
type MessageHandler struct {
	config       *config.Config
	bot          *tgbotapi.BotAPI
	orchestrator *orchestrator.Orchestrator
	cache        cache.Service
	rateLimiter  middleware.RateLimiter
	metrics      *middleware.Metrics
	localizer    *i18n.Localizer
	logger       *logrus.Logger
	httpClient   *http.Client
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	bot *tgbotapi.BotAPI,
	orch *orchestrator.Orchestrator,
	cacheService cache.Service,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:       cfg,
		bot:          bot,
		orchestrator: orch,
		cache:        cacheService,
		rateLimiter:  rateLimiter,
		metrics:      metrics,
		localizer:    localizer,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

// HandleMessage processes regular messages
func (h *MessageHandler) HandleMessage(ctx context.Context, update *tgbotapi.Update) error {
	if update.Message == nil || update.Message.IsCommand() {
		return nil
	}

	if update.Message.From.ID == h.bot.Self.ID {
		return nil
	}

	chatID := update.Message.Chat.ID
	userID := strconv.FormatInt(update.Message.From.ID, 10)
	lang := resolveLanguage(update.Message.From.LanguageCode, h.config.I18n.Languages, h.config.I18n.DefaultLanguage)

	h.metrics.RecordMessageReceived(update.Message.Chat.Type)

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded(userID)
		msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil))
		msg.ReplyToMessageID = update.Message.MessageID
		if _, err := h.bot.Send(msg); err != nil {
			h.logger.WithError(err).Error("Failed to send rate limit message")
		}
		return nil
	}

	thinkingMsg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgProcessing, nil))
	thinkingMsg.ReplyToMessageID = update.Message.MessageID
	sentMsg, err := h.bot.Send(thinkingMsg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to send thinking message")
		return err
	}

	go h.processMessage(ctx, update, sentMsg.MessageID, lang)

	return nil
}

func (h *MessageHandler) processMessage(ctx context.Context, update *tgbotapi.Update, thinkingMsgID int, lang string) {
	message := update.Message
	chatID := message.Chat.ID
	userID := strconv.FormatInt(message.From.ID, 10)

	req := orchestrator.Request{
		Prompt: message.Text,
		User: models.UserInfo{
			ID:           userID,
			FirstName:    message.From.FirstName,
			Username:     message.From.UserName,
			LanguageCode: message.From.LanguageCode,
		},
	}

	switch {
	case len(message.Photo) > 0:
		// Telegram sends multiple resolutions, the last is the largest
		photo := message.Photo[len(message.Photo)-1]
		media, err := h.downloadMedia(ctx, photo.FileID, "image/jpeg", photo.FileSize)
		if err != nil {
			h.sendMediaError(chatID, thinkingMsgID, lang, err)
			return
		}
		req.Image = media
		req.Prompt = message.Caption
		if req.Prompt == "" {
			req.Prompt = "Describe this image."
		}
	case message.Voice != nil:
		mimeType := message.Voice.MimeType
		if mimeType == "" {
			mimeType = "audio/ogg"
		}
		media, err := h.downloadMedia(ctx, message.Voice.FileID, mimeType, message.Voice.FileSize)
		if err != nil {
			h.sendMediaError(chatID, thinkingMsgID, lang, err)
			return
		}
		req.Audio = media
		req.Prompt = "Listen to this voice message and respond to it."
	}

	// Only plain text turns are cacheable, media payloads are not keyed
	cacheable := req.Image == nil && req.Audio == nil
	if cacheable {
		if cached, found := h.cache.Get(ctx, userID, req.Prompt); found {
			h.metrics.RecordCacheHit()
			h.sendResponse(chatID, thinkingMsgID, cached, lang)
			return
		}
		h.metrics.RecordCacheMiss()
	}

	genCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	reply, err := h.orchestrator.HandleGenerationRequest(genCtx, req)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": chatID,
			"user_id": userID,
		}).Error("Generation request failed")
		h.metrics.RecordGeneration("pipeline", "error", time.Since(start))
		h.metrics.RecordMessageProcessed("error")
		h.sendError(chatID, thinkingMsgID, lang)
		return
	}
	h.metrics.RecordGeneration("pipeline", "success", time.Since(start))
	h.metrics.RecordMessageProcessed("success")

	if cacheable {
		if err := h.cache.Set(ctx, userID, req.Prompt, reply); err != nil {
			h.logger.WithError(err).Warn("Failed to cache reply")
		}
	}

	h.sendResponse(chatID, thinkingMsgID, reply, lang)
}

func (h *MessageHandler) downloadMedia(ctx context.Context, fileID, mimeType string, fileSize int) (*models.Media, error) {
	if fileSize > maxMediaBytes {
		return nil, fmt.Errorf("%w: %d bytes", errMediaTooLarge, fileSize)
	}

	fileURL, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, errMediaTooLarge
	}

	return &models.Media{Data: data, MIMEType: mimeType}, nil
}

func (h *MessageHandler) sendResponse(chatID int64, messageID int, response, lang string) {
	htmlResponse := markdown.ToTelegramHTML(response)

	editMsg := tgbotapi.NewEditMessageText(chatID, messageID, htmlResponse)
	editMsg.ParseMode = "HTML"

	if _, err := h.bot.Send(editMsg); err != nil {
		h.logger.WithError(err).Warn("Failed to send HTML response, trying plain text")
		editMsg.ParseMode = ""
		editMsg.Text = response
		if _, err := h.bot.Send(editMsg); err != nil {
			h.logger.WithError(err).Error("Failed to send response")
		}
	}
}

func (h *MessageHandler) sendError(chatID int64, messageID int, lang string) {
	editMsg := tgbotapi.NewEditMessageText(chatID, messageID, h.localizer.Get(lang, i18n.MsgError, nil))
	if _, err := h.bot.Send(editMsg); err != nil {
		h.logger.WithError(err).Error("Failed to send error message")
	}
}

func (h *MessageHandler) sendMediaError(chatID int64, messageID int, lang string, cause error) {
	h.logger.WithError(cause).Warn("Failed to fetch media")
	editMsg := tgbotapi.NewEditMessageText(chatID, messageID, h.localizer.Get(lang, mediaErrorMessage(cause), nil))
	if _, err := h.bot.Send(editMsg); err != nil {
		h.logger.WithError(err).Error("Failed to send media error message")
	}
}

// mediaErrorMessage picks the user-facing message for a media fetch failure.
func mediaErrorMessage(cause error) string {
	if errors.Is(cause, errMediaTooLarge) {
		return i18n.MsgMediaTooLarge
	}
	return i18n.MsgMediaFailed
}
