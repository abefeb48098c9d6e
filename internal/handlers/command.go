package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/i18n"
	"github.com/horus-ai-bot-go/internal/middleware"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/services/history"
	"github.com/horus-ai-bot-go/internal/services/memory"
)

// CommandHandler handles telegram commands
type CommandHandler struct {
	bot       *tgbotapi.BotAPI
	config    *config.Config
	history   history.Store
	memories  *memory.Provider
	metrics   *middleware.Metrics
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	hist history.Store,
	memories *memory.Provider,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		bot:       bot,
		config:    cfg,
		history:   hist,
		memories:  memories,
		metrics:   metrics,
		localizer: localizer,
		logger:    logger,
	}
}

// HandleCommand processes telegram commands
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := strconv.FormatInt(message.From.ID, 10)
	command := message.Command()
	lang := h.userLanguage(message)

	h.metrics.RecordCommandExecuted(command)

	switch command {
	case "start":
		return h.handleStart(ctx, chatID, message.From.FirstName, lang)
	case "help":
		return h.handleHelp(ctx, chatID, lang)
	case "clear":
		return h.handleClear(ctx, chatID, userID, lang)
	case "memories":
		return h.handleMemories(ctx, chatID, userID, lang)
	case "forget":
		return h.handleForget(ctx, chatID, userID, lang)
	default:
		return h.handleUnknown(ctx, chatID, lang)
	}
}

// handleStart handles /start command
func (h *CommandHandler) handleStart(ctx context.Context, chatID int64, firstName, lang string) error {
	text := h.localizer.Get(lang, i18n.MsgWelcome, map[string]interface{}{
		"Name": firstName,
	})

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := h.bot.Send(msg)
	return err
}

// handleHelp handles /help command
func (h *CommandHandler) handleHelp(ctx context.Context, chatID int64, lang string) error {
	msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgHelp, nil))
	msg.ParseMode = "Markdown"

	_, err := h.bot.Send(msg)
	return err
}

// handleClear handles /clear command
func (h *CommandHandler) handleClear(ctx context.Context, chatID int64, userID, lang string) error {
	if err := h.history.Clear(ctx, userID); err != nil {
		h.logger.WithError(err).Error("Failed to clear history")
		msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgError, nil))
		_, err := h.bot.Send(msg)
		return err
	}

	msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgHistoryCleared, nil))
	_, err := h.bot.Send(msg)
	return err
}

// handleMemories handles /memories command
func (h *CommandHandler) handleMemories(ctx context.Context, chatID int64, userID, lang string) error {
	facts := h.memories.Memories(ctx, userID)
	if len(facts) == 0 {
		msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgMemoriesEmpty, nil))
		_, err := h.bot.Send(msg)
		return err
	}

	var sb strings.Builder
	sb.WriteString(h.localizer.Get(lang, i18n.MsgMemoriesHeader, nil))
	sb.WriteString("\n\n")
	for i, fact := range facts {
		fmt.Fprintf(&sb, "%d. %s", i+1, fact.Content)
		if !fact.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, " _(%s)_", fact.CreatedAt.Format("2006-01-02"))
		}
		sb.WriteString("\n")
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = "Markdown"

	if _, err := h.bot.Send(msg); err != nil {
		// Markdown can break on user-provided content, retry plain
		msg.ParseMode = ""
		msg.Text = plainMemoryList(facts, h.localizer.Get(lang, i18n.MsgMemoriesHeader, nil))
		_, err = h.bot.Send(msg)
		return err
	}
	return nil
}

// handleForget handles /forget command
func (h *CommandHandler) handleForget(ctx context.Context, chatID int64, userID, lang string) error {
	if err := h.memories.Clear(ctx, userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to delete memories")
		msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgForgetFailed, nil))
		_, err := h.bot.Send(msg)
		return err
	}

	msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgMemoriesForgotten, nil))
	_, err := h.bot.Send(msg)
	return err
}

// handleUnknown handles unknown commands
func (h *CommandHandler) handleUnknown(ctx context.Context, chatID int64, lang string) error {
	msg := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
	_, err := h.bot.Send(msg)
	return err
}

func (h *CommandHandler) userLanguage(message *tgbotapi.Message) string {
	return resolveLanguage(message.From.LanguageCode, h.config.I18n.Languages, h.config.I18n.DefaultLanguage)
}

func resolveLanguage(code string, supported []string, fallback string) string {
	for _, lang := range supported {
		if lang == code {
			return lang
		}
	}
	return fallback
}

func plainMemoryList(facts []models.MemoryFact, header string) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	for i, fact := range facts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, fact.Content)
	}
	return sb.String()
}
