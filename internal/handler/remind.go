package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cadence-bot/cadence/internal/duration"
)

func (h *Handler) handleRemind(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	ownerID := update.Message.From.ID

	token, payload, ok := splitCommandArgs(update.Message.Text)
	if !ok {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/remind <duration> <text>`, e.g. `/remind 45m stand up`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	// When invoked from a group, that group becomes the fallback location
	// if direct delivery keeps failing.
	var fallbackChatID *int64
	if chatID != ownerID {
		fallbackChatID = &chatID
	}

	rem, err := h.reminders.Create(ctx, ownerID, token, payload, fallbackChatID)
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      userMessage(err),
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text: fmt.Sprintf("⏰ Got it — I'll remind you in *%s*.\nID: `%s`",
			duration.Format(rem.TriggerAt.Sub(rem.CreatedAt)), rem.ID),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleReminders(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	list, err := h.reminders.List(ctx, update.Message.From.ID)
	if err != nil {
		slog.Error("list reminders", "error", err)
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: userMessage(err)})
		return
	}
	if len(list) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "📭 No pending reminders."})
		return
	}

	var sb strings.Builder
	sb.WriteString("⏰ *Your reminders:*\n\n")
	for _, rem := range list {
		sb.WriteString(fmt.Sprintf("• in *%s* — %s\n  `%s`\n",
			duration.Format(time.Until(rem.TriggerAt)), preview(rem.Payload), rem.ID))
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      sb.String(),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) != 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/cancel <id>`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	if err := h.reminders.Cancel(ctx, parts[1], update.Message.From.ID); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: userMessage(err)})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "🗑 Reminder cancelled."})
}

// splitCommandArgs splits "/cmd <token> <rest...>" into token and rest.
func splitCommandArgs(text string) (token, rest string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	rest = strings.TrimSpace(parts[2])
	if rest == "" {
		return "", "", false
	}
	return parts[1], rest, true
}

func preview(payload string) string {
	const max = 60
	runes := []rune(payload)
	if len(runes) <= max {
		return payload
	}
	return string(runes[:max-1]) + "…"
}
