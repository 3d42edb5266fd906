package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cadence-bot/cadence/internal/duration"
)

func (h *Handler) handleGiveaway(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if update.Message.Chat.Type == "private" {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "🎁 Giveaways only work in groups — add me to one and try again there.",
		})
		return
	}

	token, prize, ok := splitCommandArgs(update.Message.Text)
	if !ok {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/giveaway <duration> <prize>`, e.g. `/giveaway 1h a month of premium`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	g, err := h.giveaways.Start(ctx, update.Message.From.ID, chatID, token, prize)
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      userMessage(err),
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}
	slog.Info("giveaway started", "giveaway_id", g.ID, "chat_id", chatID, "host_id", g.HostID)
}

func (h *Handler) handleGiveawayJoin(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	cq := update.CallbackQuery

	id, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, "gjoin_"), 10, 64)
	if err != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID})
		return
	}

	added, err := h.giveaways.Join(ctx, id, cq.From.ID, cq.From.IsBot)
	var text string
	switch {
	case err != nil:
		text = userMessage(err)
	case added:
		text = "🎉 You're in! Good luck."
	default:
		text = "You're already entered (or the giveaway is over)."
	}
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
		Text:            text,
	})
}

func (h *Handler) handleGiveawayEnd(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	id, ok := parseIDArg(update.Message.Text)
	if !ok {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/gend <id>`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	from := update.Message.From
	if err := h.giveaways.EndNow(ctx, id, from.ID, h.cfg.IsAdmin(from.ID)); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: userMessage(err)})
		return
	}
}

func (h *Handler) handleGiveawayExtend(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) != 3 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/gextend <id> <duration>`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "⚠️ The id should be a number."})
		return
	}

	g, err := h.giveaways.Extend(ctx, id, parts[2])
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: userMessage(err)})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text: fmt.Sprintf("⏳ Extended — the giveaway now ends in *%s*.",
			duration.Format(time.Until(g.EndAt))),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleGiveawayReroll(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	id, ok := parseIDArg(update.Message.Text)
	if !ok {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      "Usage: `/greroll <id>`",
			ParseMode: models.ParseModeMarkdownV1,
		})
		return
	}

	if _, err := h.giveaways.Reroll(ctx, id); err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: userMessage(err)})
		return
	}
}

func parseIDArg(text string) (int64, bool) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
