package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = `👋 I keep track of time so you don't have to.

*Reminders*
/remind <duration> <text> — ping you after the given time ("/remind 45m stand up")
/reminders — list your pending reminders
/cancel <id> — cancel a pending reminder

*Giveaways* (in groups)
/giveaway <duration> <prize> — start a timed giveaway with a join button
/gend <id> — end a giveaway early (host or admin)
/gextend <id> <duration> — push the end time back
/greroll <id> — pick a new winner after it ended

Durations look like 30s, 10m, 2h, 1d or 1w. Reminders go up to a year; giveaways run from a minute to a week.`

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      helpText,
		ParseMode: models.ParseModeMarkdownV1,
	})
}
