package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cadence-bot/cadence/internal/config"
	"github.com/cadence-bot/cadence/internal/domain"
)

// AuditLog mirrors engine events to a configured Telegram chat so that
// otherwise-silent outcomes (a reminder dropped after exhausting retries, a
// recipient that never resolved) remain observable. Disabled when no audit
// chat is configured.
type AuditLog struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewAuditLog(b *bot.Bot, cfg *config.Config) *AuditLog {
	return &AuditLog{bot: b, cfg: cfg}
}

func (l *AuditLog) DeliveryFailed(r *domain.Reminder, reason string) {
	msg := fmt.Sprintf("📪 *Reminder dropped*\n\n*ID:* `%s`\n*Owner:* `%d`\n*Attempts:* %d\n*Reason:* `%s`",
		r.ID, r.OwnerID, r.Attempts+1, reason)
	l.send(l.cfg.AuditTopicDelivery, msg)
}

func (l *AuditLog) WinnerChosen(g *domain.Giveaway, entrants int) {
	winner := "none"
	if g.WinnerID != nil {
		winner = fmt.Sprintf("`%d`", *g.WinnerID)
	}
	msg := fmt.Sprintf("🎁 *Giveaway ended*\n\n*ID:* `%d`\n*Prize:* %s\n*Entrants:* %d\n*Winner:* %s",
		g.ID, g.Prize, entrants, winner)
	l.send(l.cfg.AuditTopicGiveaway, msg)
}

func (l *AuditLog) send(topicID int, message string) {
	if l.cfg.AuditChatID == 0 {
		return
	}

	if len([]rune(message)) > MaxMessageLen {
		message = string([]rune(message)[:MaxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.AuditChatID,
		Text:            message,
		ParseMode:       models.ParseModeMarkdownV1,
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send audit message", "error", err)
	}
}
