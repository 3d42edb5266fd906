package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cadence-bot/cadence/internal/domain"
	"github.com/cadence-bot/cadence/internal/duration"
)

const MaxMessageLen = 4096

// Notifier is the Telegram implementation of the engine's delivery and
// announcement collaborators (service.Messenger and service.Announcer).
type Notifier struct {
	bot *bot.Bot
	now func() time.Time
}

func NewNotifier(b *bot.Bot) *Notifier {
	return &Notifier{bot: b, now: time.Now}
}

// ResolveRecipient checks that a private chat with the owner exists. It does
// not guarantee a send will succeed (the user may have blocked the bot), only
// that there is someone to deliver to.
func (n *Notifier) ResolveRecipient(ctx context.Context, ownerID int64) error {
	_, err := n.bot.GetChat(ctx, &bot.GetChatParams{ChatID: ownerID})
	if err != nil {
		return fmt.Errorf("%w: chat %d: %v", domain.ErrRecipientUnresolvable, ownerID, err)
	}
	return nil
}

// SendDirect delivers the reminder payload to the owner's private chat,
// splitting long messages and falling back to plain text when Markdown
// parsing fails.
func (n *Notifier) SendDirect(ctx context.Context, ownerID int64, payload string) error {
	text := FixMarkdown("⏰ *Reminder*\n\n" + payload)
	for _, part := range SplitMessage(text, MaxMessageLen) {
		params := &bot.SendMessageParams{
			ChatID:    ownerID,
			Text:      part,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if _, err := n.bot.SendMessage(ctx, params); err != nil {
			slog.Warn("markdown send failed, falling back to plain text", "error", err)
			params.ParseMode = ""
			if _, err := n.bot.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
			}
		}
	}
	return nil
}

// SendFallback posts to the reminder's fallback chat after direct delivery
// was exhausted, mentioning the owner so the ping still reaches them.
func (n *Notifier) SendFallback(ctx context.Context, chatID, ownerID int64, payload string) error {
	text := fmt.Sprintf("⏰ %s — I couldn't reach you in private, so here is your reminder:\n\n%s",
		Mention(ownerID), payload)
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("send fallback: %w", err)
	}
	return nil
}

// AnnounceGiveaway posts the giveaway message with a join button and returns
// the message id used for later status edits.
func (n *Notifier) AnnounceGiveaway(ctx context.Context, g *domain.Giveaway) (int, error) {
	msg, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      g.ChatID,
		Text:        giveawayText(g, 0, n.now()),
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: joinKeyboard(g.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("announce giveaway: %w", err)
	}
	return msg.ID, nil
}

// RefreshGiveaway edits the announcement in place with the current entrant
// count and remaining time. No-ops when the announcement never went out.
func (n *Notifier) RefreshGiveaway(ctx context.Context, g *domain.Giveaway, entrants int) error {
	if g.MessageID == nil {
		return nil
	}
	_, err := n.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      g.ChatID,
		MessageID:   *g.MessageID,
		Text:        giveawayText(g, entrants, n.now()),
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: joinKeyboard(g.ID),
	})
	if err != nil {
		return fmt.Errorf("refresh giveaway: %w", err)
	}
	return nil
}

// AnnounceWinner posts the result to the giveaway chat.
func (n *Notifier) AnnounceWinner(ctx context.Context, g *domain.Giveaway, entrants int) error {
	var text string
	if g.WinnerID != nil {
		text = fmt.Sprintf("🎉 The giveaway for *%s* is over!\n\nWinner: %s (out of %d entrants)",
			g.Prize, Mention(*g.WinnerID), entrants)
	} else {
		text = fmt.Sprintf("🎁 The giveaway for *%s* is over — nobody entered, so there is no winner.", g.Prize)
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    g.ChatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("announce winner: %w", err)
	}
	return nil
}

func giveawayText(g *domain.Giveaway, entrants int, now time.Time) string {
	return fmt.Sprintf("🎁 *Giveaway:* %s\n\nEnds in: *%s*\nEntrants: *%d*\n\nTap the button below to enter!",
		g.Prize, duration.Format(g.Remaining(now)), entrants)
}

func joinKeyboard(giveawayID int64) *models.InlineKeyboardMarkup {
	return InlineKeyboard(
		ButtonRow(InlineButton("🎉 Join", fmt.Sprintf("gjoin_%d", giveawayID))),
	)
}
