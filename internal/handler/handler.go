package handler

import (
	"errors"

	"github.com/go-telegram/bot"

	"github.com/cadence-bot/cadence/internal/config"
	"github.com/cadence-bot/cadence/internal/domain"
	"github.com/cadence-bot/cadence/internal/service"
)

// Handler holds the dependencies for all command and callback handlers.
type Handler struct {
	bot       *bot.Bot
	cfg       *config.Config
	reminders *service.ReminderService
	giveaways *service.GiveawayService
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot       *bot.Bot
	Cfg       *config.Config
	Reminders *service.ReminderService
	Giveaways *service.GiveawayService
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:       deps.Bot,
		cfg:       deps.Cfg,
		reminders: deps.Reminders,
		giveaways: deps.Giveaways,
	}
}

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/remind", bot.MatchTypePrefix, h.handleRemind)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reminders", bot.MatchTypePrefix, h.handleReminders)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleCancel)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/giveaway", bot.MatchTypePrefix, h.handleGiveaway)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/gend", bot.MatchTypePrefix, h.handleGiveawayEnd)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/gextend", bot.MatchTypePrefix, h.handleGiveawayExtend)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/greroll", bot.MatchTypePrefix, h.handleGiveawayReroll)

	// Callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "gjoin_", bot.MatchTypePrefix, h.handleGiveawayJoin)
}

// userMessage maps engine errors to the short, precise replies the engine's
// callers are supposed to present. Unknown errors get a generic line; the
// detail goes to the log, not the chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidDuration):
		return "⚠️ I don't understand that duration. Use a number and a unit, like `10m`, `2h`, `1d` or `1w`."
	case errors.Is(err, domain.ErrDurationOutOfRange):
		return "⚠️ That duration is outside the allowed range."
	case errors.Is(err, domain.ErrReminderNotFound):
		return "⚠️ No such reminder."
	case errors.Is(err, domain.ErrGiveawayNotFound):
		return "⚠️ No such giveaway."
	case errors.Is(err, domain.ErrGiveawayNotActive):
		return "⚠️ That giveaway is already over."
	case errors.Is(err, domain.ErrGiveawayNotEnded):
		return "⚠️ That giveaway is still running."
	case errors.Is(err, domain.ErrNotGiveawayHost):
		return "⚠️ Only the host (or an admin) can do that."
	default:
		return "❌ Something went wrong, please try again."
	}
}
