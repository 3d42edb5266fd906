package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RateLimit returns middleware enforcing a sliding-window message limit per
// chat. Purely in-memory: a restart forgets the counters, which is fine for
// an abuse guard.
func RateLimit(limit int, window time.Duration) bot.Middleware {
	rl := &rateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[int64][]time.Time),
	}
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !rl.allow(chatID, time.Now()) {
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Too many requests, give it a moment.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}

type rateLimiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[int64][]time.Time
}

func (rl *rateLimiter) allow(chatID int64, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	kept := rl.hits[chatID][:0]
	for _, t := range rl.hits[chatID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.limit {
		rl.hits[chatID] = kept
		return false
	}
	rl.hits[chatID] = append(kept, now)
	return true
}
