package domain

import "errors"

var (
	ErrInvalidDuration       = errors.New("invalid duration format")
	ErrDurationOutOfRange    = errors.New("duration out of range")
	ErrReminderNotFound      = errors.New("reminder not found")
	ErrGiveawayNotFound      = errors.New("giveaway not found")
	ErrGiveawayNotActive     = errors.New("giveaway is not active")
	ErrGiveawayNotEnded      = errors.New("giveaway has not ended")
	ErrRecipientUnresolvable = errors.New("recipient could not be resolved")
	ErrDeliveryFailed        = errors.New("delivery failed")
	ErrNotGiveawayHost       = errors.New("not the giveaway host")
)
