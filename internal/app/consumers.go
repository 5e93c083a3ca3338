/**
 * @description
 * This file defines the event handler that processes identity events from RabbitMQ.
 * When a user is deleted at the identity provider, all of their accounts (and by
 * cascade their transactions) are removed.
 */
package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/transfa/finance-service/internal/domain"
)

// OwnerPurger removes all data belonging to an owner.
type OwnerPurger interface {
	PurgeOwner(ctx context.Context, ownerID string) (int64, error)
}

// UserEventHandler handles the processing of user lifecycle events.
type UserEventHandler struct {
	purger  OwnerPurger
	log     zerolog.Logger
	timeout time.Duration
}

// NewUserEventHandler creates a new instance of UserEventHandler.
func NewUserEventHandler(purger OwnerPurger, log zerolog.Logger) *UserEventHandler {
	return &UserEventHandler{
		purger:  purger,
		log:     log.With().Str("component", "user_event_handler").Logger(),
		timeout: 30 * time.Second,
	}
}

// HandleUserDeletedEvent processes a user.deleted message. It returns true to ack
// and false to requeue.
func (h *UserEventHandler) HandleUserDeletedEvent(body []byte) bool {
	var event domain.UserDeletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Error().Err(err).Msg("malformed user.deleted event; acking")
		return true
	}

	userID := event.Subject()
	if userID == "" {
		h.log.Warn().Msg("user.deleted event missing user id; acking")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	removed, err := h.purger.PurgeOwner(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("owner_id", userID).Msg("failed to purge accounts for deleted user")
		return false
	}

	h.log.Info().Str("owner_id", userID).Int64("accounts_removed", removed).Msg("purged data for deleted user")
	return true
}
