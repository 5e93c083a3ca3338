/**
 * @description
 * This file defines the domain events exchanged with the message broker (RabbitMQ).
 * Outgoing events describe account and transaction mutations; the incoming
 * UserDeletedEvent is relayed from the identity provider's webhook.
 */
package domain

import (
	"strings"
	"time"
)

// Routing keys for events published by the finance service.
const (
	EventAccountCreated     = "account.created"
	EventAccountUpdated     = "account.updated"
	EventAccountDeleted     = "account.deleted"
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
)

// RoutingKeyUserDeleted is consumed to purge a removed user's data.
const RoutingKeyUserDeleted = "user.deleted"

// AccountEvent is published after a successful account mutation.
type AccountEvent struct {
	Event      string    `json:"event"`
	OwnerID    string    `json:"owner_id"`
	Account    Account   `json:"account"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransactionEvent is published after a successful transaction mutation.
type TransactionEvent struct {
	Event       string      `json:"event"`
	OwnerID     string      `json:"owner_id"`
	Transaction Transaction `json:"transaction"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// UserDeletedEvent accepts both the flat relay shape ({"user_id": "..."}) and the
// raw identity provider webhook shape ({"type": "user.deleted", "data": {"id": "..."}}).
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Data   struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	} `json:"data"`
}

// Subject returns the deleted user's id, or "" when the payload carries none.
func (e UserDeletedEvent) Subject() string {
	if id := strings.TrimSpace(e.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.ID)
}
