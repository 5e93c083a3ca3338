/**
 * @description
 * This file defines the core domain model for an Account within the finance service.
 * An account is a named bucket (a bank account, a fund) owned by exactly one user.
 *
 * @notes
 * - `OwnerID` is the identity provider's subject for the user and is stamped by the
 *   service from the verified token, never taken from request input.
 * - Names are unique per owner after normalization (see NormalizeAccountName).
 */
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account represents a user's financial account.
type Account struct {
	ID             uuid.UUID `json:"id"`
	ExternalLinkID *string   `json:"externalLinkId"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	OwnerID        string    `json:"ownerId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateAccountInput is a validated account creation payload.
type CreateAccountInput struct {
	Name           string
	Type           string
	ExternalLinkID *string
}

// UpdateAccountInput is a validated partial update. Nil fields are left untouched
// and an empty ExternalLinkID clears the link.
type UpdateAccountInput struct {
	Name           *string
	Type           *string
	ExternalLinkID *string
}

// IsEmpty reports whether the update carries no fields.
func (in UpdateAccountInput) IsEmpty() bool {
	return in.Name == nil && in.Type == nil && in.ExternalLinkID == nil
}

// NormalizeAccountName returns the form of an account name used for duplicate
// detection: surrounding whitespace trimmed, letters lowercased.
func NormalizeAccountName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
