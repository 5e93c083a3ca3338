/**
 * @description
 * This file defines the Transaction domain model and its closed enumerations.
 * A transaction is a single dated money movement recorded against one Account.
 *
 * @notes
 * - Amounts are decimals with a scale of 2; they are never floats.
 * - Ownership is transitive through the account, so no owner column is stored here.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage layout for transaction dates.
const DateLayout = "2006-01-02"

// AmountScale is the number of decimal places amounts are stored with.
const AmountScale = 2

// MaxAmount is the exclusive upper bound of an amount; storage is NUMERIC(14,2).
var MaxAmount = decimal.New(1, 12)

// TransactionType tells income apart from expenses.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "Income"
	TransactionTypeExpense TransactionType = "Expense"
)

// TransactionTypes lists every valid TransactionType in display order.
var TransactionTypes = []TransactionType{
	TransactionTypeIncome,
	TransactionTypeExpense,
}

// Valid reports whether t is a member of TransactionTypes.
func (t TransactionType) Valid() bool {
	for _, candidate := range TransactionTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

// Category is the closed set of transaction categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryCar           Category = "Car"
	CategoryEntertainment Category = "Entertainment"
	CategoryUtilities     Category = "Utilities"
	CategoryHousing       Category = "Housing"
	CategorySalary        Category = "Salary"
	CategoryInvestments   Category = "Investments"
	CategoryHealthcare    Category = "Healthcare"
	CategoryShopping      Category = "Shopping"
	CategoryEducation     Category = "Education"
	CategoryTravel        Category = "Travel"
	CategoryPets          Category = "Pets"
	CategoryFitness       Category = "Fitness"
	CategoryGifts         Category = "Gifts"
	CategoryMiscellaneous Category = "Miscellaneous"
)

// Categories lists every valid Category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryCar,
	CategoryEntertainment,
	CategoryUtilities,
	CategoryHousing,
	CategorySalary,
	CategoryInvestments,
	CategoryHealthcare,
	CategoryShopping,
	CategoryEducation,
	CategoryTravel,
	CategoryPets,
	CategoryFitness,
	CategoryGifts,
	CategoryMiscellaneous,
}

// Valid reports whether c is a member of Categories.
func (c Category) Valid() bool {
	for _, candidate := range Categories {
		if c == candidate {
			return true
		}
	}
	return false
}

// Transaction represents a single income or expense entry.
type Transaction struct {
	ID             uuid.UUID
	Name           string
	Amount         decimal.Decimal
	Date           time.Time
	Type           TransactionType
	Category       Category
	ExternalLinkID *string
	AccountID      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type transactionJSON struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Amount         string          `json:"amount"`
	Date           string          `json:"date"`
	Type           TransactionType `json:"type"`
	Category       Category        `json:"category"`
	ExternalLinkID *string         `json:"externalLinkId"`
	AccountID      uuid.UUID       `json:"accountId"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// MarshalJSON renders the amount with exactly two decimals and the date as YYYY-MM-DD.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:             t.ID,
		Name:           t.Name,
		Amount:         t.Amount.StringFixed(AmountScale),
		Date:           t.Date.Format(DateLayout),
		Type:           t.Type,
		Category:       t.Category,
		ExternalLinkID: t.ExternalLinkID,
		AccountID:      t.AccountID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw.Amount, err)
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", raw.Date, err)
	}
	*t = Transaction{
		ID:             raw.ID,
		Name:           raw.Name,
		Amount:         amount,
		Date:           date,
		Type:           raw.Type,
		Category:       raw.Category,
		ExternalLinkID: raw.ExternalLinkID,
		AccountID:      raw.AccountID,
		CreatedAt:      raw.CreatedAt,
		UpdatedAt:      raw.UpdatedAt,
	}
	return nil
}

// CreateTransactionInput is a validated transaction creation payload.
type CreateTransactionInput struct {
	Name           string
	Amount         decimal.Decimal
	Date           time.Time
	Type           TransactionType
	Category       Category
	ExternalLinkID *string
	AccountID      uuid.UUID
}

// UpdateTransactionInput is a validated partial update. Nil fields are left untouched
// and an empty ExternalLinkID clears the link.
type UpdateTransactionInput struct {
	Name           *string
	Amount         *decimal.Decimal
	Date           *time.Time
	Type           *TransactionType
	Category       *Category
	ExternalLinkID *string
	AccountID      *uuid.UUID
}

// IsEmpty reports whether the update carries no fields.
func (in UpdateTransactionInput) IsEmpty() bool {
	return in.Name == nil && in.Amount == nil && in.Date == nil && in.Type == nil &&
		in.Category == nil && in.ExternalLinkID == nil && in.AccountID == nil
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	AccountID *uuid.UUID
}

// RoundAmount applies the single rounding rule for amounts: half away from zero
// to AmountScale places.
func RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(AmountScale)
}

// AmountInRange reports whether a rounded amount is positive and below MaxAmount.
func AmountInRange(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThan(MaxAmount)
}
