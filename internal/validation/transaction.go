package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/finance-service/internal/domain"
)

type transactionPayload struct {
	Name           *string `json:"name" validate:"required,notblank,max=200"`
	Type           *string `json:"type" validate:"required,transaction_type"`
	Category       *string `json:"category" validate:"required,transaction_category"`
	AccountID      *string `json:"accountId" validate:"required,uuid"`
	ExternalLinkID *string `json:"externalLinkId" validate:"omitnil,max=255"`
}

type transactionPatchPayload struct {
	Name           *string `json:"name" validate:"omitnil,notblank,max=200"`
	Type           *string `json:"type" validate:"omitnil,transaction_type"`
	Category       *string `json:"category" validate:"omitnil,transaction_category"`
	AccountID      *string `json:"accountId" validate:"omitnil,required,uuid"`
	ExternalLinkID *string `json:"externalLinkId" validate:"omitnil,max=255"`
}

var transactionMessages = messages{
	"name.required":      "Transaction name is required.",
	"name.notblank":      "Transaction name is required.",
	"accountId.required": "Account ID is required.",
	"accountId.uuid":     "Account ID must be a valid UUID.",
	"type.*":             InvalidTypeMessage(),
	"category.*":         InvalidCategoryMessage(),
}

// InvalidTypeMessage names every valid transaction type.
func InvalidTypeMessage() string {
	names := make([]string, 0, len(domain.TransactionTypes))
	for _, t := range domain.TransactionTypes {
		names = append(names, string(t))
	}
	return "Invalid transaction type. Must be one of: " + strings.Join(names, ", ")
}

// InvalidCategoryMessage names every valid transaction category.
func InvalidCategoryMessage() string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	return "Invalid transaction category. Must be one of: " + strings.Join(names, ", ")
}

const (
	amountRequiredMessage = "Amount is required."
	amountInvalidMessage  = "Amount must be a positive number."
	amountTooLargeMessage = "Amount must be less than 1000000000000."
	dateRequiredMessage   = "Date is required."
	dateInvalidMessage    = "Invalid date. Expected YYYY-MM-DD or an RFC 3339 timestamp."
)

// ParseCreateTransaction validates a transaction creation body.
func ParseCreateTransaction(body []byte) (domain.CreateTransactionInput, error) {
	raw, errs := decodeObject(body)
	if errs != nil {
		return domain.CreateTransactionInput{}, errs
	}

	payload := transactionPayload{
		Name:           stringField(raw, "name", &errs),
		Type:           stringField(raw, "type", &errs),
		Category:       stringField(raw, "category", &errs),
		AccountID:      stringField(raw, "accountId", &errs),
		ExternalLinkID: optionalLink(stringField(raw, "externalLinkId", &errs)),
	}

	amount := amountField(raw, "amount", &errs)
	if amount == nil && !errs.Has("amount") {
		errs.add("amount", amountRequiredMessage)
	}
	date := dateField(raw, "date", &errs)
	if date == nil && !errs.Has("date") {
		errs.add("date", dateRequiredMessage)
	}

	check(payload, transactionMessages, &errs)
	if len(errs) > 0 {
		return domain.CreateTransactionInput{}, errs
	}

	return domain.CreateTransactionInput{
		Name:           *payload.Name,
		Amount:         *amount,
		Date:           *date,
		Type:           domain.TransactionType(*payload.Type),
		Category:       domain.Category(*payload.Category),
		ExternalLinkID: payload.ExternalLinkID,
		AccountID:      uuid.MustParse(*payload.AccountID),
	}, nil
}

// ParseUpdateTransaction validates a partial transaction update.
func ParseUpdateTransaction(body []byte) (domain.UpdateTransactionInput, error) {
	raw, errs := decodeObject(body)
	if errs != nil {
		return domain.UpdateTransactionInput{}, errs
	}

	payload := transactionPatchPayload{
		Name:           stringField(raw, "name", &errs),
		Type:           stringField(raw, "type", &errs),
		Category:       stringField(raw, "category", &errs),
		AccountID:      stringField(raw, "accountId", &errs),
		ExternalLinkID: stringField(raw, "externalLinkId", &errs),
	}
	amount := amountField(raw, "amount", &errs)
	date := dateField(raw, "date", &errs)

	check(payload, transactionMessages, &errs)
	if len(errs) > 0 {
		return domain.UpdateTransactionInput{}, errs
	}

	input := domain.UpdateTransactionInput{
		Name:           payload.Name,
		Amount:         amount,
		Date:           date,
		ExternalLinkID: payload.ExternalLinkID,
	}
	if payload.Type != nil {
		t := domain.TransactionType(*payload.Type)
		input.Type = &t
	}
	if payload.Category != nil {
		c := domain.Category(*payload.Category)
		input.Category = &c
	}
	if payload.AccountID != nil {
		id := uuid.MustParse(*payload.AccountID)
		input.AccountID = &id
	}
	if input.IsEmpty() {
		return input, Errors{{Field: "body", Message: "At least one transaction field must be provided"}}
	}
	return input, nil
}

// Amount inputs longer than this, or with an exponent outside these bounds, are
// rejected before any arithmetic so huge exponents cannot force big rescales.
const (
	maxAmountTextLen  = 40
	maxAmountExponent = 12
	minAmountExponent = -64
)

var errAmountTooLarge = errors.New("amount exceeds the maximum")

// ParseAmount coerces a JSON number or numeric string into a positive amount
// rounded to two places. Amounts that round to zero or reach domain.MaxAmount
// are rejected.
func ParseAmount(value json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(bytes.TrimSpace(value)))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return decimal.Zero, err
		}
		text = strings.TrimSpace(s)
	}
	if text == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	if len(text) > maxAmountTextLen {
		return decimal.Zero, fmt.Errorf("amount has more than %d characters", maxAmountTextLen)
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %s is not positive", text)
	}
	if amount.Exponent() > maxAmountExponent {
		return decimal.Zero, errAmountTooLarge
	}
	if amount.Exponent() < minAmountExponent {
		return decimal.Zero, fmt.Errorf("amount %s rounds to zero", text)
	}
	amount = domain.RoundAmount(amount)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %s is not positive", amount.StringFixed(domain.AmountScale))
	}
	if !amount.LessThan(domain.MaxAmount) {
		return decimal.Zero, errAmountTooLarge
	}
	return amount, nil
}

func amountField(raw map[string]json.RawMessage, field string, errs *Errors) *decimal.Decimal {
	if !present(raw, field) {
		return nil
	}
	amount, err := ParseAmount(raw[field])
	if errors.Is(err, errAmountTooLarge) {
		errs.add(field, amountTooLargeMessage)
		return nil
	}
	if err != nil {
		errs.add(field, amountInvalidMessage)
		return nil
	}
	return &amount
}

var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// ParseDate reads a calendar date from YYYY-MM-DD or a timestamp. Timestamps are
// converted to UTC before the time of day is dropped.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func dateField(raw map[string]json.RawMessage, field string, errs *Errors) *time.Time {
	if !present(raw, field) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw[field], &s); err != nil {
		errs.add(field, dateInvalidMessage)
		return nil
	}
	date, err := ParseDate(s)
	if err != nil {
		errs.add(field, dateInvalidMessage)
		return nil
	}
	return &date
}
