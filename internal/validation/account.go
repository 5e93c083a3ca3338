package validation

import "github.com/transfa/finance-service/internal/domain"

type accountPayload struct {
	Name           *string `json:"name" validate:"required,notblank,max=100"`
	Type           *string `json:"type" validate:"required,notblank,max=100"`
	ExternalLinkID *string `json:"externalLinkId" validate:"omitnil,max=255"`
}

type accountPatchPayload struct {
	Name           *string `json:"name" validate:"omitnil,notblank,max=100"`
	Type           *string `json:"type" validate:"omitnil,notblank,max=100"`
	ExternalLinkID *string `json:"externalLinkId" validate:"omitnil,max=255"`
}

var accountMessages = messages{
	"name.required": "Account name is needed",
	"name.notblank": "Account name is needed",
	"type.required": "Account type is needed",
	"type.notblank": "Account type is needed",
}

// ParseCreateAccount validates an account creation body. Any owner-like member is ignored.
func ParseCreateAccount(body []byte) (domain.CreateAccountInput, error) {
	raw, errs := decodeObject(body)
	if errs != nil {
		return domain.CreateAccountInput{}, errs
	}

	payload := accountPayload{
		Name:           stringField(raw, "name", &errs),
		Type:           stringField(raw, "type", &errs),
		ExternalLinkID: optionalLink(stringField(raw, "externalLinkId", &errs)),
	}
	check(payload, accountMessages, &errs)
	if len(errs) > 0 {
		return domain.CreateAccountInput{}, errs
	}

	return domain.CreateAccountInput{
		Name:           *payload.Name,
		Type:           *payload.Type,
		ExternalLinkID: payload.ExternalLinkID,
	}, nil
}

// ParseUpdateAccount validates a partial account update. Only supplied members are
// returned; an update with no members is rejected. An empty externalLinkId is kept
// so the store can clear the link.
func ParseUpdateAccount(body []byte) (domain.UpdateAccountInput, error) {
	raw, errs := decodeObject(body)
	if errs != nil {
		return domain.UpdateAccountInput{}, errs
	}

	payload := accountPatchPayload{
		Name:           stringField(raw, "name", &errs),
		Type:           stringField(raw, "type", &errs),
		ExternalLinkID: stringField(raw, "externalLinkId", &errs),
	}
	check(payload, accountMessages, &errs)
	if len(errs) > 0 {
		return domain.UpdateAccountInput{}, errs
	}

	input := domain.UpdateAccountInput{
		Name:           payload.Name,
		Type:           payload.Type,
		ExternalLinkID: payload.ExternalLinkID,
	}
	if input.IsEmpty() {
		return input, Errors{{Field: "body", Message: "At least one of name, type or externalLinkId must be provided"}}
	}
	return input, nil
}

// optionalLink treats an empty external link id on create the same as an absent one.
func optionalLink(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
