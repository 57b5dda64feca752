package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"whats-bot/internal/domain"
)

// Source resolves the outbound-messaging credential for an account.
type Source interface {
	Lookup(ctx context.Context, accountID string) (domain.Credential, error)
}

// Getter abstracts the parameter store dependency.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// tokenPayload is the JSON shape stored under each account's token parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamStoreSource reads per-account access tokens from the SSM parameter
// store under {prefix}/accounts/{accountID}/whatsapp-token.
type ParamStoreSource struct {
	getter Getter
	prefix string
}

// NewParamStoreSource creates a ParamStoreSource rooted at paramPrefix.
func NewParamStoreSource(getter Getter, paramPrefix string) (*ParamStoreSource, error) {
	if getter == nil {
		return nil, errors.New("credentials: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("credentials: parameter prefix must not be empty")
	}
	return &ParamStoreSource{getter: getter, prefix: paramPrefix}, nil
}

func (s *ParamStoreSource) parameterName(accountID string) string {
	return s.prefix + "/accounts/" + accountID + "/whatsapp-token"
}

func (s *ParamStoreSource) Lookup(ctx context.Context, accountID string) (domain.Credential, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Credential{}, domain.NewFault(domain.CredentialUnavailable, "account id is empty", nil)
	}

	raw, err := s.getter.GetParameter(ctx, s.parameterName(accountID))
	if err != nil {
		return domain.Credential{}, domain.NewFault(domain.CredentialUnavailable, "fetch token parameter", err)
	}
	var payload tokenPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.Credential{}, domain.NewFault(domain.CredentialUnavailable, "unmarshal token parameter as JSON", err)
	}
	if payload.Token == "" {
		return domain.Credential{}, domain.NewFault(domain.CredentialUnavailable, "token parameter is empty", nil)
	}
	return domain.Credential{Token: payload.Token}, nil
}
