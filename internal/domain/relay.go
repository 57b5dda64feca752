package domain

import (
	"errors"
	"strings"
)

// Credential is a per-account outbound-messaging secret.
type Credential struct {
	Token string
}

// RelayRequest is the decoded input for one relay operation. It is built by
// the webhook boundary and lives only for the duration of the operation.
type RelayRequest struct {
	AccountID     string
	CounterpartID string
	MessageText   string
}

// Key returns the conversation the request belongs to.
func (r RelayRequest) Key() ConversationKey {
	return ConversationKey{AccountID: r.AccountID, CounterpartID: r.CounterpartID}
}

// Validate rejects requests with missing identity or an empty message.
func (r RelayRequest) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" {
		return errors.New("relay request: account id is required")
	}
	if strings.TrimSpace(r.CounterpartID) == "" {
		return errors.New("relay request: counterpart id is required")
	}
	if strings.TrimSpace(r.MessageText) == "" {
		return errors.New("relay request: message text is required")
	}
	return nil
}
