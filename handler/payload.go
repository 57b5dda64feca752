package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"whats-bot/internal/domain"
)

// ErrNoMessage marks webhook events that carry no inbound text message
// (delivery/read status updates). They are acknowledged and ignored.
var ErrNoMessage = errors.New("webhook event carries no message")

// MalformedPayloadError names the first expected field found missing while
// decoding a webhook payload, so the failure is reported at the boundary
// instead of surfacing as a nil-field panic deep in the relay.
type MalformedPayloadError struct {
	Field string
	Err   error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed webhook payload: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed webhook payload: missing %s", e.Field)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// webhookPayload is the subset of the WhatsApp Cloud API change notification
// this service consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata *struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// decodeRelayRequest validates and extracts a RelayRequest from a webhook
// body. Events without a messages array return ErrNoMessage.
func decodeRelayRequest(body []byte) (domain.RelayRequest, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "body", Err: err}
	}
	if len(payload.Entry) == 0 {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "entry"}
	}
	if len(payload.Entry[0].Changes) == 0 {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "entry[0].changes"}
	}
	value := payload.Entry[0].Changes[0].Value

	if len(value.Messages) == 0 {
		return domain.RelayRequest{}, ErrNoMessage
	}
	if value.Messages[0].Text == nil || value.Messages[0].Text.Body == "" {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "messages[0].text.body"}
	}
	if len(value.Contacts) == 0 || value.Contacts[0].WaID == "" {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "contacts[0].wa_id"}
	}
	if value.Metadata == nil || value.Metadata.PhoneNumberID == "" {
		return domain.RelayRequest{}, &MalformedPayloadError{Field: "metadata.phone_number_id"}
	}

	return domain.RelayRequest{
		AccountID:     value.Metadata.PhoneNumberID,
		CounterpartID: value.Contacts[0].WaID,
		MessageText:   value.Messages[0].Text.Body,
	}, nil
}
