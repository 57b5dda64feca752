package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies an adapter failure for the orchestrator and the
// webhook boundary.
type FailureKind string

const (
	StoreUnavailable      FailureKind = "STORE_UNAVAILABLE"
	StoreCorrupt          FailureKind = "STORE_CORRUPT"
	GenerationRejected    FailureKind = "GENERATION_REJECTED"
	GenerationUnavailable FailureKind = "GENERATION_UNAVAILABLE"
	DeliveryRejected      FailureKind = "DELIVERY_REJECTED"
	DeliveryUnavailable   FailureKind = "DELIVERY_UNAVAILABLE"
	CredentialUnavailable FailureKind = "CREDENTIAL_UNAVAILABLE"
)

// Fault is a typed adapter failure. StatusCode and Detail carry upstream
// context when an HTTP collaborator produced the failure.
type Fault struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
	Err        error
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	msg := string(f.Kind)
	if f.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.StatusCode)
	}
	if f.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, f.Detail)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// NewFault builds a Fault without upstream status context.
func NewFault(kind FailureKind, detail string, err error) *Fault {
	return &Fault{Kind: kind, Detail: detail, Err: err}
}

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (FailureKind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}
