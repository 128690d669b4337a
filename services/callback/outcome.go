package callback

import (
	"errors"
	"fmt"

	"kinads-controlplane/services/registry"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidRequest    Reason = "invalid_request"
	ReasonExpiredEvent      Reason = "expired_event"
	ReasonSourceIPRejected  Reason = "source_ip_rejected"
	ReasonClientNotFound    Reason = "client_not_found"
	ReasonDuplicateEvent    Reason = "duplicate_event"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonStoreError        Reason = "store_error"
)

var (
	ErrInvalidRequest    = errors.New("invalid callback request")
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrExpiredEvent      = errors.New("expired event")
	ErrSourceIPRejected  = errors.New("source ip rejected")
	ErrClientNotFound    = registry.ErrClientNotFound
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// RejectError carries the operator-facing message of a rejected callback.
type RejectError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *RejectError) Error() string { return e.Message }

func (e *RejectError) Unwrap() error { return e.Err }

// Outcome is the decision taken for one callback: accepted when Reason is
// empty, rejected otherwise.
type Outcome struct {
	Reason   Reason
	Err      error
	Callback Callback
	Client   *registry.ClientConfig
	Event    *RewardEvent
}

func (o Outcome) Accepted() bool { return o.Reason == ReasonNone }

func reject(cb Callback, reason Reason, cause error, format string, args ...any) Outcome {
	return Outcome{
		Reason:   reason,
		Callback: cb,
		Err: &RejectError{
			Reason:  reason,
			Message: fmt.Sprintf(format, args...),
			Err:     cause,
		},
	}
}
