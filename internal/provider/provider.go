package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Gateway is the SMS provider contract: number leasing, messaging and
// recipient validation. Calls are synchronous and never retried.
type Gateway interface {
	SearchAvailableNumbers(ctx context.Context, region string, limit int) ([]Candidate, error)
	PurchaseNumber(ctx context.Context, number string) (string, error)
	ListInboundMessages(ctx context.Context, to string, limit int) ([]InboundMessage, error)
	SendMessage(ctx context.Context, body, from, to string) (SentMessage, error)
	RequestNumberValidation(ctx context.Context, number, label string) (Validation, error)
	FetchAccountInfo(ctx context.Context) (AccountInfo, error)
}

type Candidate struct {
	PhoneNumber  string
	FriendlyName string
	Region       string
}

type InboundMessage struct {
	From   string
	Body   string
	SentAt time.Time
}

type SentMessage struct {
	ProviderID string
	Status     string
}

type Validation struct {
	ValidationID string
	Code         string
}

type AccountInfo struct {
	Type   string
	Status string
}

func (a AccountInfo) IsTrial() bool { return strings.EqualFold(a.Type, "Trial") }

type Reason string

const (
	ReasonUnknown             Reason = "unknown"
	ReasonInsufficientFunds   Reason = "insufficient_funds"
	ReasonUnverifiedRecipient Reason = "unverified_recipient"
	ReasonPermissionDenied    Reason = "permission_denied"
	ReasonTrialRestricted     Reason = "trial_restricted"
	ReasonInvalidNumber       Reason = "invalid_number"
)

// Error is returned by gateways for any failed provider call.
type Error struct {
	Op      string
	Reason  Reason
	Code    int // provider-specific, 0 when unknown
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider %s: %s (code %d)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("provider %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the reason code from err, ReasonUnknown when err is not
// a provider error.
func ReasonOf(err error) Reason {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonUnknown
}
