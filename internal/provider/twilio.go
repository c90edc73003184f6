package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// twilioAPI is the part of the Twilio REST client the gateway calls.
type twilioAPI interface {
	ListAvailablePhoneNumberLocal(countryCode string, params *openapi.ListAvailablePhoneNumberLocalParams) ([]openapi.ApiV2010AvailablePhoneNumberLocal, error)
	CreateIncomingPhoneNumber(params *openapi.CreateIncomingPhoneNumberParams) (*openapi.ApiV2010IncomingPhoneNumber, error)
	ListMessage(params *openapi.ListMessageParams) ([]openapi.ApiV2010Message, error)
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
	CreateValidationRequest(params *openapi.CreateValidationRequestParams) (*openapi.ApiV2010ValidationRequest, error)
	FetchAccount(sid string) (*openapi.ApiV2010Account, error)
}

type Twilio struct {
	api        twilioAPI
	accountSID string
	log        *zap.Logger
}

var _ Gateway = (*Twilio)(nil)

func NewTwilio(accountSID, authToken string, log *zap.Logger) *Twilio {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilio(c.Api, accountSID, log)
}

func newTwilio(api twilioAPI, accountSID string, log *zap.Logger) *Twilio {
	return &Twilio{api: api, accountSID: accountSID, log: log.Named("twilio")}
}

func (t *Twilio) SearchAvailableNumbers(ctx context.Context, region string, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &openapi.ListAvailablePhoneNumberLocalParams{}
	params.SetLimit(limit)

	found, err := t.api.ListAvailablePhoneNumberLocal(region, params)
	if err != nil {
		return nil, classify("search_numbers", err)
	}
	out := make([]Candidate, 0, len(found))
	for _, n := range found {
		out = append(out, Candidate{
			PhoneNumber:  deref(n.PhoneNumber),
			FriendlyName: deref(n.FriendlyName),
			Region:       deref(n.Region),
		})
	}
	return out, nil
}

func (t *Twilio) PurchaseNumber(ctx context.Context, number string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &openapi.CreateIncomingPhoneNumberParams{}
	params.SetPhoneNumber(number)

	res, err := t.api.CreateIncomingPhoneNumber(params)
	if err != nil {
		return "", classify("purchase_number", err)
	}
	t.log.Info("number purchased", zap.String("number", deref(res.PhoneNumber)), zap.String("sid", deref(res.Sid)))
	return deref(res.PhoneNumber), nil
}

func (t *Twilio) ListInboundMessages(ctx context.Context, to string, limit int) ([]InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &openapi.ListMessageParams{}
	params.SetTo(to)
	params.SetLimit(limit)

	msgs, err := t.api.ListMessage(params)
	if err != nil {
		return nil, classify("list_messages", err)
	}
	out := make([]InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, InboundMessage{
			From:   deref(m.From),
			Body:   deref(m.Body),
			SentAt: parseDate(deref(m.DateSent)),
		})
	}
	return out, nil
}

func (t *Twilio) SendMessage(ctx context.Context, body, from, to string) (SentMessage, error) {
	if err := ctx.Err(); err != nil {
		return SentMessage{}, err
	}
	params := &openapi.CreateMessageParams{}
	params.SetBody(body)
	params.SetFrom(from)
	params.SetTo(to)

	res, err := t.api.CreateMessage(params)
	if err != nil {
		return SentMessage{}, classify("send_message", err)
	}
	return SentMessage{ProviderID: deref(res.Sid), Status: deref(res.Status)}, nil
}

func (t *Twilio) RequestNumberValidation(ctx context.Context, number, label string) (Validation, error) {
	if err := ctx.Err(); err != nil {
		return Validation{}, err
	}
	params := &openapi.CreateValidationRequestParams{}
	params.SetPhoneNumber(number)
	params.SetFriendlyName(label)

	res, err := t.api.CreateValidationRequest(params)
	if err != nil {
		return Validation{}, classify("validate_number", err)
	}
	return Validation{ValidationID: deref(res.CallSid), Code: deref(res.ValidationCode)}, nil
}

func (t *Twilio) FetchAccountInfo(ctx context.Context) (AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return AccountInfo{}, err
	}
	acc, err := t.api.FetchAccount(t.accountSID)
	if err != nil {
		return AccountInfo{}, classify("fetch_account", err)
	}
	return AccountInfo{Type: deref(acc.Type), Status: deref(acc.Status)}, nil
}

// classify turns a Twilio failure into a provider error. Known error codes
// win; the message text is only consulted when the code is not recognised.
func classify(op string, err error) *Error {
	var te *twclient.TwilioRestError
	if errors.As(err, &te) {
		reason := reasonForCode(te.Code)
		if reason == ReasonUnknown {
			reason = reasonForText(te.Message)
		}
		return &Error{Op: op, Reason: reason, Code: te.Code, Message: te.Message, Err: err}
	}
	return &Error{Op: op, Reason: reasonForText(err.Error()), Message: err.Error(), Err: err}
}

func reasonForCode(code int) Reason {
	switch code {
	case 21608, 21219:
		return ReasonUnverifiedRecipient
	case 21408, 20003:
		return ReasonPermissionDenied
	case 21404:
		return ReasonTrialRestricted
	case 21211, 21421, 21614:
		return ReasonInvalidNumber
	default:
		return ReasonUnknown
	}
}

func reasonForText(msg string) Reason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "unverified"):
		return ReasonUnverifiedRecipient
	case strings.Contains(m, "permission"):
		return ReasonPermissionDenied
	case strings.Contains(m, "payment"), strings.Contains(m, "credit"),
		strings.Contains(m, "insufficient funds"), strings.Contains(m, "balance"):
		return ReasonInsufficientFunds
	case strings.Contains(m, "upgrade"), strings.Contains(m, "trial"):
		return ReasonTrialRestricted
	case strings.Contains(m, "invalid") && strings.Contains(m, "number"):
		return ReasonInvalidNumber
	default:
		return ReasonUnknown
	}
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC1123Z, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
