package conversation

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrInvalidPhone = errors.New("invalid phone number format")

var phoneRe = regexp.MustCompile(`^\+\d{1,15}$`)

// ValidatePhone accepts "+" followed by 1 to 15 digits.
func ValidatePhone(s string) error {
	if !phoneRe.MatchString(s) {
		return ErrInvalidPhone
	}
	return nil
}

type Policy string

const (
	PolicyTrialUnverified Policy = "trial_unverified"
	PolicyBudget          Policy = "budget"
	PolicyNotTrial        Policy = "not_trial"
)

// PolicyError rejects an action before any provider call is made.
type PolicyError struct {
	Policy Policy
	Msg    string
}

func (e *PolicyError) Error() string { return fmt.Sprintf("%s: %s", e.Policy, e.Msg) }

// costEpsilon absorbs float noise so that spending exactly up to the limit
// is allowed.
const costEpsilon = 1e-9

// CheckBudget rejects when total plus estimate would exceed limit.
func CheckBudget(total, estimate, limit float64) error {
	if total+estimate > limit+costEpsilon {
		return &PolicyError{
			Policy: PolicyBudget,
			Msg:    fmt.Sprintf("projected cost %.3f exceeds monthly limit %.2f", total+estimate, limit),
		}
	}
	return nil
}
