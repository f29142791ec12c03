package crowdfund

import "errors"

// Error kinds. Every domain failure wraps exactly one of them.
var (
	ErrValidation    = errors.New("crowdfund: validation failed")
	ErrNotFound      = errors.New("crowdfund: not found")
	ErrTemporal      = errors.New("crowdfund: outside permitted time window")
	ErrAuthorization = errors.New("crowdfund: unauthorized")
	ErrState         = errors.New("crowdfund: invalid campaign state")
	ErrFunds         = errors.New("crowdfund: funds unavailable")
)

// Error is a domain failure carrying its kind and a human readable reason.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "crowdfund: " + e.Reason
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

func newError(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrCampaignNotFound    = newError(ErrNotFound, "campaign not found")
	ErrInvalidGoal         = newError(ErrValidation, "goal must be greater than zero")
	ErrInvalidDeadline     = newError(ErrValidation, "deadline must be in the future")
	ErrInvalidRequired     = newError(ErrValidation, "required donation amount must be greater than zero")
	ErrInvalidOwner        = newError(ErrValidation, "owner address required")
	ErrZeroValue           = newError(ErrValidation, "donation must be greater than zero")
	ErrAmountMismatch      = newError(ErrValidation, "donation must equal the required amount")
	ErrOverflow            = newError(ErrValidation, "amount overflows 256 bits")
	ErrDeadlinePassed      = newError(ErrTemporal, "deadline has passed")
	ErrDeadlineNotPassed   = newError(ErrTemporal, "deadline has not passed")
	ErrUnauthorized        = newError(ErrAuthorization, "caller is not the campaign owner")
	ErrAlreadyCompleted    = newError(ErrState, "campaign already completed")
	ErrNotCompleted        = newError(ErrState, "campaign not completed")
	ErrAlreadyWithdrawn    = newError(ErrState, "funds already withdrawn")
	ErrCampaignCompleted   = newError(ErrState, "campaign completed, refunds unavailable")
	ErrNoFundsToClaim      = newError(ErrFunds, "no funds to claim")
	ErrInsufficientBalance = newError(ErrFunds, "insufficient balance")
)

// Kind classifies err into one of the kind names used by metrics and the RPC
// layer. Errors outside the taxonomy report "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTemporal):
		return "temporal"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrFunds):
		return "funds"
	default:
		return "internal"
	}
}
