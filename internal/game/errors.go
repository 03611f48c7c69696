package game

import errorsmod "cosmossdk.io/errors"

const codespace = "bjclient"

// Client sentinel errors. Codes are stable; user-facing text goes through
// SafeMessage, never through these descriptions directly.
var (
	ErrInvalidBet        = errorsmod.Register(codespace, 2, "invalid bet")
	ErrBetBelowMinimum   = errorsmod.Register(codespace, 3, "bet below minimum")
	ErrBetAboveMaximum   = errorsmod.Register(codespace, 4, "bet above maximum")
	ErrNoCredential      = errorsmod.Register(codespace, 5, "no delegated credential")
	ErrCredentialExpired = errorsmod.Register(codespace, 6, "delegated credential expired")
	ErrCredentialScope   = errorsmod.Register(codespace, 7, "delegated credential scope mismatch")
	ErrApprovalDenied    = errorsmod.Register(codespace, 8, "user approval denied")
	ErrSubmitFailed      = errorsmod.Register(codespace, 9, "submission failed")
	ErrConfirmTimeout    = errorsmod.Register(codespace, 10, "confirmation timed out")
	ErrStreamClosed      = errorsmod.Register(codespace, 11, "event stream closed")
	ErrNoActiveGame      = errorsmod.Register(codespace, 12, "no active game")
	ErrStalePlayer       = errorsmod.Register(codespace, 13, "player context changed")
	ErrBetEmpty          = errorsmod.Register(codespace, 14, "empty bet amount")
	ErrBetNotPositive    = errorsmod.Register(codespace, 15, "bet amount not positive")
)

// Fixed, reviewed user-visible phrasings. Raw remote error strings and stack
// detail never reach the UI layer.
const (
	msgGeneric      = "Something went wrong. Please try again."
	msgEmptyAmount  = "Enter a bet amount."
	msgBadAmount    = "Bet amount must be a number."
	msgNotPositive  = "Bet amount must be greater than zero."
	msgBelowMin     = "Bet is below the table minimum."
	msgAboveMax     = "Bet is above the table maximum."
	msgAuthDeclined = "Signing was declined."
	msgSubmit       = "The action could not be submitted. Please try again."
	msgPending      = "Still waiting for the network to confirm."
	msgStream       = "Connection lost. Refresh to reload the table."
	msgNoGame       = "No hand in progress. Place a bet first."
)

// SafeMessage maps an internal error onto the small fixed set of user-visible
// messages. Unknown causes map to the generic retry message.
func SafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errorsmod.IsOf(err, ErrBetEmpty):
		return msgEmptyAmount
	case errorsmod.IsOf(err, ErrInvalidBet):
		return msgBadAmount
	case errorsmod.IsOf(err, ErrBetNotPositive):
		return msgNotPositive
	case errorsmod.IsOf(err, ErrBetBelowMinimum):
		return msgBelowMin
	case errorsmod.IsOf(err, ErrBetAboveMaximum):
		return msgAboveMax
	case errorsmod.IsOf(err, ErrApprovalDenied):
		return msgAuthDeclined
	case errorsmod.IsOf(err, ErrSubmitFailed, ErrNoCredential, ErrCredentialExpired, ErrCredentialScope):
		return msgSubmit
	case errorsmod.IsOf(err, ErrConfirmTimeout):
		return msgPending
	case errorsmod.IsOf(err, ErrNoActiveGame):
		return msgNoGame
	case errorsmod.IsOf(err, ErrStreamClosed):
		return msgStream
	default:
		return msgGeneric
	}
}
