package bazaar

import "github.com/happybigmtn/trust-bazaar/core"

// Program errors. Codes are stable and reported in receipts.
var (
	ErrUnrecognizedOperation = core.NewError(6000, core.KindMalformed, "unrecognized operation")
	ErrInsufficientContext   = core.NewError(6001, core.KindMalformed, "insufficient context: too few accounts")
	ErrMalformedPayload      = core.NewError(6002, core.KindMalformed, "malformed payload")
	ErrInvalidConfiguration  = core.NewError(6003, core.KindMalformed, "players must be 2..=10 and rounds at least 1")
	ErrInvalidActionCode     = core.NewError(6004, core.KindMalformed, "action must be 0 (cooperate) or 1 (defect)")
	ErrInvalidOpponent       = core.NewError(6005, core.KindMalformed, "a player cannot face itself")

	ErrNotAuthorized       = core.NewError(6010, core.KindAuthorization, "signer is not the game authority")
	ErrIdentityMismatch    = core.NewError(6011, core.KindAuthorization, "participant record belongs to another player")
	ErrParticipantMismatch = core.NewError(6012, core.KindAuthorization, "participants do not match the sides of the match")

	ErrAlreadyInitialized = core.NewError(6020, core.KindState, "record already initialized")
	ErrRegistrationClosed = core.NewError(6021, core.KindState, "registration is closed")
	ErrRosterFull         = core.NewError(6022, core.KindState, "roster is full")
	ErrGameNotActive      = core.NewError(6023, core.KindState, "game is not in a round")
	ErrRoundMismatch      = core.NewError(6024, core.KindState, "round does not match the current round")
	ErrAlreadySubmitted   = core.NewError(6025, core.KindState, "action already submitted")
	ErrAlreadyResolved    = core.NewError(6026, core.KindState, "match already resolved")
	ErrAlreadyFinalized   = core.NewError(6027, core.KindState, "participant already finalized")
	ErrNothingToReclaim   = core.NewError(6028, core.KindState, "no stranded stake to reclaim")

	ErrIncompleteSubmissions = core.NewRetryableError(6030, core.KindState, "both sides must submit first")
	ErrRoundNotResolved      = core.NewRetryableError(6031, core.KindState, "round has unresolved matches")
	ErrGameNotFinished       = core.NewRetryableError(6032, core.KindState, "game is not complete")
	ErrMatchStillOpen        = core.NewRetryableError(6033, core.KindState, "match round is still open")

	ErrInsufficientBalance = core.NewError(6040, core.KindResource, "stake exceeds trust token balance")
)
