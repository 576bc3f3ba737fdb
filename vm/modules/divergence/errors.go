package divergence

import "github.com/happybigmtn/trust-bazaar/core"

var (
	ErrUnrecognizedOperation = core.NewError(6100, core.KindMalformed, "unrecognized operation")
	ErrMalformedPayload      = core.NewError(6101, core.KindMalformed, "malformed payload")
	ErrGuessOutOfRange       = core.NewError(6102, core.KindMalformed, "guess exceeds 1000000")
	ErrWinnerAccountMissing  = core.NewError(6103, core.KindMalformed, "winner's player account not supplied")
	ErrNotAuthorized         = core.NewError(6110, core.KindAuthorization, "signer is not the arena authority")
	ErrIdentityMismatch      = core.NewError(6111, core.KindAuthorization, "player account belongs to someone else")
	ErrNotSubmitting         = core.NewError(6120, core.KindState, "arena is not accepting guesses")
	ErrRoundFull             = core.NewError(6121, core.KindState, "round already has the maximum submissions")
	ErrAlreadyGuessed        = core.NewError(6122, core.KindState, "player already guessed this round")
	ErrNoSubmissions         = core.NewRetryableError(6123, core.KindState, "round has no submissions yet")
)
