// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Game session errors
	CodeGameNotFound         Code = "GAME_NOT_FOUND"
	CodeGameFull             Code = "GAME_FULL"
	CodeGameNotActive        Code = "GAME_NOT_ACTIVE"
	CodeGameSeatRequired     Code = "GAME_SEAT_REQUIRED"
	CodeMoveInvalidDirection Code = "MOVE_INVALID_DIRECTION"

	// Matchmaking errors
	CodeAlreadyQueued    Code = "ALREADY_QUEUED"
	CodeAlreadyInSession Code = "ALREADY_IN_SESSION"

	// Invitation errors
	CodeInviteNoOpenGame  Code = "INVITE_NO_OPEN_GAME"
	CodeInviteSelfInvite  Code = "INVITE_SELF_INVITE"
	CodeInviteUserOffline Code = "INVITE_USER_OFFLINE"

	// Tournament errors
	CodeTournamentNameEmpty          Code = "TOURNAMENT_NAME_EMPTY"
	CodeTournamentInvalidSize        Code = "TOURNAMENT_INVALID_SIZE"
	CodeTournamentInvalidBracketType Code = "TOURNAMENT_INVALID_BRACKET_TYPE"
	CodeTournamentNotFound           Code = "TOURNAMENT_NOT_FOUND"
	CodeTournamentNotRegistering     Code = "TOURNAMENT_NOT_REGISTERING"
	CodeTournamentFull               Code = "TOURNAMENT_FULL"
	CodeTournamentAlreadyRegistered  Code = "TOURNAMENT_ALREADY_REGISTERED"
	CodeTournamentTooFewPlayers      Code = "TOURNAMENT_TOO_FEW_PLAYERS"
	CodeTournamentCreatorOnly        Code = "TOURNAMENT_CREATOR_ONLY"

	// Access grant errors
	CodeGrantInvalid  Code = "GRANT_INVALID"
	CodeGrantExpired  Code = "GRANT_EXPIRED"
	CodeGrantMismatch Code = "GRANT_MISMATCH"
)

// WireCode maps domain codes to the transport code vocabulary used in
// client-facing error envelopes.
func (c Code) WireCode() string {
	switch c {
	// INVALID_ARGUMENT - validation failures, bad input
	case CodeMoveInvalidDirection,
		CodeTournamentNameEmpty,
		CodeTournamentInvalidSize,
		CodeTournamentInvalidBracketType,
		CodeInviteSelfInvite:
		return "INVALID_ARGUMENT"

	// FAILED_PRECONDITION - state doesn't allow operation
	case CodeGameFull,
		CodeGameNotActive,
		CodeAlreadyQueued,
		CodeAlreadyInSession,
		CodeInviteNoOpenGame,
		CodeInviteUserOffline,
		CodeTournamentNotRegistering,
		CodeTournamentFull,
		CodeTournamentTooFewPlayers,
		CodeGrantExpired:
		return "FAILED_PRECONDITION"

	// NOT_FOUND - resource doesn't exist
	case CodeGameNotFound,
		CodeTournamentNotFound:
		return "NOT_FOUND"

	// ALREADY_EXISTS - unique resource constraint
	case CodeTournamentAlreadyRegistered:
		return "ALREADY_EXISTS"

	// FORBIDDEN - caller lacks the required role
	case CodeGameSeatRequired,
		CodeTournamentCreatorOnly:
		return "FORBIDDEN"

	// UNAUTHENTICATED - grant rejected at the door
	case CodeGrantInvalid,
		CodeGrantMismatch:
		return "UNAUTHENTICATED"

	default:
		return "INTERNAL"
	}
}
