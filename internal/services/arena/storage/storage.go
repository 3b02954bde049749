// Package storage defines the persistence contracts for the arena service:
// match history, tournament results, and player profiles.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Mode identifies how a match was created.
type Mode string

const (
	// ModeMatchmade represents a queue-paired match.
	ModeMatchmade Mode = "matchmade"
	// ModePrivate represents an invite-only match.
	ModePrivate Mode = "private"
	// ModeAI represents a match against a computer opponent.
	ModeAI Mode = "ai"
	// ModeTournament represents a bracket match.
	ModeTournament Mode = "tournament"
)

// MatchRecord stores one finished or cancelled session.
type MatchRecord struct {
	ID           string
	GameID       int64
	TournamentID int64
	Round        int
	Mode         Mode
	Player1ID    int64
	Player2ID    int64 // 0 for the AI seat
	WinnerID     int64 // 0 when nobody won
	Player1Score int
	Player2Score int
	Forfeit      bool
	Cancelled    bool
	Duration     time.Duration
	CreatedAt    time.Time
}

// TournamentRecord stores one completed tournament.
type TournamentRecord struct {
	ID           string
	TournamentID int64
	Name         string
	WinnerID     int64
	MaxPlayers   int
	PlayerCount  int
	Duration     time.Duration
	CreatedAt    time.Time
}

// ProfileRecord stores the identity a player presented at connect.
type ProfileRecord struct {
	UserID      int64
	DisplayName string
	Locale      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MatchStore persists completed sessions.
type MatchStore interface {
	PutMatch(ctx context.Context, record MatchRecord) error
	ListMatches(ctx context.Context, limit int) ([]MatchRecord, error)
}

// TournamentStore persists completed tournaments.
type TournamentStore interface {
	PutTournament(ctx context.Context, record TournamentRecord) error
	ListTournaments(ctx context.Context, limit int) ([]TournamentRecord, error)
}

// ProfileStore persists player identity used for notification copy.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, record ProfileRecord) error
	GetProfile(ctx context.Context, userID int64) (ProfileRecord, error)
}
