package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/volley.zone/internal/platform/id"
	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/tournament"
	"github.com/louisbranch/volley.zone/internal/services/arena/registry"
	"github.com/louisbranch/volley.zone/internal/services/arena/render"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
)

// sessionEvents fans session callbacks out to the seated players. Frames are
// only queued here; delivery happens on each connection's writer goroutine.
type sessionEvents struct {
	registry *registry.Registry
}

func (e *sessionEvents) GameStarting(info session.Info) {
	// Seat assignments carry the session id; tournament players have no other
	// way to learn which game to steer.
	if info.Player1ID != 0 {
		e.registry.Unicast(info.Player1ID, eventFrame(eventGameJoined, "", gameJoinedPayload{
			GameID:       info.ID,
			PlayerNumber: 1,
		}))
	}
	if info.Player2ID != 0 {
		e.registry.Unicast(info.Player2ID, eventFrame(eventGameJoined, "", gameJoinedPayload{
			GameID:       info.ID,
			PlayerNumber: 2,
		}))
	}
	e.broadcast(info, eventFrame(eventGameStarting, "", gameStartingPayload{
		Player1: info.Player1ID,
		Player2: info.Player2ID,
	}))
}

func (e *sessionEvents) GameSnapshot(info session.Info, snap session.Snapshot) {
	e.broadcast(info, eventFrame(eventGameUpdate, "", snapshotPayload(snap)))
}

func (e *sessionEvents) GameEnded(info session.Info, result session.Result) {
	e.broadcast(info, eventFrame(eventGameEnded, "", gameEndedPayload{
		WinnerID: result.WinnerID,
		FinalScore: finalScore{
			Player1: result.Player1Score,
			Player2: result.Player2Score,
		},
	}))
}

func (e *sessionEvents) GameCancelled(info session.Info, result session.Result) {
	e.broadcast(info, eventFrame(eventGameCancelled, "", gameCancelledPayload{
		WinnerID: result.WinnerID,
		Forfeit:  result.Forfeit,
	}))
}

func (e *sessionEvents) broadcast(info session.Info, frame wsFrame) {
	if info.Player1ID != 0 {
		e.registry.Unicast(info.Player1ID, frame)
	}
	if info.Player2ID != 0 {
		e.registry.Unicast(info.Player2ID, frame)
	}
}

// tournamentEvents fans orchestrator callbacks out to participants, rendering
// per-locale notification copy where a name is shown.
type tournamentEvents struct {
	registry *registry.Registry
	profiles storage.ProfileStore
	sink     *resultsSink
}

func (e *tournamentEvents) PlayerJoined(t tournament.Summary, participants []int64) {
	e.registry.Broadcast(participants, eventFrame(eventTournamentPlayerJoined, "", playerJoinedPayload{
		CurrentPlayers: t.CurrentPlayers,
	}))
}

func (e *tournamentEvents) Started(t tournament.Summary, participants []int64) {
	e.registry.Broadcast(participants, eventFrame(eventTournamentStarted, "", struct{}{}))
}

func (e *tournamentEvents) RoundStarted(t tournament.Summary, round int, participants []int64) {
	e.registry.Broadcast(participants, eventFrame(eventTournamentRoundStarted, "", roundPayload{Round: round}))
}

func (e *tournamentEvents) MatchReady(t tournament.Summary, round int, playerID, opponentID int64) {
	opponent := displayNameFor(e.profiles, opponentID)
	note := render.MatchReady(render.PrinterFor(localeFor(e.profiles, playerID)), round, opponent)
	e.registry.Unicast(playerID, eventFrame(eventTournamentMatchReady, "", matchReadyPayload{
		Round:    round,
		Opponent: opponent,
		Title:    note.Title,
		Body:     note.Body,
	}))
}

func (e *tournamentEvents) MatchCompleted(t tournament.Summary, round int, winnerID int64, participants []int64) {
	e.registry.Broadcast(participants, eventFrame(eventTournamentMatchCompleted, "", roundPayload{Round: round}))
}

func (e *tournamentEvents) Completed(t tournament.Summary, winnerID int64, participants []int64) {
	winner := displayNameFor(e.profiles, winnerID)
	for _, participantID := range participants {
		note := render.TournamentCompleted(render.PrinterFor(localeFor(e.profiles, participantID)), winner)
		e.registry.Unicast(participantID, eventFrame(eventTournamentCompleted, "", tournamentCompletedPayload{
			WinnerName: winner,
			Title:      note.Title,
			Body:       note.Body,
		}))
	}
	e.sink.recordTournament(t)
}

// resultsSink writes finished games and tournaments to storage. Failures are
// logged and never surface to gameplay.
type resultsSink struct {
	matches     storage.MatchStore
	tournaments storage.TournamentStore
}

func (s *resultsSink) recordMatch(result session.Result) {
	if s.matches == nil || !result.Started {
		return
	}
	recordID, err := id.NewID()
	if err != nil {
		log.Printf("arena: mint match record id: %v", err)
		return
	}
	record := storage.MatchRecord{
		ID:           recordID,
		GameID:       result.GameID,
		TournamentID: result.TournamentID,
		Round:        result.Round,
		Mode:         matchMode(result),
		Player1ID:    result.Player1ID,
		Player2ID:    result.Player2ID,
		WinnerID:     result.WinnerID,
		Player1Score: result.Player1Score,
		Player2Score: result.Player2Score,
		Forfeit:      result.Forfeit,
		Cancelled:    result.Cancelled,
		Duration:     result.Duration,
		CreatedAt:    time.Now(),
	}
	if err := s.matches.PutMatch(context.Background(), record); err != nil {
		log.Printf("arena: record match %d: %v", result.GameID, err)
	}
}

func (s *resultsSink) recordTournament(t tournament.Summary) {
	if s.tournaments == nil {
		return
	}
	recordID, err := id.NewID()
	if err != nil {
		log.Printf("arena: mint tournament record id: %v", err)
		return
	}
	record := storage.TournamentRecord{
		ID:           recordID,
		TournamentID: t.ID,
		Name:         t.Name,
		WinnerID:     t.WinnerID,
		MaxPlayers:   t.MaxPlayers,
		PlayerCount:  t.CurrentPlayers,
		Duration:     time.Since(t.CreatedAt),
		CreatedAt:    t.CreatedAt,
	}
	if err := s.tournaments.PutTournament(context.Background(), record); err != nil {
		log.Printf("arena: record tournament %d: %v", t.ID, err)
	}
}

func matchMode(result session.Result) storage.Mode {
	switch {
	case result.TournamentID != 0:
		return storage.ModeTournament
	case result.Player2AI:
		return storage.ModeAI
	case result.Private:
		return storage.ModePrivate
	default:
		return storage.ModeMatchmade
	}
}

func storageProfile(grant auth.Grant) storage.ProfileRecord {
	// On refresh the store keeps the row's original created_at.
	now := time.Now()
	return storage.ProfileRecord{
		UserID:      grant.UserID,
		DisplayName: grant.DisplayName,
		Locale:      grant.Locale,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func displayNameFor(profiles storage.ProfileStore, userID int64) string {
	if profiles != nil {
		profile, err := profiles.GetProfile(context.Background(), userID)
		if err == nil && strings.TrimSpace(profile.DisplayName) != "" {
			return profile.DisplayName
		}
	}
	return fmt.Sprintf("Player %d", userID)
}

func localeFor(profiles storage.ProfileStore, userID int64) string {
	if profiles == nil {
		return ""
	}
	profile, err := profiles.GetProfile(context.Background(), userID)
	if err != nil {
		return ""
	}
	return profile.Locale
}

func (a *arena) localeOf(userID int64) string {
	return localeFor(a.profiles, userID)
}
