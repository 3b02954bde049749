package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/volley.zone/internal/platform/errors"
	"github.com/louisbranch/volley.zone/internal/platform/errors/i18n"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/ai"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
	"github.com/louisbranch/volley.zone/internal/services/arena/render"
)

// writeWireError sends an error envelope with a literal transport code and
// message, for validation and framing failures.
func (a *arena) writeWireError(c *client, eventType, requestID, code, message string) {
	a.registry.Unicast(c.userID(), errorFrame(eventType, requestID, code, message))
}

// writeDomainError sends an error envelope for a domain failure, localizing
// the message for the player's locale.
func (a *arena) writeDomainError(c *client, eventType, requestID string, err error) {
	code := apperrors.CodeOf(err)
	message := i18n.GetCatalog(c.grant.Locale).Format(string(code), apperrors.MetadataOf(err))
	a.writeWireError(c, eventType, requestID, code.WireCode(), message)
}

func (a *arena) handleJoinMatchmakingFrame(c *client, frame wsFrame) {
	_, _, err := a.queue.Enqueue(c.userID())
	if err != nil {
		a.writeDomainError(c, eventGameError, frame.RequestID, err)
		return
	}
	// Whether the player paired immediately or is now waiting, the joined and
	// starting frames flow from the session bridge once a match exists.
}

func (a *arena) handleCreatePrivateFrame(c *client, frame wsFrame) {
	info, err := a.queue.CreatePrivate(c.userID())
	if err != nil {
		a.writeDomainError(c, eventGameError, frame.RequestID, err)
		return
	}
	a.registry.Unicast(c.userID(), eventFrame(eventGameCreated, frame.RequestID, gameCreatedPayload{GameID: info.ID}))
}

func (a *arena) handleJoinPrivateFrame(c *client, frame wsFrame) {
	var payload joinPrivatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	if payload.GameID == nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "gameId is required")
		return
	}

	if _, _, err := a.queue.JoinPrivate(c.userID(), *payload.GameID); err != nil {
		a.writeDomainError(c, eventGameError, frame.RequestID, err)
		return
	}
}

func (a *arena) handleCreateAIFrame(c *client, frame wsFrame) {
	var payload createAIPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "invalid create payload")
		return
	}

	difficulty := ai.ParseDifficulty(payload.Difficulty)
	info, err := a.queue.CreateAI(c.userID(), difficulty)
	if err != nil {
		a.writeDomainError(c, eventGameError, frame.RequestID, err)
		return
	}
	a.registry.Unicast(c.userID(), eventFrame(eventGameAICreated, frame.RequestID, aiCreatedPayload{
		GameID:     info.ID,
		Difficulty: string(difficulty),
	}))
}

func (a *arena) handleMoveFrame(c *client, frame wsFrame) {
	var payload movePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "invalid move payload")
		return
	}
	if payload.GameID == nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "gameId is required")
		return
	}
	if payload.Direction == nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "direction is required")
		return
	}

	dir, ok := session.ParseDirection(*payload.Direction)
	if !ok {
		a.writeDomainError(c, eventGameError, frame.RequestID, apperrors.WithMetadata(
			apperrors.CodeMoveInvalidDirection,
			"direction is not a valid move",
			map[string]string{"Direction": strconv.Itoa(*payload.Direction)},
		))
		return
	}

	if err := a.sessions.Move(c.userID(), *payload.GameID, dir); err != nil {
		a.writeDomainError(c, eventGameError, frame.RequestID, err)
		return
	}
	// Moves are not acknowledged; their effect shows up in the next snapshot.
}

func (a *arena) handleLeaveFrame(c *client, frame wsFrame) {
	a.queue.Cancel(c.userID())
	a.sessions.Leave(c.userID())
}

func (a *arena) handleInviteFrame(c *client, frame wsFrame) {
	var payload invitePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "invalid invite payload")
		return
	}
	if payload.TargetUserID == nil {
		a.writeWireError(c, eventGameError, frame.RequestID, "INVALID_ARGUMENT", "targetUserId is required")
		return
	}
	targetID := *payload.TargetUserID

	if targetID == c.userID() {
		a.writeDomainError(c, eventGameError, frame.RequestID, apperrors.New(
			apperrors.CodeInviteSelfInvite, "cannot invite yourself"))
		return
	}
	info, ok := a.sessions.OpenPrivateGame(c.userID())
	if !ok {
		a.writeDomainError(c, eventGameError, frame.RequestID, apperrors.New(
			apperrors.CodeInviteNoOpenGame, "no open private game to invite into"))
		return
	}
	if !a.registry.Online(targetID) {
		a.writeDomainError(c, eventGameError, frame.RequestID, apperrors.WithMetadata(
			apperrors.CodeInviteUserOffline,
			"invited player is not connected",
			map[string]string{"UserID": strconv.FormatInt(targetID, 10)},
		))
		return
	}

	note := render.Invitation(render.PrinterFor(a.localeOf(targetID)), c.grant.DisplayName)
	a.registry.Unicast(targetID, eventFrame(eventGameInvitation, "", gameInvitationPayload{
		InviterName: c.grant.DisplayName,
		GameID:      info.ID,
		Title:       note.Title,
		Body:        note.Body,
	}))
}

func (a *arena) handleTournamentCreateFrame(c *client, frame wsFrame) {
	var payload tournamentCreatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "invalid create payload")
		return
	}
	if utf8.RuneCountInString(payload.Name) > maxTournamentNameRunes {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "name is too long")
		return
	}
	if payload.MaxPlayers == nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "maxPlayers is required")
		return
	}

	summary, err := a.tournaments.Create(c.userID(), payload.Name, *payload.MaxPlayers, strings.TrimSpace(payload.BracketType))
	if err != nil {
		a.writeDomainError(c, eventTournamentError, frame.RequestID, err)
		return
	}
	a.registry.Unicast(c.userID(), eventFrame(eventTournamentCreated, frame.RequestID, tournamentCreatedPayload{
		Tournament: tournamentViewOf(summary),
	}))
}

func (a *arena) handleTournamentJoinFrame(c *client, frame wsFrame) {
	var payload tournamentIDPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	if payload.TournamentID == nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "tournamentId is required")
		return
	}

	if _, err := a.tournaments.Join(c.userID(), *payload.TournamentID); err != nil {
		a.writeDomainError(c, eventTournamentError, frame.RequestID, err)
		return
	}
	// The joiner learns the new player count from the same player-joined
	// broadcast every participant receives.
}

func (a *arena) handleTournamentStartFrame(c *client, frame wsFrame) {
	var payload tournamentIDPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "invalid start payload")
		return
	}
	if payload.TournamentID == nil {
		a.writeWireError(c, eventTournamentError, frame.RequestID, "INVALID_ARGUMENT", "tournamentId is required")
		return
	}

	if _, err := a.tournaments.Start(c.userID(), *payload.TournamentID); err != nil {
		a.writeDomainError(c, eventTournamentError, frame.RequestID, err)
		return
	}
}

func (a *arena) handleTournamentListFrame(c *client, frame wsFrame) {
	summaries := a.tournaments.ListActive()
	views := make([]tournamentView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, tournamentViewOf(summary))
	}
	a.registry.Unicast(c.userID(), eventFrame(eventTournamentActiveList, frame.RequestID, activeListPayload{
		Tournaments: views,
	}))
}
