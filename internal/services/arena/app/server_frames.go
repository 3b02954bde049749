package server

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/tournament"
)

// Inbound frame types.
const (
	eventJoinMatchmaking = "game:join-matchmaking"
	eventCreatePrivate   = "game:create-private"
	eventJoinPrivate     = "game:join-private"
	eventCreateAI        = "game:create-ai"
	eventMove            = "game:move"
	eventLeave           = "game:leave"
	eventInvite          = "game:invite"

	eventTournamentCreate     = "tournament:create"
	eventTournamentJoin       = "tournament:join"
	eventTournamentStart      = "tournament:start"
	eventTournamentListActive = "tournament:list-active"
)

// Outbound frame types.
const (
	eventConnected  = "connected"
	eventSuperseded = "connection:superseded"

	eventGameJoined     = "game:joined"
	eventGameCreated    = "game:created"
	eventGameAICreated  = "game:ai-created"
	eventGameStarting   = "game-starting"
	eventGameUpdate     = "game-update"
	eventGameEnded      = "game-ended"
	eventGameCancelled  = "game-cancelled"
	eventGameInvitation = "game-invitation"
	eventGameError      = "game:error"

	eventTournamentCreated        = "tournament:created"
	eventTournamentPlayerJoined   = "tournament:player-joined"
	eventTournamentStarted        = "tournament:started"
	eventTournamentRoundStarted   = "tournament:round-started"
	eventTournamentMatchReady     = "tournament:match-ready"
	eventTournamentMatchCompleted = "tournament:match-completed"
	eventTournamentCompleted      = "tournament:completed"
	eventTournamentActiveList     = "tournament:active-list"
	eventTournamentError          = "tournament:error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type connectedPayload struct {
	UserID int64 `json:"userId"`
}

type supersededPayload struct {
	Message string `json:"message"`
}

type joinPrivatePayload struct {
	GameID *int64 `json:"gameId"`
}

type createAIPayload struct {
	Difficulty string `json:"difficulty"`
}

type movePayload struct {
	GameID    *int64 `json:"gameId"`
	Direction *int   `json:"direction"`
}

type invitePayload struct {
	TargetUserID *int64 `json:"targetUserId"`
}

type tournamentCreatePayload struct {
	Name        string `json:"name"`
	MaxPlayers  *int   `json:"maxPlayers"`
	BracketType string `json:"bracketType"`
}

type tournamentIDPayload struct {
	TournamentID *int64 `json:"tournamentId"`
}

type gameJoinedPayload struct {
	GameID       int64 `json:"gameId"`
	PlayerNumber int   `json:"playerNumber"`
}

type gameCreatedPayload struct {
	GameID int64 `json:"gameId"`
}

type aiCreatedPayload struct {
	GameID     int64  `json:"gameId"`
	Difficulty string `json:"difficulty"`
}

type gameStartingPayload struct {
	Player1 int64 `json:"player1"`
	Player2 int64 `json:"player2"`
}

type gameUpdatePayload struct {
	PaddleLeft     float64 `json:"paddleLeft"`
	PaddleRight    float64 `json:"paddleRight"`
	BallX          float64 `json:"ballX"`
	BallY          float64 `json:"ballY"`
	Player1Score   int     `json:"player1Score"`
	Player2Score   int     `json:"player2Score"`
	Status         string  `json:"status"`
	CountdownValue int     `json:"countdownValue,omitempty"`
}

type finalScore struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type gameEndedPayload struct {
	WinnerID   int64      `json:"winnerId"`
	FinalScore finalScore `json:"finalScore"`
}

type gameCancelledPayload struct {
	WinnerID int64 `json:"winnerId,omitempty"`
	Forfeit  bool  `json:"forfeit,omitempty"`
}

type gameInvitationPayload struct {
	InviterName string `json:"inviterName"`
	GameID      int64  `json:"gameId"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`
}

type tournamentView struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	CurrentPlayers int    `json:"currentPlayers"`
	MaxPlayers     int    `json:"maxPlayers"`
	Status         string `json:"status"`
	CurrentRound   int    `json:"currentRound,omitempty"`
}

func tournamentViewOf(t tournament.Summary) tournamentView {
	return tournamentView{
		ID:             t.ID,
		Name:           t.Name,
		CurrentPlayers: t.CurrentPlayers,
		MaxPlayers:     t.MaxPlayers,
		Status:         string(t.Status),
		CurrentRound:   t.CurrentRound,
	}
}

type tournamentCreatedPayload struct {
	Tournament tournamentView `json:"tournament"`
}

type playerJoinedPayload struct {
	CurrentPlayers int `json:"currentPlayers"`
}

type roundPayload struct {
	Round int `json:"round"`
}

type matchReadyPayload struct {
	Round    int    `json:"round"`
	Opponent string `json:"opponent"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
}

type tournamentCompletedPayload struct {
	WinnerName string `json:"winnerName"`
	Title      string `json:"title,omitempty"`
	Body       string `json:"body,omitempty"`
}

type activeListPayload struct {
	Tournaments []tournamentView `json:"tournaments"`
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("arena: marshal frame payload: %v", err)
		return json.RawMessage("{}")
	}
	return data
}

func eventFrame(eventType, requestID string, payload any) wsFrame {
	return wsFrame{Type: eventType, RequestID: requestID, Payload: mustJSON(payload)}
}

func errorFrame(eventType, requestID, code, message string) wsFrame {
	return eventFrame(eventType, requestID, wsErrorEnvelope{Error: wsError{
		Code:    code,
		Message: message,
	}})
}

func snapshotPayload(snap session.Snapshot) gameUpdatePayload {
	return gameUpdatePayload{
		PaddleLeft:     snap.PaddleLeft,
		PaddleRight:    snap.PaddleRight,
		BallX:          snap.BallX,
		BallY:          snap.BallY,
		Player1Score:   snap.Player1Score,
		Player2Score:   snap.Player2Score,
		Status:         string(snap.Status),
		CountdownValue: snap.Countdown,
	}
}

// errorEventFor picks the error frame type matching the failed frame's
// surface. Frames with no recognizable type report as game errors.
func errorEventFor(frameType string) string {
	if strings.HasPrefix(frameType, "tournament:") {
		return eventTournamentError
	}
	return eventGameError
}
