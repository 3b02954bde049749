package scenario

import (
	"encoding/json"

	"golang.org/x/net/websocket"
)

// wireFrame mirrors the envelope the arena writes on its socket.
type wireFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wireErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// gameUpdate is the slice of the snapshot payload scripts assert on.
type gameUpdate struct {
	Player1Score   int    `json:"player1Score"`
	Player2Score   int    `json:"player2Score"`
	Status         string `json:"status"`
	CountdownValue int    `json:"countdownValue"`
}

// player is one scripted player's live connection plus the ids captured from
// the frames it has read so far.
type player struct {
	name   string
	userID int64
	conn   *websocket.Conn

	gameID   int64
	seat     int
	opponent string
}

type scenarioState struct {
	players      map[string]*player
	tournamentID int64
}
