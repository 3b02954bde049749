//go:build scenario

package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

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

// gameUpdate is the slice of the snapshot payload the scripts assert on.
type gameUpdate struct {
	Player1Score   int    `json:"player1Score"`
	Player2Score   int    `json:"player2Score"`
	Status         string `json:"status"`
	CountdownValue int    `json:"countdownValue"`
}

// playerConn is one scripted player's live connection plus the ids captured
// from the frames it has read so far.
type playerConn struct {
	name   string
	userID int64
	conn   *websocket.Conn

	gameID   int64
	seat     int
	opponent string
}

func dialPlayer(t *testing.T, addr string, userID int64, name, locale string) *playerConn {
	t.Helper()

	token := mintGrant(t, userID, name, locale)
	wsURL := fmt.Sprintf("ws://%s/ws?access_token=%s", addr, token)
	conn, err := websocket.Dial(wsURL, "", "http://"+addr)
	if err != nil {
		t.Fatalf("dial arena for %s: %v", name, err)
	}

	p := &playerConn{name: name, userID: userID, conn: conn}
	frame, err := p.read(time.Now().Add(5 * time.Second))
	if err != nil {
		t.Fatalf("read connected frame for %s: %v", name, err)
	}
	if frame.Type != "connected" {
		t.Fatalf("first frame for %s = %q, want connected", name, frame.Type)
	}
	var payload struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.UserID != userID {
		t.Fatalf("connected payload for %s = %s, want userId %d", name, frame.Payload, userID)
	}
	return p
}

func (p *playerConn) close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// read returns the next frame, recording the ids carried by frames a script
// may scan past, like seat assignments and invitations.
func (p *playerConn) read(deadline time.Time) (wireFrame, error) {
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return wireFrame{}, err
	}
	var frame wireFrame
	if err := websocket.JSON.Receive(p.conn, &frame); err != nil {
		return wireFrame{}, err
	}
	p.observe(frame)
	return frame, nil
}

func (p *playerConn) observe(frame wireFrame) {
	switch frame.Type {
	case "game:joined":
		var payload struct {
			GameID       int64 `json:"gameId"`
			PlayerNumber int   `json:"playerNumber"`
		}
		if json.Unmarshal(frame.Payload, &payload) == nil && payload.GameID != 0 {
			p.gameID = payload.GameID
			p.seat = payload.PlayerNumber
		}
	case "game:created", "game:ai-created", "game-invitation":
		var payload struct {
			GameID int64 `json:"gameId"`
		}
		if json.Unmarshal(frame.Payload, &payload) == nil && payload.GameID != 0 {
			p.gameID = payload.GameID
		}
	case "tournament:match-ready":
		var payload struct {
			Opponent string `json:"opponent"`
		}
		if json.Unmarshal(frame.Payload, &payload) == nil {
			p.opponent = payload.Opponent
		}
	}
}

func (p *playerConn) send(t *testing.T, frameType string, payload any) {
	t.Helper()

	frame := map[string]any{"type": frameType}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := websocket.JSON.Send(p.conn, frame); err != nil {
		t.Fatalf("send %s for %s: %v", frameType, p.name, err)
	}
}

// awaitFrame reads until a frame of one of the wanted types arrives, failing
// fast when an error envelope shows up instead. Skipped frames are consumed;
// their interesting fields stay captured on the connection.
func (p *playerConn) awaitFrame(t *testing.T, ctx context.Context, want ...string) wireFrame {
	t.Helper()

	deadline := readDeadline(ctx)
	var seen []string
	for {
		frame, err := p.read(deadline)
		if err != nil {
			t.Fatalf("%s waiting for %s (saw %s): %v",
				p.name, strings.Join(want, " or "), seenList(seen), err)
		}
		for _, wantType := range want {
			if frame.Type == wantType {
				return frame
			}
		}
		if frame.Type == "game:error" || frame.Type == "tournament:error" {
			var envelope wireErrorEnvelope
			_ = json.Unmarshal(frame.Payload, &envelope)
			t.Fatalf("%s waiting for %s: got %s %s: %s",
				p.name, strings.Join(want, " or "), frame.Type,
				envelope.Error.Code, envelope.Error.Message)
		}
		if len(seen) == 0 || seen[len(seen)-1] != frame.Type {
			seen = append(seen, frame.Type)
		}
	}
}

// awaitUpdate reads snapshot frames until cond holds for one of them.
func (p *playerConn) awaitUpdate(t *testing.T, ctx context.Context, describe string, cond func(gameUpdate) bool) gameUpdate {
	t.Helper()

	deadline := readDeadline(ctx)
	for {
		frame, err := p.read(deadline)
		if err != nil {
			t.Fatalf("%s waiting for %s: %v", p.name, describe, err)
		}
		if frame.Type == "game:error" || frame.Type == "tournament:error" {
			var envelope wireErrorEnvelope
			_ = json.Unmarshal(frame.Payload, &envelope)
			t.Fatalf("%s waiting for %s: got %s %s: %s",
				p.name, describe, frame.Type, envelope.Error.Code, envelope.Error.Message)
		}
		if frame.Type != "game-update" {
			continue
		}
		var update gameUpdate
		if err := json.Unmarshal(frame.Payload, &update); err != nil {
			t.Fatalf("decode update for %s: %v", p.name, err)
		}
		if cond(update) {
			return update
		}
	}
}

func readDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(scenarioTimeout())
}

func seenList(seen []string) string {
	if len(seen) == 0 {
		return "nothing"
	}
	return strings.Join(seen, ", ")
}
