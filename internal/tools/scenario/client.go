package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

// dialPlayer mints a grant for the next scripted account and opens its
// socket, confirming the server greeted the right user.
func (r *Runner) dialPlayer(name, locale string) (*player, error) {
	userID := r.nextUserID
	r.nextUserID++

	token, err := r.grants.Grant(userID, name, locale)
	if err != nil {
		return nil, fmt.Errorf("mint grant for %s: %w", name, err)
	}
	wsURL := fmt.Sprintf("ws://%s/ws?access_token=%s", r.addr, token)
	conn, err := websocket.Dial(wsURL, "", "http://"+r.addr)
	if err != nil {
		return nil, fmt.Errorf("dial arena for %s: %w", name, err)
	}

	p := &player{name: name, userID: userID, conn: conn}
	frame, err := p.read(time.Now().Add(5 * time.Second))
	if err != nil {
		p.close()
		return nil, fmt.Errorf("read connected frame for %s: %w", name, err)
	}
	if frame.Type != "connected" {
		p.close()
		return nil, fmt.Errorf("first frame for %s = %q, want connected", name, frame.Type)
	}
	var payload struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.UserID != userID {
		p.close()
		return nil, fmt.Errorf("connected payload for %s = %s, want userId %d", name, frame.Payload, userID)
	}
	return p, nil
}

func (p *player) close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// read returns the next frame, recording the ids carried by frames a script
// may scan past, like seat assignments and invitations.
func (p *player) read(deadline time.Time) (wireFrame, error) {
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

func (p *player) observe(frame wireFrame) {
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

func (p *player) send(frameType string, payload any) error {
	frame := map[string]any{"type": frameType}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := websocket.JSON.Send(p.conn, frame); err != nil {
		return fmt.Errorf("send %s for %s: %w", frameType, p.name, err)
	}
	return nil
}

// awaitFrame reads until a frame of one of the wanted types arrives, failing
// fast when an error envelope shows up instead. Skipped frames are consumed;
// their interesting fields stay captured on the connection.
func (p *player) awaitFrame(ctx context.Context, want ...string) (wireFrame, error) {
	deadline := readDeadline(ctx)
	var seen []string
	for {
		frame, err := p.read(deadline)
		if err != nil {
			return wireFrame{}, fmt.Errorf("%s waiting for %s (saw %s): %w",
				p.name, strings.Join(want, " or "), seenList(seen), err)
		}
		for _, wantType := range want {
			if frame.Type == wantType {
				return frame, nil
			}
		}
		if frame.Type == "game:error" || frame.Type == "tournament:error" {
			var envelope wireErrorEnvelope
			_ = json.Unmarshal(frame.Payload, &envelope)
			return wireFrame{}, fmt.Errorf("%s waiting for %s: got %s %s: %s",
				p.name, strings.Join(want, " or "), frame.Type,
				envelope.Error.Code, envelope.Error.Message)
		}
		if len(seen) == 0 || seen[len(seen)-1] != frame.Type {
			seen = append(seen, frame.Type)
		}
	}
}

// awaitUpdate reads snapshot frames until cond holds for one of them.
func (p *player) awaitUpdate(ctx context.Context, describe string, cond func(gameUpdate) bool) (gameUpdate, error) {
	deadline := readDeadline(ctx)
	for {
		frame, err := p.read(deadline)
		if err != nil {
			return gameUpdate{}, fmt.Errorf("%s waiting for %s: %w", p.name, describe, err)
		}
		if frame.Type == "game:error" || frame.Type == "tournament:error" {
			var envelope wireErrorEnvelope
			_ = json.Unmarshal(frame.Payload, &envelope)
			return gameUpdate{}, fmt.Errorf("%s waiting for %s: got %s %s: %s",
				p.name, describe, frame.Type, envelope.Error.Code, envelope.Error.Message)
		}
		if frame.Type != "game-update" {
			continue
		}
		var update gameUpdate
		if err := json.Unmarshal(frame.Payload, &update); err != nil {
			return gameUpdate{}, fmt.Errorf("decode update for %s: %w", p.name, err)
		}
		if cond(update) {
			return update, nil
		}
	}
}

func readDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(15 * time.Second)
}

func seenList(seen []string) string {
	if len(seen) == 0 {
		return "nothing"
	}
	return strings.Join(seen, ", ")
}
