package scenario

import (
	"context"
	"encoding/json"
	"fmt"
)

func (r *Runner) runStep(ctx context.Context, state *scenarioState, step Step) error {
	switch step.Kind {
	case "player":
		return r.runPlayerStep(ctx, state, step)
	case "queue":
		return r.runQueueStep(ctx, state, step)
	case "create_private":
		return r.runCreatePrivateStep(ctx, state, step)
	case "join_private":
		return r.runJoinPrivateStep(ctx, state, step)
	case "create_ai":
		return r.runCreateAIStep(ctx, state, step)
	case "invite":
		return r.runInviteStep(ctx, state, step)
	case "move":
		return r.runMoveStep(ctx, state, step)
	case "leave":
		return r.runLeaveStep(ctx, state, step)
	case "disconnect":
		return r.runDisconnectStep(ctx, state, step)
	case "same_game":
		return r.runSameGameStep(ctx, state, step)
	case "await_start":
		return r.runAwaitStartStep(ctx, state, step)
	case "await_invite":
		return r.runAwaitInviteStep(ctx, state, step)
	case "await_status":
		return r.runAwaitStatusStep(ctx, state, step)
	case "await_point":
		return r.runAwaitPointStep(ctx, state, step)
	case "await_end":
		return r.runAwaitEndStep(ctx, state, step)
	case "create_tournament":
		return r.runCreateTournamentStep(ctx, state, step)
	case "join_tournament":
		return r.runJoinTournamentStep(ctx, state, step)
	case "start_tournament":
		return r.runStartTournamentStep(ctx, state, step)
	case "await_match":
		return r.runAwaitMatchStep(ctx, state, step)
	case "await_champion":
		return r.runAwaitChampionStep(ctx, state, step)
	default:
		return r.failf("unknown step kind %q", step.Kind)
	}
}

func (r *Runner) runPlayerStep(ctx context.Context, state *scenarioState, step Step) error {
	name := requiredString(step.Args, "player")
	if name == "" {
		return r.failf("player name is required")
	}
	if _, exists := state.players[name]; exists {
		return r.failf("player %s already connected", name)
	}
	locale := optionalString(step.Args, "locale", "en-US")
	p, err := r.dialPlayer(name, locale)
	if err != nil {
		return err
	}
	state.players[name] = p
	return nil
}

func (r *Runner) runQueueStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	return p.send("game:join-matchmaking", nil)
}

func (r *Runner) runCreatePrivateStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	if err := p.send("game:create-private", nil); err != nil {
		return err
	}
	_, err = p.awaitFrame(ctx, "game:created")
	return err
}

func (r *Runner) runJoinPrivateStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	if p.gameID == 0 {
		return r.failf("%s has no game to join", p.name)
	}
	return p.send("game:join-private", map[string]any{"gameId": p.gameID})
}

func (r *Runner) runCreateAIStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	payload := map[string]any{}
	if difficulty := optionalString(step.Args, "difficulty", ""); difficulty != "" {
		payload["difficulty"] = difficulty
	}
	return p.send("game:create-ai", payload)
}

func (r *Runner) runInviteStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	targetName := requiredString(step.Args, "target")
	if targetName == "" {
		return r.failf("invite target is required")
	}
	target, err := state.player(targetName)
	if err != nil {
		return err
	}
	return p.send("game:invite", map[string]any{"targetUserId": target.userID})
}

func (r *Runner) runMoveStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	name := requiredString(step.Args, "direction")
	direction := directionValue(name)
	if direction < 0 {
		return r.failf("unknown direction %q", name)
	}
	if p.gameID == 0 {
		return r.failf("%s is not in a game", p.name)
	}
	return p.send("game:move", map[string]any{"gameId": p.gameID, "direction": direction})
}

func (r *Runner) runLeaveStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	return p.send("game:leave", nil)
}

func (r *Runner) runDisconnectStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	p.close()
	return nil
}

func (r *Runner) runSameGameStep(ctx context.Context, state *scenarioState, step Step) error {
	names, err := stringList(step.Args, "players")
	if err != nil {
		return err
	}
	if len(names) < 2 {
		return r.failf("same_game needs at least two players")
	}
	first, err := state.player(names[0])
	if err != nil {
		return err
	}
	if first.gameID == 0 {
		return r.assertf("%s never saw a seat assignment", names[0])
	}
	for _, name := range names[1:] {
		p, err := state.player(name)
		if err != nil {
			return err
		}
		if p.gameID != first.gameID {
			if err := r.assertf("%s is in game %d, %s is in game %d", names[0], first.gameID, name, p.gameID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) runAwaitStartStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	joined, err := p.awaitFrame(ctx, "game:joined")
	if err != nil {
		return err
	}
	var payload struct {
		GameID       int64 `json:"gameId"`
		PlayerNumber int   `json:"playerNumber"`
	}
	if err := json.Unmarshal(joined.Payload, &payload); err != nil {
		return fmt.Errorf("decode joined payload: %w", err)
	}
	if payload.GameID == 0 || payload.PlayerNumber == 0 {
		if err := r.assertf("joined payload = %s", joined.Payload); err != nil {
			return err
		}
	}
	_, err = p.awaitFrame(ctx, "game-starting")
	return err
}

func (r *Runner) runAwaitInviteStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	frame, err := p.awaitFrame(ctx, "game-invitation")
	if err != nil {
		return err
	}
	var payload struct {
		InviterName string `json:"inviterName"`
		GameID      int64  `json:"gameId"`
		Title       string `json:"title"`
		Body        string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("decode invitation payload: %w", err)
	}
	if payload.GameID == 0 {
		if err := r.assertf("invitation carries no game id"); err != nil {
			return err
		}
	}
	if from := optionalString(step.Args, "from", ""); from != "" && payload.InviterName != from {
		if err := r.assertf("inviter = %q, want %q", payload.InviterName, from); err != nil {
			return err
		}
	}
	if payload.Title == "" || payload.Body == "" {
		return r.assertf("invitation copy missing: %s", frame.Payload)
	}
	return nil
}

func (r *Runner) runAwaitStatusStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	want := requiredString(step.Args, "status")
	if want == "" {
		return r.failf("status is required")
	}
	_, err = p.awaitUpdate(ctx, "status "+want, func(u gameUpdate) bool {
		return u.Status == want
	})
	return err
}

func (r *Runner) runAwaitPointStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	total := optionalInt(step.Args, "total", 1)
	update, err := p.awaitUpdate(ctx, fmt.Sprintf("%d scored points", total), func(u gameUpdate) bool {
		return u.Player1Score+u.Player2Score >= total
	})
	if err != nil {
		return err
	}
	if update.Player1Score < 0 || update.Player2Score < 0 {
		return r.assertf("scores went negative: %+v", update)
	}
	return nil
}

func (r *Runner) runAwaitEndStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	frame, err := p.awaitFrame(ctx, "game-ended", "game-cancelled")
	if err != nil {
		return err
	}
	var payload struct {
		WinnerID int64 `json:"winnerId"`
		Forfeit  bool  `json:"forfeit"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", frame.Type, err)
	}
	if winner := optionalString(step.Args, "winner", ""); winner != "" {
		expected, err := state.player(winner)
		if err != nil {
			return err
		}
		if payload.WinnerID != expected.userID {
			if err := r.assertf("winner = %d, want %s (%d)", payload.WinnerID, winner, expected.userID); err != nil {
				return err
			}
		}
	}
	if forfeit, ok := readBool(step.Args, "forfeit"); ok && payload.Forfeit != forfeit {
		return r.assertf("forfeit = %v, want %v", payload.Forfeit, forfeit)
	}
	return nil
}

func (r *Runner) runCreateTournamentStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"name":        optionalString(step.Args, "name", "Scenario Cup"),
		"maxPlayers":  optionalInt(step.Args, "max_players", 4),
		"bracketType": optionalString(step.Args, "bracket", "single_elimination"),
	}
	if err := p.send("tournament:create", payload); err != nil {
		return err
	}

	frame, err := p.awaitFrame(ctx, "tournament:created")
	if err != nil {
		return err
	}
	var created struct {
		Tournament struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"tournament"`
	}
	if err := json.Unmarshal(frame.Payload, &created); err != nil {
		return fmt.Errorf("decode created payload: %w", err)
	}
	if created.Tournament.ID == 0 {
		return r.failf("created tournament has no id: %s", frame.Payload)
	}
	if created.Tournament.Status != "registering" {
		if err := r.assertf("tournament status = %q, want registering", created.Tournament.Status); err != nil {
			return err
		}
	}
	state.tournamentID = created.Tournament.ID
	return nil
}

func (r *Runner) runJoinTournamentStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	if state.tournamentID == 0 {
		return r.failf("no tournament created yet")
	}
	if err := p.send("tournament:join", map[string]any{"tournamentId": state.tournamentID}); err != nil {
		return err
	}
	// The joined broadcast doubles as the ack; waiting on it keeps later join
	// steps from racing this one, so seeding stays in script order.
	_, err = p.awaitFrame(ctx, "tournament:player-joined")
	return err
}

func (r *Runner) runStartTournamentStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	if state.tournamentID == 0 {
		return r.failf("no tournament created yet")
	}
	return p.send("tournament:start", map[string]any{"tournamentId": state.tournamentID})
}

func (r *Runner) runAwaitMatchStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	frame, err := p.awaitFrame(ctx, "tournament:match-ready")
	if err != nil {
		return err
	}
	var payload struct {
		Round    int    `json:"round"`
		Opponent string `json:"opponent"`
		Title    string `json:"title"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("decode match-ready payload: %w", err)
	}
	if round := optionalInt(step.Args, "round", 0); round != 0 && payload.Round != round {
		if err := r.assertf("round = %d, want %d", payload.Round, round); err != nil {
			return err
		}
	}
	if opponent := optionalString(step.Args, "opponent", ""); opponent != "" && payload.Opponent != opponent {
		if err := r.assertf("opponent = %q, want %q", payload.Opponent, opponent); err != nil {
			return err
		}
	}
	if payload.Title == "" || payload.Body == "" {
		return r.assertf("match notification copy missing: %s", frame.Payload)
	}
	return nil
}

func (r *Runner) runAwaitChampionStep(ctx context.Context, state *scenarioState, step Step) error {
	p, err := r.actingPlayer(state, step)
	if err != nil {
		return err
	}
	frame, err := p.awaitFrame(ctx, "tournament:completed")
	if err != nil {
		return err
	}
	var payload struct {
		WinnerName string `json:"winnerName"`
		Title      string `json:"title"`
		Body       string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return fmt.Errorf("decode completed payload: %w", err)
	}
	if winner := optionalString(step.Args, "winner", ""); winner != "" && payload.WinnerName != winner {
		if err := r.assertf("champion = %q, want %q", payload.WinnerName, winner); err != nil {
			return err
		}
	}
	if payload.Title == "" || payload.Body == "" {
		return r.assertf("completion copy missing: %s", frame.Payload)
	}
	return nil
}
