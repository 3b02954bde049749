//go:build scenario

package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/volley.zone/internal/tools/scenario"
)

const scenarioLuaGlob = "internal/test/arena/scenarios/*.lua"

// Step is the DSL step type the per-step runners consume.
type Step = scenario.Step

// scenarioUserID hands out distinct account ids so scenarios sharing one
// server never supersede each other's connections.
var scenarioUserID atomic.Int64

type scenarioState struct {
	addr         string
	players      map[string]*playerConn
	tournamentID int64
}

func TestScenarioScripts(t *testing.T) {
	addr, stopServer := startArenaServer(t)
	defer stopServer()

	paths := scenarioLuaPaths(t)
	for _, path := range paths {
		path := path
		script, err := scenario.LoadScenarioFromFile(path)
		if err != nil {
			t.Fatalf("load scenario %s: %v", path, err)
		}
		name := script.Name
		if name == "" {
			name = filepath.Base(path)
		}
		t.Run(name, func(t *testing.T) {
			runScenario(t, addr, script)
		})
	}
}

func scenarioLuaPaths(t *testing.T) []string {
	t.Helper()

	pattern := filepath.Join(repoRoot(t), scenarioLuaGlob)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		t.Fatalf("glob scenarios: %v", err)
	}
	if len(paths) == 0 {
		t.Fatalf("no scenarios found for %s", pattern)
	}
	sort.Strings(paths)
	return paths
}

func runScenario(t *testing.T, addr string, script *scenario.Scenario) {
	t.Helper()

	state := &scenarioState{
		addr:    addr,
		players: map[string]*playerConn{},
	}
	t.Cleanup(func() {
		for _, p := range state.players {
			p.close()
		}
	})

	for index, step := range script.Steps {
		step := step
		t.Run(fmt.Sprintf("%02d_%s", index+1, step.Kind), func(t *testing.T) {
			runStep(t, state, step)
		})
	}
}

func runStep(t *testing.T, state *scenarioState, step Step) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout(step))
	defer cancel()

	switch step.Kind {
	case "player":
		runPlayerStep(t, ctx, state, step)
	case "queue":
		runQueueStep(t, ctx, state, step)
	case "create_private":
		runCreatePrivateStep(t, ctx, state, step)
	case "join_private":
		runJoinPrivateStep(t, ctx, state, step)
	case "create_ai":
		runCreateAIStep(t, ctx, state, step)
	case "invite":
		runInviteStep(t, ctx, state, step)
	case "move":
		runMoveStep(t, ctx, state, step)
	case "leave":
		runLeaveStep(t, ctx, state, step)
	case "disconnect":
		runDisconnectStep(t, ctx, state, step)
	case "same_game":
		runSameGameStep(t, ctx, state, step)
	case "await_start":
		runAwaitStartStep(t, ctx, state, step)
	case "await_invite":
		runAwaitInviteStep(t, ctx, state, step)
	case "await_status":
		runAwaitStatusStep(t, ctx, state, step)
	case "await_point":
		runAwaitPointStep(t, ctx, state, step)
	case "await_end":
		runAwaitEndStep(t, ctx, state, step)
	case "create_tournament":
		runCreateTournamentStep(t, ctx, state, step)
	case "join_tournament":
		runJoinTournamentStep(t, ctx, state, step)
	case "start_tournament":
		runStartTournamentStep(t, ctx, state, step)
	case "await_match":
		runAwaitMatchStep(t, ctx, state, step)
	case "await_champion":
		runAwaitChampionStep(t, ctx, state, step)
	default:
		t.Fatalf("unknown step kind %q", step.Kind)
	}
}

func stepTimeout(step Step) time.Duration {
	if step.Kind == "await_point" {
		return pointTimeout()
	}
	return scenarioTimeout()
}

func (s *scenarioState) player(t *testing.T, name string) *playerConn {
	t.Helper()

	p, ok := s.players[name]
	if !ok {
		t.Fatalf("player %s is not connected", name)
	}
	return p
}

func actingPlayer(t *testing.T, state *scenarioState, step Step) *playerConn {
	t.Helper()

	name := requiredString(step.Args, "player")
	if name == "" {
		t.Fatal("player is required")
	}
	return state.player(t, name)
}

func runPlayerStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	name := requiredString(step.Args, "player")
	if name == "" {
		t.Fatal("player name is required")
	}
	if _, exists := state.players[name]; exists {
		t.Fatalf("player %s already connected", name)
	}
	locale := optionalString(step.Args, "locale", "en-US")
	state.players[name] = dialPlayer(t, state.addr, scenarioUserID.Add(1), name, locale)
}

func runQueueStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	p.send(t, "game:join-matchmaking", nil)
}

func runCreatePrivateStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	p.send(t, "game:create-private", nil)
	p.awaitFrame(t, ctx, "game:created")
}

func runJoinPrivateStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	if p.gameID == 0 {
		t.Fatalf("%s has no game to join", p.name)
	}
	p.send(t, "game:join-private", map[string]any{"gameId": p.gameID})
}

func runCreateAIStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	payload := map[string]any{}
	if difficulty := optionalString(step.Args, "difficulty", ""); difficulty != "" {
		payload["difficulty"] = difficulty
	}
	p.send(t, "game:create-ai", payload)
}

func runInviteStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	targetName := requiredString(step.Args, "target")
	if targetName == "" {
		t.Fatal("invite target is required")
	}
	target := state.player(t, targetName)
	p.send(t, "game:invite", map[string]any{"targetUserId": target.userID})
}

func runMoveStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	name := requiredString(step.Args, "direction")
	direction := directionValue(name)
	if direction < 0 {
		t.Fatalf("unknown direction %q", name)
	}
	if p.gameID == 0 {
		t.Fatalf("%s is not in a game", p.name)
	}
	p.send(t, "game:move", map[string]any{"gameId": p.gameID, "direction": direction})
}

func directionValue(name string) int {
	switch name {
	case "stop":
		return 0
	case "up":
		return 1
	case "down":
		return 2
	}
	return -1
}

func runLeaveStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	p.send(t, "game:leave", nil)
}

func runDisconnectStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	p.close()
}

func runSameGameStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	names := stringList(t, step.Args, "players")
	if len(names) < 2 {
		t.Fatal("same_game needs at least two players")
	}
	first := state.player(t, names[0])
	if first.gameID == 0 {
		t.Fatalf("%s never saw a seat assignment", names[0])
	}
	for _, name := range names[1:] {
		p := state.player(t, name)
		if p.gameID != first.gameID {
			t.Fatalf("%s is in game %d, %s is in game %d", names[0], first.gameID, name, p.gameID)
		}
	}
}

func runAwaitStartStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	joined := p.awaitFrame(t, ctx, "game:joined")
	var payload struct {
		GameID       int64 `json:"gameId"`
		PlayerNumber int   `json:"playerNumber"`
	}
	if err := json.Unmarshal(joined.Payload, &payload); err != nil {
		t.Fatalf("decode joined payload: %v", err)
	}
	if payload.GameID == 0 || payload.PlayerNumber == 0 {
		t.Fatalf("joined payload = %s", joined.Payload)
	}
	p.awaitFrame(t, ctx, "game-starting")
}

func runAwaitInviteStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	frame := p.awaitFrame(t, ctx, "game-invitation")
	var payload struct {
		InviterName string `json:"inviterName"`
		GameID      int64  `json:"gameId"`
		Title       string `json:"title"`
		Body        string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode invitation payload: %v", err)
	}
	if payload.GameID == 0 {
		t.Fatal("invitation carries no game id")
	}
	if from := optionalString(step.Args, "from", ""); from != "" && payload.InviterName != from {
		t.Fatalf("inviter = %q, want %q", payload.InviterName, from)
	}
	if payload.Title == "" || payload.Body == "" {
		t.Fatalf("invitation copy missing: %s", frame.Payload)
	}
}

func runAwaitStatusStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	want := requiredString(step.Args, "status")
	if want == "" {
		t.Fatal("status is required")
	}
	p.awaitUpdate(t, ctx, "status "+want, func(u gameUpdate) bool {
		return u.Status == want
	})
}

func runAwaitPointStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	total := optionalInt(step.Args, "total", 1)
	update := p.awaitUpdate(t, ctx, fmt.Sprintf("%d scored points", total), func(u gameUpdate) bool {
		return u.Player1Score+u.Player2Score >= total
	})
	if update.Player1Score < 0 || update.Player2Score < 0 {
		t.Fatalf("scores went negative: %+v", update)
	}
}

func runAwaitEndStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	frame := p.awaitFrame(t, ctx, "game-ended", "game-cancelled")
	var payload struct {
		WinnerID int64 `json:"winnerId"`
		Forfeit  bool  `json:"forfeit"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode %s payload: %v", frame.Type, err)
	}
	if winner := optionalString(step.Args, "winner", ""); winner != "" {
		want := state.player(t, winner).userID
		if payload.WinnerID != want {
			t.Fatalf("winner = %d, want %s (%d)", payload.WinnerID, winner, want)
		}
	}
	if forfeit, ok := readBool(step.Args, "forfeit"); ok && payload.Forfeit != forfeit {
		t.Fatalf("forfeit = %v, want %v", payload.Forfeit, forfeit)
	}
}

func runCreateTournamentStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	payload := map[string]any{
		"name":        optionalString(step.Args, "name", "Scenario Cup"),
		"maxPlayers":  optionalInt(step.Args, "max_players", 4),
		"bracketType": optionalString(step.Args, "bracket", "single_elimination"),
	}
	p.send(t, "tournament:create", payload)

	frame := p.awaitFrame(t, ctx, "tournament:created")
	var created struct {
		Tournament struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"tournament"`
	}
	if err := json.Unmarshal(frame.Payload, &created); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}
	if created.Tournament.ID == 0 {
		t.Fatalf("created tournament has no id: %s", frame.Payload)
	}
	if created.Tournament.Status != "registering" {
		t.Fatalf("tournament status = %q, want registering", created.Tournament.Status)
	}
	state.tournamentID = created.Tournament.ID
}

func runJoinTournamentStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	if state.tournamentID == 0 {
		t.Fatal("no tournament created yet")
	}
	p.send(t, "tournament:join", map[string]any{"tournamentId": state.tournamentID})
	// The joined broadcast doubles as the ack; waiting on it keeps later join
	// steps from racing this one, so seeding stays in script order.
	p.awaitFrame(t, ctx, "tournament:player-joined")
}

func runStartTournamentStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	if state.tournamentID == 0 {
		t.Fatal("no tournament created yet")
	}
	p.send(t, "tournament:start", map[string]any{"tournamentId": state.tournamentID})
}

func runAwaitMatchStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	frame := p.awaitFrame(t, ctx, "tournament:match-ready")
	var payload struct {
		Round    int    `json:"round"`
		Opponent string `json:"opponent"`
		Title    string `json:"title"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode match-ready payload: %v", err)
	}
	if round := optionalInt(step.Args, "round", 0); round != 0 && payload.Round != round {
		t.Fatalf("round = %d, want %d", payload.Round, round)
	}
	if opponent := optionalString(step.Args, "opponent", ""); opponent != "" && payload.Opponent != opponent {
		t.Fatalf("opponent = %q, want %q", payload.Opponent, opponent)
	}
	if payload.Title == "" || payload.Body == "" {
		t.Fatalf("match notification copy missing: %s", frame.Payload)
	}
}

func runAwaitChampionStep(t *testing.T, ctx context.Context, state *scenarioState, step Step) {
	p := actingPlayer(t, state, step)
	frame := p.awaitFrame(t, ctx, "tournament:completed")
	var payload struct {
		WinnerName string `json:"winnerName"`
		Title      string `json:"title"`
		Body       string `json:"body"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode completed payload: %v", err)
	}
	if winner := optionalString(step.Args, "winner", ""); winner != "" && payload.WinnerName != winner {
		t.Fatalf("champion = %q, want %q", payload.WinnerName, winner)
	}
	if payload.Title == "" || payload.Body == "" {
		t.Fatalf("completion copy missing: %s", frame.Payload)
	}
}

func requiredString(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if ok && text != "" {
		return text
	}
	return ""
}

func optionalString(args map[string]any, key, fallback string) string {
	value, ok := args[key]
	if !ok {
		return fallback
	}
	text, ok := value.(string)
	if ok && text != "" {
		return text
	}
	return fallback
}

func optionalInt(args map[string]any, key string, fallback int) int {
	value, ok := args[key]
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case int:
		return typed
	case float64:
		return int(typed)
	default:
		return fallback
	}
}

func readBool(args map[string]any, key string) (bool, bool) {
	value, ok := args[key]
	if !ok {
		return false, false
	}
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		lower := strings.ToLower(strings.TrimSpace(typed))
		if lower == "true" || lower == "yes" || lower == "1" {
			return true, true
		}
		if lower == "false" || lower == "no" || lower == "0" {
			return false, true
		}
	}
	return false, false
}

func stringList(t *testing.T, args map[string]any, key string) []string {
	t.Helper()

	value, ok := args[key]
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		t.Fatalf("%s must be a list", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			t.Fatalf("%s entries must be strings", key)
		}
		out = append(out, text)
	}
	return out
}
