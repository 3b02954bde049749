package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
)

type wsTestTournamentView struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	CurrentPlayers int    `json:"currentPlayers"`
	MaxPlayers     int    `json:"maxPlayers"`
	Status         string `json:"status"`
	CurrentRound   int    `json:"currentRound"`
}

func TestTournamentLifecycle(t *testing.T) {
	matches := &fakeMatchStore{}
	tournaments := &fakeTournamentStore{}
	profiles := newFakeProfileStore()
	_, srv := newTestArena(t, testBackends{matches: matches, tournaments: tournaments, profiles: profiles},
		auth.Grant{UserID: 1, DisplayName: "Ada", Locale: "en-US"},
		auth.Grant{UserID: 2, DisplayName: "Bea", Locale: "en-US"},
	)
	connA := dialAndConnect(t, srv, 1)
	connB := dialAndConnect(t, srv, 2)

	writeFrame(t, connA, map[string]any{
		"type":       eventTournamentCreate,
		"request_id": "req-create",
		"payload":    map[string]any{"name": "Friday Night", "maxPlayers": 4, "bracketType": "single_elimination"},
	})
	created := awaitFrame(t, connA, eventTournamentCreated)
	if created.RequestID != "req-create" {
		t.Fatalf("created request id = %q, want req-create", created.RequestID)
	}
	var createdPayload struct {
		Tournament wsTestTournamentView `json:"tournament"`
	}
	if err := json.Unmarshal(created.Payload, &createdPayload); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}
	view := createdPayload.Tournament
	if view.ID == 0 || view.Name != "Friday Night" || view.CurrentPlayers != 1 || view.MaxPlayers != 4 {
		t.Fatalf("created view = %+v", view)
	}
	if view.Status != "registering" {
		t.Fatalf("created status = %q, want registering", view.Status)
	}

	writeFrame(t, connB, map[string]any{
		"type":    eventTournamentJoin,
		"payload": map[string]any{"tournamentId": view.ID},
	})
	for _, conn := range []*websocket.Conn{connA, connB} {
		joined := awaitFrame(t, conn, eventTournamentPlayerJoined)
		if !strings.Contains(string(joined.Payload), `"currentPlayers":2`) {
			t.Fatalf("player-joined payload = %s, want 2 players", string(joined.Payload))
		}
	}

	writeFrame(t, connB, map[string]any{"type": eventTournamentListActive, "request_id": "req-list"})
	active := awaitFrame(t, connB, eventTournamentActiveList)
	if active.RequestID != "req-list" {
		t.Fatalf("active-list request id = %q, want req-list", active.RequestID)
	}
	var activePayload struct {
		Tournaments []wsTestTournamentView `json:"tournaments"`
	}
	if err := json.Unmarshal(active.Payload, &activePayload); err != nil {
		t.Fatalf("decode active-list payload: %v", err)
	}
	if len(activePayload.Tournaments) != 1 || activePayload.Tournaments[0].ID != view.ID {
		t.Fatalf("active list = %+v, want the new tournament", activePayload.Tournaments)
	}

	// Only the creator may start.
	writeFrame(t, connB, map[string]any{
		"type":    eventTournamentStart,
		"payload": map[string]any{"tournamentId": view.ID},
	})
	envelope := decodeError(t, awaitFrame(t, connB, eventTournamentError).Payload)
	if envelope.Error.Code != "FORBIDDEN" || !strings.Contains(envelope.Error.Message, "creator") {
		t.Fatalf("non-creator start error = %+v", envelope.Error)
	}

	writeFrame(t, connA, map[string]any{
		"type":    eventTournamentStart,
		"payload": map[string]any{"tournamentId": view.ID},
	})

	joinedA := decodeGameJoined(t, awaitFrame(t, connA, eventGameJoined).Payload)
	joinedB := decodeGameJoined(t, awaitFrame(t, connB, eventGameJoined).Payload)
	if joinedA.PlayerNumber != 1 || joinedB.PlayerNumber != 2 || joinedA.GameID != joinedB.GameID {
		t.Fatalf("bracket seats = %+v and %+v", joinedA, joinedB)
	}

	awaitFrame(t, connA, eventTournamentStarted)
	round := awaitFrame(t, connA, eventTournamentRoundStarted)
	if !strings.Contains(string(round.Payload), `"round":1`) {
		t.Fatalf("round-started payload = %s", string(round.Payload))
	}

	ready := awaitFrame(t, connA, eventTournamentMatchReady)
	var readyPayload struct {
		Round    int    `json:"round"`
		Opponent string `json:"opponent"`
		Title    string `json:"title"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(ready.Payload, &readyPayload); err != nil {
		t.Fatalf("decode match-ready payload: %v", err)
	}
	if readyPayload.Round != 1 || readyPayload.Opponent != "Bea" {
		t.Fatalf("match-ready = %+v, want round 1 against Bea", readyPayload)
	}
	if readyPayload.Title != "Your match is ready" || readyPayload.Body != "Round 1: you face Bea" {
		t.Fatalf("match-ready copy = %+v", readyPayload)
	}

	// Forfeiting the only match decides the round and the tournament.
	writeFrame(t, connA, map[string]any{"type": eventLeave})

	cancelled := awaitFrame(t, connB, eventGameCancelled)
	if !strings.Contains(string(cancelled.Payload), `"winnerId":2`) {
		t.Fatalf("cancelled payload = %s, want winner 2", string(cancelled.Payload))
	}
	completed := awaitFrame(t, connB, eventTournamentMatchCompleted)
	if !strings.Contains(string(completed.Payload), `"round":1`) {
		t.Fatalf("match-completed payload = %s", string(completed.Payload))
	}

	final := awaitFrame(t, connB, eventTournamentCompleted)
	var finalPayload struct {
		WinnerName string `json:"winnerName"`
		Title      string `json:"title"`
		Body       string `json:"body"`
	}
	if err := json.Unmarshal(final.Payload, &finalPayload); err != nil {
		t.Fatalf("decode completed payload: %v", err)
	}
	if finalPayload.WinnerName != "Bea" || finalPayload.Body != "Bea won the tournament" {
		t.Fatalf("completed payload = %+v", finalPayload)
	}
	awaitFrame(t, connA, eventTournamentCompleted)

	waitFor(t, 2*time.Second, func() bool { return tournaments.count() == 1 }, "tournament record never stored")
	record := tournaments.last(t)
	if record.TournamentID != view.ID || record.WinnerID != 2 || record.Name != "Friday Night" {
		t.Fatalf("tournament record = %+v", record)
	}
	if record.MaxPlayers != 4 || record.PlayerCount != 2 {
		t.Fatalf("tournament record sizing = %+v", record)
	}

	waitFor(t, 2*time.Second, func() bool { return matches.count() == 1 }, "bracket match never recorded")
	matchRecord := matches.last(t)
	if matchRecord.Mode != storage.ModeTournament || matchRecord.TournamentID != view.ID || matchRecord.Round != 1 {
		t.Fatalf("match record = %+v, want round 1 of tournament %d", matchRecord, view.ID)
	}

	writeFrame(t, connA, map[string]any{"type": eventTournamentListActive, "request_id": "req-list-2"})
	active = awaitFrame(t, connA, eventTournamentActiveList)
	if !strings.Contains(string(active.Payload), `"tournaments":[]`) {
		t.Fatalf("active list after completion = %s, want empty", string(active.Payload))
	}
}

func TestTournamentValidation(t *testing.T) {
	_, srv := newTestArena(t, testBackends{},
		auth.Grant{UserID: 1, DisplayName: "Ada", Locale: "en-US"},
	)
	conn := dialAndConnect(t, srv, 1)

	cases := []struct {
		name     string
		payload  map[string]any
		code     string
		fragment string
	}{
		{
			name:     "missing max players",
			payload:  map[string]any{"name": "Open", "bracketType": "single_elimination"},
			code:     "INVALID_ARGUMENT",
			fragment: "maxPlayers",
		},
		{
			name:     "empty name",
			payload:  map[string]any{"name": "   ", "maxPlayers": 4, "bracketType": "single_elimination"},
			code:     "INVALID_ARGUMENT",
			fragment: "name",
		},
		{
			name:     "name too long",
			payload:  map[string]any{"name": strings.Repeat("x", maxTournamentNameRunes+1), "maxPlayers": 4, "bracketType": "single_elimination"},
			code:     "INVALID_ARGUMENT",
			fragment: "too long",
		},
		{
			name:     "odd size",
			payload:  map[string]any{"name": "Open", "maxPlayers": 5, "bracketType": "single_elimination"},
			code:     "INVALID_ARGUMENT",
			fragment: "between 4 and 16",
		},
		{
			name:     "unknown bracket",
			payload:  map[string]any{"name": "Open", "maxPlayers": 4, "bracketType": "double_elimination"},
			code:     "INVALID_ARGUMENT",
			fragment: "double_elimination",
		},
	}
	for _, tc := range cases {
		writeFrame(t, conn, map[string]any{"type": eventTournamentCreate, "payload": tc.payload})
		envelope := decodeError(t, awaitFrame(t, conn, eventTournamentError).Payload)
		if envelope.Error.Code != tc.code {
			t.Fatalf("%s: code = %q, want %q", tc.name, envelope.Error.Code, tc.code)
		}
		if !strings.Contains(envelope.Error.Message, tc.fragment) {
			t.Fatalf("%s: message = %q, want %q mentioned", tc.name, envelope.Error.Message, tc.fragment)
		}
	}

	writeFrame(t, conn, map[string]any{"type": eventTournamentJoin, "payload": map[string]any{"tournamentId": 777}})
	envelope := decodeError(t, awaitFrame(t, conn, eventTournamentError).Payload)
	if envelope.Error.Code != "NOT_FOUND" || !strings.Contains(envelope.Error.Message, "777") {
		t.Fatalf("unknown tournament error = %+v", envelope.Error)
	}

	writeFrame(t, conn, map[string]any{
		"type":       eventTournamentCreate,
		"request_id": "req-open",
		"payload":    map[string]any{"name": "Open", "maxPlayers": 4, "bracketType": "single_elimination"},
	})
	created := awaitFrame(t, conn, eventTournamentCreated)
	var createdPayload struct {
		Tournament wsTestTournamentView `json:"tournament"`
	}
	if err := json.Unmarshal(created.Payload, &createdPayload); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}

	// The creator is registered at creation time.
	writeFrame(t, conn, map[string]any{
		"type":    eventTournamentJoin,
		"payload": map[string]any{"tournamentId": createdPayload.Tournament.ID},
	})
	envelope = decodeError(t, awaitFrame(t, conn, eventTournamentError).Payload)
	if envelope.Error.Code != "ALREADY_EXISTS" {
		t.Fatalf("rejoin error code = %q, want ALREADY_EXISTS", envelope.Error.Code)
	}

	writeFrame(t, conn, map[string]any{
		"type":    eventTournamentStart,
		"payload": map[string]any{"tournamentId": createdPayload.Tournament.ID},
	})
	envelope = decodeError(t, awaitFrame(t, conn, eventTournamentError).Payload)
	if envelope.Error.Code != "FAILED_PRECONDITION" || !strings.Contains(envelope.Error.Message, "2") {
		t.Fatalf("too-few-players error = %+v", envelope.Error)
	}
}

func TestTournamentRegistrationDropsOnDisconnect(t *testing.T) {
	a, srv := newTestArena(t, testBackends{},
		auth.Grant{UserID: 1, DisplayName: "Ada", Locale: "en-US"},
		auth.Grant{UserID: 2, DisplayName: "Bea", Locale: "en-US"},
		auth.Grant{UserID: 3, DisplayName: "Cyd", Locale: "en-US"},
	)
	connA := dialAndConnect(t, srv, 1)
	connB := dialAndConnect(t, srv, 2)

	writeFrame(t, connA, map[string]any{
		"type":    eventTournamentCreate,
		"payload": map[string]any{"name": "Open", "maxPlayers": 4, "bracketType": "single_elimination"},
	})
	created := awaitFrame(t, connA, eventTournamentCreated)
	var createdPayload struct {
		Tournament wsTestTournamentView `json:"tournament"`
	}
	if err := json.Unmarshal(created.Payload, &createdPayload); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}

	writeFrame(t, connB, map[string]any{
		"type":    eventTournamentJoin,
		"payload": map[string]any{"tournamentId": createdPayload.Tournament.ID},
	})
	joined := awaitFrame(t, connA, eventTournamentPlayerJoined)
	if !strings.Contains(string(joined.Payload), `"currentPlayers":2`) {
		t.Fatalf("player-joined payload = %s", string(joined.Payload))
	}

	// Dropping a registrant rolls the count back for everyone still in.
	_ = connB.Close()
	joined = awaitFrame(t, connA, eventTournamentPlayerJoined)
	if !strings.Contains(string(joined.Payload), `"currentPlayers":1`) {
		t.Fatalf("after disconnect payload = %s, want 1 player", string(joined.Payload))
	}

	// Once the last registrant leaves, the tournament itself disappears.
	_ = connA.Close()
	waitFor(t, 2*time.Second, func() bool { return len(a.tournaments.ListActive()) == 0 }, "tournament never deleted")

	connC := dialAndConnect(t, srv, 3)
	writeFrame(t, connC, map[string]any{"type": eventTournamentListActive})
	active := awaitFrame(t, connC, eventTournamentActiveList)
	if !strings.Contains(string(active.Payload), `"tournaments":[]`) {
		t.Fatalf("active list = %s, want empty", string(active.Payload))
	}
}
