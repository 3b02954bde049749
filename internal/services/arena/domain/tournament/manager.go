package tournament

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/volley.zone/internal/platform/errors"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
)

// MatchService is the slice of the session manager the orchestrator drives.
type MatchService interface {
	CreateTournamentMatch(player1, player2, tournamentID int64, round int, done func(session.Result)) (session.Info, error)
}

// Events receives tournament broadcasts. Calls happen outside the manager
// lock; implementations must not call back into the manager synchronously.
// The participants slice is a snapshot safe to retain.
type Events interface {
	PlayerJoined(t Summary, participants []int64)
	Started(t Summary, participants []int64)
	RoundStarted(t Summary, round int, participants []int64)
	MatchReady(t Summary, round int, playerID, opponentID int64)
	MatchCompleted(t Summary, round int, winnerID int64, participants []int64)
	Completed(t Summary, winnerID int64, participants []int64)
}

// Manager owns every tournament in the process.
type Manager struct {
	matches MatchService
	notify  Events

	mu          sync.Mutex
	tournaments map[int64]*tournament
	// byUser tracks registrations per user for disconnect cleanup.
	byUser  map[int64]map[int64]bool
	nextID  int64
	pending []func()
}

func NewManager(matches MatchService, notify Events) *Manager {
	return &Manager{
		matches:     matches,
		notify:      notify,
		tournaments: make(map[int64]*tournament),
		byUser:      make(map[int64]map[int64]bool),
	}
}

// Create opens a tournament for registration with the creator as its first
// participant.
func (m *Manager) Create(creator int64, name string, maxPlayers int, bracketType string) (Summary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Summary{}, errors.New(errors.CodeTournamentNameEmpty, "tournament name is required")
	}
	if !allowedSizes[maxPlayers] {
		return Summary{}, errors.WithMetadata(errors.CodeTournamentInvalidSize,
			"tournament size must be 4, 8, or 16", map[string]string{"Min": "4", "Max": "16"})
	}
	if bracketType != BracketSingleElimination {
		return Summary{}, errors.WithMetadata(errors.CodeTournamentInvalidBracketType,
			"unsupported bracket type", map[string]string{"BracketType": bracketType})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &tournament{
		id:           m.nextID,
		name:         name,
		maxPlayers:   maxPlayers,
		bracketType:  bracketType,
		creator:      creator,
		status:       StatusRegistering,
		createdAt:    time.Now(),
		participants: []int64{creator},
	}
	m.tournaments[t.id] = t
	m.indexLocked(creator, t.id)
	return t.summary(), nil
}

// Join registers a user and broadcasts the new player count.
func (m *Manager) Join(userID, tournamentID int64) (Summary, error) {
	m.mu.Lock()
	t, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentNotFound,
			"tournament does not exist", tournamentMetadata(tournamentID))
	}
	if t.status != StatusRegistering {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentNotRegistering,
			"tournament is no longer accepting players", tournamentMetadata(tournamentID))
	}
	if t.registered(userID) {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentAlreadyRegistered,
			"user is already registered", tournamentMetadata(tournamentID))
	}
	if len(t.participants) >= t.maxPlayers {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentFull,
			"tournament has no open slots", tournamentMetadata(tournamentID))
	}

	t.participants = append(t.participants, userID)
	m.indexLocked(userID, t.id)

	summary := t.summary()
	participants := snapshot(t.participants)
	m.queueLocked(func() { m.notify.PlayerJoined(summary, participants) })
	m.flushUnlock()
	return summary, nil
}

// Start seeds round one and creates its sessions. Only the creator can
// start, and at least two players must be registered.
func (m *Manager) Start(userID, tournamentID int64) (Summary, error) {
	m.mu.Lock()
	t, ok := m.tournaments[tournamentID]
	if !ok {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentNotFound,
			"tournament does not exist", tournamentMetadata(tournamentID))
	}
	if t.status != StatusRegistering {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentNotRegistering,
			"tournament has already started", tournamentMetadata(tournamentID))
	}
	if userID != t.creator {
		m.mu.Unlock()
		return Summary{}, errors.WithMetadata(errors.CodeTournamentCreatorOnly,
			"only the creator can start the tournament", tournamentMetadata(tournamentID))
	}
	if len(t.participants) < 2 {
		m.mu.Unlock()
		metadata := tournamentMetadata(tournamentID)
		metadata["Min"] = "2"
		return Summary{}, errors.WithMetadata(errors.CodeTournamentTooFewPlayers,
			"at least two players are required", metadata)
	}

	t.status = StatusActive
	t.seedOf = make(map[int64]int, len(t.participants))
	for i, id := range t.participants {
		t.seedOf[id] = i
	}

	summary := t.summary()
	participants := snapshot(t.participants)
	m.queueLocked(func() { m.notify.Started(summary, participants) })
	m.beginRoundLocked(t, t.participants)
	m.flushUnlock()
	return summary, nil
}

// ListActive returns every tournament still registering or playing, oldest
// first.
func (m *Manager) ListActive() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Summary
	for _, t := range m.tournaments {
		if t.status == StatusCompleted {
			continue
		}
		out = append(out, t.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HandleDisconnect drops the user from every tournament still registering.
// Active brackets keep the user: their matches resolve through the session
// layer's pause and forfeit rules.
func (m *Manager) HandleDisconnect(userID int64) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t := m.tournaments[id]
		if t == nil || t.status != StatusRegistering {
			continue
		}
		m.unregisterLocked(t, userID)
	}
	m.flushUnlock()
}

func (m *Manager) unregisterLocked(t *tournament, userID int64) {
	for i, id := range t.participants {
		if id == userID {
			t.participants = append(t.participants[:i], t.participants[i+1:]...)
			break
		}
	}
	m.unindexLocked(userID, t.id)

	if len(t.participants) == 0 {
		delete(m.tournaments, t.id)
		return
	}
	// The creator role passes on so the tournament stays startable.
	if t.creator == userID {
		t.creator = t.participants[0]
	}
	summary := t.summary()
	participants := snapshot(t.participants)
	m.queueLocked(func() { m.notify.PlayerJoined(summary, participants) })
}

// beginRoundLocked appends and announces the next round for the given
// advancers (already in seed order) and creates a session per pairing.
func (m *Manager) beginRoundLocked(t *tournament, advancers []int64) {
	t.currentRound++
	pairs, byes := pairRound(advancers)
	round := &Round{Number: t.currentRound, Byes: byes}
	t.rounds = append(t.rounds, round)

	summary := t.summary()
	participants := snapshot(t.participants)
	m.queueLocked(func() { m.notify.RoundStarted(summary, round.Number, participants) })

	for i, pair := range pairs {
		match := &Match{Player1: pair[0], Player2: pair[1]}
		round.Matches = append(round.Matches, match)

		matchIndex := i
		info, err := m.matches.CreateTournamentMatch(match.Player1, match.Player2, t.id, round.Number, func(result session.Result) {
			m.matchDone(t.id, round.Number, matchIndex, result)
		})
		if err != nil {
			// The pairing could not get a session; resolve it in favor of
			// the higher seed so the round still completes.
			match.Done = true
			match.WinnerID = match.Player1
			continue
		}
		match.SessionID = info.ID

		p1, p2 := match.Player1, match.Player2
		m.queueLocked(func() {
			m.notify.MatchReady(summary, round.Number, p1, p2)
			m.notify.MatchReady(summary, round.Number, p2, p1)
		})
	}

	if roundComplete(round) {
		m.advanceLocked(t)
	}
}

// matchDone records a match result and advances the round once its last
// match is decided.
func (m *Manager) matchDone(tournamentID int64, roundNumber, matchIndex int, result session.Result) {
	m.mu.Lock()
	t, ok := m.tournaments[tournamentID]
	if !ok || t.status != StatusActive || roundNumber != t.currentRound {
		m.mu.Unlock()
		return
	}
	round := t.rounds[roundNumber-1]
	match := round.Matches[matchIndex]
	if match.Done {
		m.mu.Unlock()
		return
	}
	match.Done = true
	match.WinnerID = result.WinnerID
	if match.WinnerID == 0 {
		// Neither player finished the match; the higher seed advances.
		match.WinnerID = match.Player1
	}

	summary := t.summary()
	participants := snapshot(t.participants)
	winnerID := match.WinnerID
	m.queueLocked(func() { m.notify.MatchCompleted(summary, roundNumber, winnerID, participants) })

	if roundComplete(round) {
		m.advanceLocked(t)
	}
	m.flushUnlock()
}

func roundComplete(round *Round) bool {
	for _, match := range round.Matches {
		if !match.Done {
			return false
		}
	}
	return true
}

// advanceLocked collects the finished round's advancers in seed order and
// either begins the next round or completes the tournament.
func (m *Manager) advanceLocked(t *tournament) {
	round := t.rounds[t.currentRound-1]
	advancers := append([]int64{}, round.Byes...)
	for _, match := range round.Matches {
		advancers = append(advancers, match.WinnerID)
	}
	sort.Slice(advancers, func(i, j int) bool {
		return t.seedOf[advancers[i]] < t.seedOf[advancers[j]]
	})

	if len(advancers) == 1 {
		t.status = StatusCompleted
		t.winnerID = advancers[0]

		summary := t.summary()
		participants := snapshot(t.participants)
		m.queueLocked(func() { m.notify.Completed(summary, summary.WinnerID, participants) })

		for _, id := range participants {
			m.unindexLocked(id, t.id)
		}
		delete(m.tournaments, t.id)
		return
	}
	m.beginRoundLocked(t, advancers)
}

func (m *Manager) indexLocked(userID, tournamentID int64) {
	set := m.byUser[userID]
	if set == nil {
		set = make(map[int64]bool)
		m.byUser[userID] = set
	}
	set[tournamentID] = true
}

func (m *Manager) unindexLocked(userID, tournamentID int64) {
	set := m.byUser[userID]
	delete(set, tournamentID)
	if len(set) == 0 {
		delete(m.byUser, userID)
	}
}

// queueLocked defers an event dispatch until flushUnlock. Queued closures
// must capture state snapshots, never live tournament pointers.
func (m *Manager) queueLocked(fn func()) {
	if m.notify == nil {
		return
	}
	m.pending = append(m.pending, fn)
}

// flushUnlock releases the manager lock and dispatches queued events in
// order.
func (m *Manager) flushUnlock() {
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

func snapshot(participants []int64) []int64 {
	return append([]int64(nil), participants...)
}

func tournamentMetadata(tournamentID int64) map[string]string {
	return map[string]string{"TournamentID": strconv.FormatInt(tournamentID, 10)}
}
