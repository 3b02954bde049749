package session

import (
	"sync"
	"time"

	"github.com/louisbranch/volley.zone/internal/platform/errors"
	"github.com/louisbranch/volley.zone/internal/random"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/ai"
)

// Manager owns every live session, hands out ids, and routes per-user
// lifecycle signals (leave, disconnect, reconnect) to the sessions that hold
// that user.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	byUser   map[int64]map[int64]*Session
	nextID   int64

	notify   Events
	onResult func(Result)
}

// NewManager builds a session manager. notify receives session broadcasts;
// onResult, when set, observes every reported result (persistence hook).
func NewManager(notify Events, onResult func(Result)) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		byUser:   make(map[int64]map[int64]*Session),
		notify:   notify,
		onResult: onResult,
	}
}

func (m *Manager) newSeed() int64 {
	seed, err := random.NewSeed()
	if err != nil {
		return time.Now().UnixNano()
	}
	return seed
}

// CreateMatch pairs two players into a new session and starts its countdown.
func (m *Manager) CreateMatch(player1, player2 int64) (Info, error) {
	return m.createMatch(player1, player2, 0, 0, nil)
}

// CreateTournamentMatch creates a bracket game whose result is reported to
// done in addition to the manager's own result hook.
func (m *Manager) CreateTournamentMatch(player1, player2, tournamentID int64, round int, done func(Result)) (Info, error) {
	return m.createMatch(player1, player2, tournamentID, round, done)
}

func (m *Manager) createMatch(player1, player2, tournamentID int64, round int, done func(Result)) (Info, error) {
	m.mu.Lock()
	s := m.newSessionLocked(done)
	s.tournamentID = tournamentID
	s.round = round
	s.slots[0] = slot{userID: player1, connected: true}
	s.slots[1] = slot{userID: player2, connected: true}
	s.beginCountdownLocked()
	m.indexLocked(s, player1, player2)
	m.mu.Unlock()

	go s.run()
	info := s.Info()
	if m.notify != nil {
		m.notify.GameStarting(info)
	}
	return info, nil
}

// CreatePrivate creates a session with an open second seat that another
// player can join by id.
func (m *Manager) CreatePrivate(creator int64) (Info, error) {
	m.mu.Lock()
	s := m.newSessionLocked(nil)
	s.private = true
	s.slots[0] = slot{userID: creator, connected: true}
	m.indexLocked(s, creator)
	m.mu.Unlock()

	go s.run()
	return s.Info(), nil
}

// CreateAI creates a session against a computer opponent and starts its
// countdown immediately.
func (m *Manager) CreateAI(creator int64, difficulty ai.Difficulty) (Info, error) {
	m.mu.Lock()
	s := m.newSessionLocked(nil)
	s.slots[0] = slot{userID: creator, connected: true}
	s.slots[1] = slot{controller: ai.NewController(difficulty, m.newSeed())}
	s.beginCountdownLocked()
	m.indexLocked(s, creator)
	m.mu.Unlock()

	go s.run()
	info := s.Info()
	if m.notify != nil {
		m.notify.GameStarting(info)
	}
	return info, nil
}

// JoinPrivate seats a user in a waiting game. The returned player number is
// the seat the user now occupies.
func (m *Manager) JoinPrivate(userID, gameID int64) (Info, int, error) {
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	m.mu.Unlock()
	if !ok {
		return Info{}, 0, errors.WithMetadata(errors.CodeGameNotFound, "game not found", gameMetadata(gameID))
	}

	playerNumber, started, err := s.join(userID)
	if err != nil {
		return Info{}, 0, err
	}

	m.mu.Lock()
	m.indexLocked(s, userID)
	m.mu.Unlock()

	info := s.Info()
	if started && m.notify != nil {
		m.notify.GameStarting(info)
	}
	return info, playerNumber, nil
}

// Move routes a direction command to the owning session.
func (m *Manager) Move(userID, gameID int64, dir Direction) error {
	m.mu.Lock()
	s, ok := m.sessions[gameID]
	m.mu.Unlock()
	if !ok {
		return errors.WithMetadata(errors.CodeGameNotFound, "game not found", gameMetadata(gameID))
	}
	return s.Move(userID, dir)
}

// Get returns a live session by id.
func (m *Manager) Get(gameID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gameID]
	return s, ok
}

// OpenPrivateGame returns the private game the user created that is still
// waiting for an opponent, if any.
func (m *Manager) OpenPrivateGame(creator int64) (Info, bool) {
	for _, s := range m.sessionsOf(creator) {
		info := s.Info()
		if info.Private && info.Player1ID == creator && s.Status() == StatusWaiting {
			return info, true
		}
	}
	return Info{}, false
}

// Leave removes the user from every session they occupy. Calling it again
// after the sessions have ended is a no-op.
func (m *Manager) Leave(userID int64) {
	for _, s := range m.sessionsOf(userID) {
		s.Leave(userID)
	}
}

// HandleDisconnect treats a dropped connection as an implicit leave for the
// user's sessions.
func (m *Manager) HandleDisconnect(userID int64) {
	for _, s := range m.sessionsOf(userID) {
		s.HandleDisconnect(userID)
	}
}

// HandleReconnect resumes any paused session waiting on the user.
func (m *Manager) HandleReconnect(userID int64) {
	for _, s := range m.sessionsOf(userID) {
		s.HandleReconnect(userID)
	}
}

// UserActive reports whether the user currently occupies a live session.
func (m *Manager) UserActive(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser[userID]) > 0
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every session's tick loop without reporting results.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.halt()
	}
}

func (m *Manager) sessionsOf(userID int64) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.byUser[userID]))
	for _, s := range m.byUser[userID] {
		out = append(out, s)
	}
	return out
}

// newSessionLocked allocates a session wired to report its result back
// through the manager.
func (m *Manager) newSessionLocked(done func(Result)) *Session {
	m.nextID++
	s := newSession(m.nextID, m.newSeed(), m.notify)
	s.onResult = func(result Result) {
		m.release(s)
		if m.onResult != nil {
			m.onResult(result)
		}
		if done != nil {
			done(result)
		}
	}
	m.sessions[s.id] = s
	return s
}

func (m *Manager) indexLocked(s *Session, users ...int64) {
	if _, live := m.sessions[s.id]; !live {
		return
	}
	for _, userID := range users {
		if userID == 0 {
			continue
		}
		set := m.byUser[userID]
		if set == nil {
			set = make(map[int64]*Session)
			m.byUser[userID] = set
		}
		set[s.id] = s
	}
}

// release drops a finished session from the indexes.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.id)
	for userID, set := range m.byUser {
		if _, ok := set[s.id]; ok {
			delete(set, s.id)
			if len(set) == 0 {
				delete(m.byUser, userID)
			}
		}
	}
}

func gameMetadata(gameID int64) map[string]string {
	return map[string]string{"GameID": formatID(gameID)}
}
