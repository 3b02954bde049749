// Package session owns the authoritative state of running matches. Each
// session simulates one game at a fixed tick rate on its own goroutine;
// player commands arrive through a bounded intent queue that the tick drains,
// so session state only ever mutates under the session's own discipline.
package session

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/louisbranch/volley.zone/internal/platform/errors"
	"github.com/louisbranch/volley.zone/internal/platform/timeouts"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/ai"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// inputQueueSize bounds how many not-yet-applied move commands a session
// buffers. When full, the oldest command is dropped so fresh input wins.
const inputQueueSize = 32

var (
	countdownTicks = int(timeouts.Countdown / TickInterval)
	graceTicks     = int(timeouts.PauseGrace / TickInterval)
)

// Info is an immutable identity view of a session used in event callbacks.
type Info struct {
	ID           int64
	Player1ID    int64
	Player2ID    int64 // 0 while the seat is open or when AI-controlled
	Player2AI    bool
	Difficulty   ai.Difficulty // set when Player2AI
	TournamentID int64         // 0 for casual games
	Private      bool
}

// Snapshot is one tick's outbound view of the session.
type Snapshot struct {
	PaddleLeft   float64
	PaddleRight  float64
	BallX        float64
	BallY        float64
	Player1Score int
	Player2Score int
	Status       Status
	// Countdown is the whole seconds left before play begins; zero outside
	// the countdown state.
	Countdown int
}

// Result records how a session ended.
type Result struct {
	GameID       int64
	TournamentID int64
	Player1ID    int64
	Player2ID    int64 // 0 for the AI seat
	WinnerID     int64 // 0 when the AI seat won or nobody did
	Player1Score int
	Player2Score int
	// Forfeit marks a win awarded because the opponent left or timed out.
	Forfeit bool
	// Cancelled marks a session that ended without reaching the win score.
	Cancelled bool
	// Started reports whether the match got past seat-filling.
	Started  bool
	Duration time.Duration
	// Private and Player2AI describe how the session was created; together
	// with TournamentID they identify the match mode. Round is the bracket
	// round for tournament games, zero otherwise.
	Private   bool
	Player2AI bool
	Round     int
}

// Events receives session broadcasts. Calls happen outside the session lock
// but on the session's goroutine (or the goroutine of the operation that
// caused the transition); implementations should hand off quickly and must
// not call back into the session synchronously.
type Events interface {
	GameStarting(info Info)
	GameSnapshot(info Info, snap Snapshot)
	GameEnded(info Info, result Result)
	GameCancelled(info Info, result Result)
}

type slot struct {
	userID     int64
	controller *ai.Controller
	connected  bool
}

func (s *slot) isAI() bool {
	return s.controller != nil
}

func (s *slot) open() bool {
	return s.userID == 0 && s.controller == nil
}

type moveCommand struct {
	seat int
	dir  Direction
}

// Session is one match's authoritative state.
type Session struct {
	id        int64
	createdAt time.Time

	mu       sync.Mutex
	status   Status
	slots    [2]slot
	paddles  [2]Paddle
	ball     Ball
	scores   [2]int
	winScore int
	started  bool

	countdownRemaining int
	graceRemaining     int

	rng    *rand.Rand
	inputs chan moveCommand

	tournamentID int64
	round        int
	private      bool

	notify   Events
	onResult func(Result)
	pending  []func()

	stop    chan struct{}
	stopped bool
}

func newSession(id int64, seed int64, notify Events) *Session {
	s := &Session{
		id:        id,
		createdAt: time.Now(),
		status:    StatusWaiting,
		winScore:  WinScore,
		rng:       rand.New(rand.NewSource(seed)),
		inputs:    make(chan moveCommand, inputQueueSize),
		notify:    notify,
		stop:      make(chan struct{}),
	}
	centerY := (FieldHeight - PaddleHeight) / 2
	s.paddles[0].Y = centerY
	s.paddles[1].Y = centerY
	s.ball.X = FieldWidth / 2
	s.ball.Y = FieldHeight / 2
	return s
}

// ID returns the session's numeric id.
func (s *Session) ID() int64 {
	return s.id
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info returns the session's identity view.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	info := Info{
		ID:           s.id,
		Player1ID:    s.slots[0].userID,
		TournamentID: s.tournamentID,
		Private:      s.private,
	}
	if s.slots[1].isAI() {
		info.Player2AI = true
		info.Difficulty = s.slots[1].controller.Difficulty()
	} else {
		info.Player2ID = s.slots[1].userID
	}
	return info
}

// Snapshot returns the current outbound view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		PaddleLeft:   s.paddles[0].Y,
		PaddleRight:  s.paddles[1].Y,
		BallX:        s.ball.X,
		BallY:        s.ball.Y,
		Player1Score: s.scores[0],
		Player2Score: s.scores[1],
		Status:       s.status,
	}
	if s.status == StatusCountdown {
		snap.Countdown = (s.countdownRemaining + TickRate - 1) / TickRate
	}
	return snap
}

// run drives the fixed-rate simulation until the session terminates.
func (s *Session) run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.step()
		}
	}
}

// step advances the session by one tick.
func (s *Session) step() {
	s.mu.Lock()
	s.drainInputsLocked()

	switch s.status {
	case StatusCountdown:
		s.tickAILocked()
		movePaddle(&s.paddles[0], dt)
		movePaddle(&s.paddles[1], dt)
		s.countdownRemaining--
		if s.countdownRemaining <= 0 {
			s.status = StatusPlaying
			serveBall(&s.ball, s.rng, s.rng.Intn(2) == 0)
		}
		s.queueSnapshotLocked()
	case StatusPlaying:
		s.tickAILocked()
		movePaddle(&s.paddles[0], dt)
		movePaddle(&s.paddles[1], dt)
		if exit := advanceBall(&s.ball, &s.paddles[0], &s.paddles[1], dt); exit != exitNone {
			s.applyExitLocked(exit)
		}
		s.queueSnapshotLocked()
	case StatusPaused:
		s.graceRemaining--
		if s.graceRemaining <= 0 {
			winner := s.presentSeatLocked()
			s.terminateLocked(StatusCancelled, winner, true)
		}
	}

	s.flushUnlock()
}

const dt = 1.0 / TickRate

func (s *Session) drainInputsLocked() {
	for {
		select {
		case cmd := <-s.inputs:
			if s.status == StatusPlaying || s.status == StatusCountdown {
				s.paddles[cmd.seat].Direction = cmd.dir
			}
		default:
			return
		}
	}
}

func (s *Session) tickAILocked() {
	for i := range s.slots {
		ctrl := s.slots[i].controller
		if ctrl == nil {
			continue
		}
		faceX := PaddleMargin + PaddleWidth
		if i == 1 {
			faceX = FieldWidth - PaddleMargin - PaddleWidth
		}
		cmd := ctrl.Command(ai.Observation{
			BallX:        s.ball.X,
			BallY:        s.ball.Y,
			BallVX:       s.ball.VX,
			BallVY:       s.ball.VY,
			PaddleX:      faceX,
			PaddleY:      s.paddles[i].Y,
			FieldHeight:  FieldHeight,
			PaddleHeight: PaddleHeight,
			BallRadius:   BallRadius,
		})
		s.paddles[i].Direction = Direction(cmd)
	}
}

func (s *Session) applyExitLocked(exit int) {
	scorer := 0
	if exit == exitLeft {
		scorer = 1
	}
	s.scores[scorer]++
	if s.scores[scorer] == s.winScore {
		s.terminateLocked(StatusFinished, scorer, false)
		return
	}
	// The conceding side receives the next serve.
	serveBall(&s.ball, s.rng, exit == exitLeft)
}

// presentSeatLocked returns the seat that still has a live occupant, or -1.
// AI seats always count as present.
func (s *Session) presentSeatLocked() int {
	for i := range s.slots {
		if s.slots[i].isAI() || (s.slots[i].userID != 0 && s.slots[i].connected) {
			return i
		}
	}
	return -1
}

func (s *Session) seatOfLocked(userID int64) int {
	if userID == 0 {
		return -1
	}
	for i := range s.slots {
		if !s.slots[i].isAI() && s.slots[i].userID == userID {
			return i
		}
	}
	return -1
}

// Move records a direction command to be applied on the next tick.
func (s *Session) Move(userID int64, dir Direction) error {
	s.mu.Lock()
	if s.status != StatusPlaying && s.status != StatusCountdown {
		s.mu.Unlock()
		return errors.WithMetadata(errors.CodeGameNotActive, "game is not accepting moves", s.metadata())
	}
	seat := s.seatOfLocked(userID)
	s.mu.Unlock()
	if seat < 0 {
		return errors.WithMetadata(errors.CodeGameSeatRequired, "user does not hold a seat in this game", s.metadata())
	}

	cmd := moveCommand{seat: seat, dir: dir}
	for {
		select {
		case s.inputs <- cmd:
			return nil
		default:
			select {
			case <-s.inputs:
			default:
			}
		}
	}
}

func (s *Session) metadata() map[string]string {
	return map[string]string{"GameID": formatID(s.id)}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// join seats a user in the open slot of a waiting game.
func (s *Session) join(userID int64) (playerNumber int, started bool, err error) {
	s.mu.Lock()
	if s.status != StatusWaiting {
		s.mu.Unlock()
		return 0, false, errors.WithMetadata(errors.CodeGameFull, "game already has two players", s.metadata())
	}
	if !s.slots[1].open() {
		s.mu.Unlock()
		return 0, false, errors.WithMetadata(errors.CodeGameFull, "game already has two players", s.metadata())
	}
	s.slots[1] = slot{userID: userID, connected: true}
	s.beginCountdownLocked()
	s.flushUnlock()
	return 2, true, nil
}

func (s *Session) beginCountdownLocked() {
	s.status = StatusCountdown
	s.started = true
	s.countdownRemaining = countdownTicks
	s.graceRemaining = 0
	s.ball = Ball{X: FieldWidth / 2, Y: FieldHeight / 2}
}

// Leave removes a user from the session. A waiting game cancels outright; a
// game in progress is forfeited to the opponent. Terminal sessions ignore it.
func (s *Session) Leave(userID int64) {
	s.mu.Lock()
	seat := s.seatOfLocked(userID)
	if seat < 0 || s.status.terminal() {
		s.mu.Unlock()
		return
	}
	switch s.status {
	case StatusWaiting:
		s.terminateLocked(StatusCancelled, -1, false)
	default:
		s.terminateLocked(StatusCancelled, otherSeat(seat), true)
	}
	s.flushUnlock()
}

// HandleDisconnect marks a seat's connection lost. Waiting games cancel; a
// game in flight pauses and waits out a grace period for the player to come
// back. Losing the second player while paused ends the game immediately.
func (s *Session) HandleDisconnect(userID int64) {
	s.mu.Lock()
	seat := s.seatOfLocked(userID)
	if seat < 0 || s.status.terminal() || !s.slots[seat].connected {
		s.mu.Unlock()
		return
	}
	s.slots[seat].connected = false
	switch s.status {
	case StatusWaiting:
		s.terminateLocked(StatusCancelled, -1, false)
	case StatusCountdown, StatusPlaying:
		s.status = StatusPaused
		s.graceRemaining = graceTicks
		s.queueSnapshotLocked()
	case StatusPaused:
		// A second disconnect while paused forfeits against this seat as
		// well; the game cannot resume, so it ends now.
		s.terminateLocked(StatusCancelled, otherSeat(seat), true)
	}
	s.flushUnlock()
}

// HandleReconnect resumes a paused game once the missing player returns.
// Play restarts from a fresh countdown with scores kept.
func (s *Session) HandleReconnect(userID int64) {
	s.mu.Lock()
	seat := s.seatOfLocked(userID)
	if seat < 0 {
		s.mu.Unlock()
		return
	}
	s.slots[seat].connected = true
	if s.status == StatusPaused && s.allPresentLocked() {
		s.beginCountdownLocked()
		s.queueSnapshotLocked()
	}
	s.flushUnlock()
}

func (s *Session) allPresentLocked() bool {
	for i := range s.slots {
		if s.slots[i].isAI() {
			continue
		}
		if s.slots[i].userID != 0 && !s.slots[i].connected {
			return false
		}
	}
	return true
}

func otherSeat(seat int) int {
	return 1 - seat
}

// terminateLocked moves the session to a terminal state and queues the
// outbound notifications and result callback.
func (s *Session) terminateLocked(status Status, winnerSeat int, forfeit bool) {
	if s.status.terminal() {
		return
	}
	s.status = status

	result := Result{
		GameID:       s.id,
		TournamentID: s.tournamentID,
		Player1ID:    s.slots[0].userID,
		Player2ID:    s.slots[1].userID,
		Player1Score: s.scores[0],
		Player2Score: s.scores[1],
		Forfeit:      forfeit,
		Cancelled:    status == StatusCancelled,
		Started:      s.started,
		Duration:     time.Since(s.createdAt),
		Private:      s.private,
		Player2AI:    s.slots[1].isAI(),
		Round:        s.round,
	}
	if winnerSeat >= 0 {
		result.WinnerID = s.slots[winnerSeat].userID
	}

	info := s.infoLocked()
	notify := s.notify
	onResult := s.onResult
	s.pending = append(s.pending, func() {
		if notify != nil {
			if status == StatusFinished {
				notify.GameEnded(info, result)
			} else {
				notify.GameCancelled(info, result)
			}
		}
		if onResult != nil {
			onResult(result)
		}
	})

	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
}

func (s *Session) queueSnapshotLocked() {
	if s.notify == nil {
		return
	}
	info := s.infoLocked()
	snap := s.snapshotLocked()
	notify := s.notify
	s.pending = append(s.pending, func() {
		notify.GameSnapshot(info, snap)
	})
}

// flushUnlock releases the session lock and dispatches queued notifications
// in order. Notifications never run while the lock is held.
func (s *Session) flushUnlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// halt stops the tick loop without reporting a result. Used at server
// teardown when the process is going away.
func (s *Session) halt() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	s.mu.Unlock()
}
