// Package lobby pairs players waiting for a casual match and fronts the
// creation of private and AI games. All entry points reject users who are
// already waiting or already seated, so a user holds at most one pending
// intent at a time.
package lobby

import (
	"strconv"
	"sync"

	"github.com/louisbranch/volley.zone/internal/platform/errors"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/ai"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
)

// SessionService is the slice of the session manager the lobby drives.
type SessionService interface {
	CreateMatch(player1, player2 int64) (session.Info, error)
	CreatePrivate(creator int64) (session.Info, error)
	CreateAI(creator int64, difficulty ai.Difficulty) (session.Info, error)
	JoinPrivate(userID, gameID int64) (session.Info, int, error)
	UserActive(userID int64) bool
}

// Queue is the FIFO matchmaking queue. Pairing happens under the queue lock,
// so two concurrent enqueues can never consume the same waiting entry.
type Queue struct {
	sessions SessionService

	mu      sync.Mutex
	waiting []int64
	queued  map[int64]bool
}

func NewQueue(sessions SessionService) *Queue {
	return &Queue{
		sessions: sessions,
		queued:   make(map[int64]bool),
	}
}

// Enqueue adds the user to the queue, or pairs them with the oldest waiting
// player. When a pair forms, the earlier entry takes seat 1 and paired is
// true; otherwise the user waits.
func (q *Queue) Enqueue(userID int64) (info session.Info, paired bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[userID] {
		return session.Info{}, false, errors.WithMetadata(errors.CodeAlreadyQueued,
			"user is already waiting for a match", userMetadata(userID))
	}
	if q.sessions.UserActive(userID) {
		return session.Info{}, false, errors.WithMetadata(errors.CodeAlreadyInSession,
			"user is already in a game", userMetadata(userID))
	}

	if len(q.waiting) == 0 {
		q.waiting = append(q.waiting, userID)
		q.queued[userID] = true
		return session.Info{}, false, nil
	}

	partner := q.waiting[0]
	q.waiting = q.waiting[1:]
	delete(q.queued, partner)

	info, err = q.sessions.CreateMatch(partner, userID)
	if err != nil {
		// Put the waiting player back where they were; only the caller
		// sees the failure.
		q.waiting = append([]int64{partner}, q.waiting...)
		q.queued[partner] = true
		return session.Info{}, false, err
	}
	return info, true, nil
}

// Cancel removes a pending queue entry. It reports whether the user was
// waiting; cancelling an absent user is a no-op.
func (q *Queue) Cancel(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.queued[userID] {
		return false
	}
	delete(q.queued, userID)
	for i, id := range q.waiting {
		if id == userID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	return true
}

// CreatePrivate opens a private game with one empty seat for the user.
func (q *Queue) CreatePrivate(userID int64) (session.Info, error) {
	if err := q.checkIdle(userID); err != nil {
		return session.Info{}, err
	}
	return q.sessions.CreatePrivate(userID)
}

// CreateAI starts a game against an AI opponent at the given difficulty.
func (q *Queue) CreateAI(userID int64, difficulty ai.Difficulty) (session.Info, error) {
	if err := q.checkIdle(userID); err != nil {
		return session.Info{}, err
	}
	return q.sessions.CreateAI(userID, difficulty)
}

// JoinPrivate seats the user in a waiting private game.
func (q *Queue) JoinPrivate(userID, gameID int64) (session.Info, int, error) {
	if err := q.checkIdle(userID); err != nil {
		return session.Info{}, 0, err
	}
	return q.sessions.JoinPrivate(userID, gameID)
}

// checkIdle rejects users who already hold a queue entry or a seat.
func (q *Queue) checkIdle(userID int64) error {
	q.mu.Lock()
	queued := q.queued[userID]
	q.mu.Unlock()
	if queued {
		return errors.WithMetadata(errors.CodeAlreadyQueued,
			"user is already waiting for a match", userMetadata(userID))
	}
	if q.sessions.UserActive(userID) {
		return errors.WithMetadata(errors.CodeAlreadyInSession,
			"user is already in a game", userMetadata(userID))
	}
	return nil
}

// HandleDisconnect drops the user's pending queue entry, if any.
func (q *Queue) HandleDisconnect(userID int64) {
	q.Cancel(userID)
}

// Queued reports whether the user is waiting in the queue.
func (q *Queue) Queued(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[userID]
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func userMetadata(userID int64) map[string]string {
	return map[string]string{"UserID": strconv.FormatInt(userID, 10)}
}
