// Package tournament runs single-elimination brackets on top of the session
// manager. Registration order is seeding order; rounds advance through match
// completion callbacks, never by polling.
package tournament

import "time"

// Status is a tournament's lifecycle state.
type Status string

const (
	StatusRegistering Status = "registering"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
)

// BracketSingleElimination is the only bracket type supported.
const BracketSingleElimination = "single_elimination"

// sizes a tournament can be created with.
var allowedSizes = map[int]bool{4: true, 8: true, 16: true}

// Match is one pairing within a round. WinnerID is zero until the match is
// decided.
type Match struct {
	Player1   int64
	Player2   int64
	SessionID int64
	WinnerID  int64
	Done      bool
}

// Round is an ordered list of matches plus the seeds advancing without
// playing. Byes only occur in round one.
type Round struct {
	Number  int
	Matches []*Match
	Byes    []int64
}

// Summary is the read-only view handed to event consumers and listings.
type Summary struct {
	ID             int64
	Name           string
	MaxPlayers     int
	CurrentPlayers int
	Status         Status
	CurrentRound   int
	CreatorID      int64
	WinnerID       int64
	CreatedAt      time.Time
}

type tournament struct {
	id          int64
	name        string
	maxPlayers  int
	bracketType string
	creator     int64
	status      Status
	createdAt   time.Time

	// participants in registration order; seedOf is its inverse, frozen at
	// start time.
	participants []int64
	seedOf       map[int64]int

	rounds       []*Round
	currentRound int
	winnerID     int64
}

func (t *tournament) summary() Summary {
	return Summary{
		ID:             t.id,
		Name:           t.name,
		MaxPlayers:     t.maxPlayers,
		CurrentPlayers: len(t.participants),
		Status:         t.status,
		CurrentRound:   t.currentRound,
		CreatorID:      t.creator,
		WinnerID:       t.winnerID,
		CreatedAt:      t.createdAt,
	}
}

func (t *tournament) registered(userID int64) bool {
	for _, id := range t.participants {
		if id == userID {
			return true
		}
	}
	return false
}

// pairRound splits advancers (in seed order) into byes and pairings. The
// bracket is padded to the next power of two; unmatched top seeds sit out,
// and seed i plays seed size-1-i among the rest.
func pairRound(advancers []int64) (pairs [][2]int64, byes []int64) {
	size := nextPowerOfTwo(len(advancers))
	byeCount := size - len(advancers)

	byes = append(byes, advancers[:byeCount]...)
	for i := byeCount; i < size/2; i++ {
		pairs = append(pairs, [2]int64{advancers[i], advancers[size-1-i]})
	}
	return pairs, byes
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
