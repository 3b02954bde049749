// Package ai drives the computer-controlled paddle for practice matches.
//
// A controller stands in for a human player inside a game session: once per
// tick it observes the ball and its own paddle and emits the same
// none/up/down command a human would send. Difficulty levels differ only in
// reaction latency, prediction horizon, and a deliberate positioning error.
package ai

import (
	"math"
	"math/rand"
	"strings"
)

// Difficulty selects the controller's skill profile.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a client-supplied difficulty string.
// Unrecognized values fall back to medium rather than failing the request.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// Command values match the wire encoding for move directions.
const (
	CommandNone = 0
	CommandUp   = 1
	CommandDown = 2
)

// Observation is the controller's per-tick view of the field.
type Observation struct {
	BallX, BallY   float64
	BallVX, BallVY float64
	// PaddleX is the x coordinate of the controlled paddle's face.
	PaddleX float64
	// PaddleY is the top edge of the controlled paddle.
	PaddleY float64

	FieldHeight  float64
	PaddleHeight float64
	BallRadius   float64
}

// Controller computes paddle commands for one AI slot.
type Controller struct {
	difficulty Difficulty

	// reactionDelay is how many ticks pass between target recomputations.
	reactionDelay int
	// aimError is the magnitude in pixels of the positioning error mixed
	// into each recomputed target.
	aimError float64
	// horizon is how far ahead, in seconds of ball travel, the controller
	// projects a wall-reflected intercept. A ball further out than the
	// horizon is chased at its current y instead.
	horizon float64

	cooldown int
	target   float64
	rng      *rand.Rand
}

// deadband stops the paddle jittering around a reached target.
const deadband = 12.0

// NewController builds a controller for the given difficulty. The seed makes
// the injected positioning error reproducible.
func NewController(difficulty Difficulty, seed int64) *Controller {
	c := &Controller{
		difficulty: difficulty,
		rng:        rand.New(rand.NewSource(seed)),
	}
	switch difficulty {
	case DifficultyEasy:
		c.reactionDelay = 18
		c.aimError = 40
	case DifficultyHard:
		c.reactionDelay = 3
		c.aimError = 6
		c.horizon = 2.5
	default:
		c.reactionDelay = 9
		c.aimError = 18
		c.horizon = 0.6
	}
	return c
}

// Difficulty reports the controller's skill profile.
func (c *Controller) Difficulty() Difficulty {
	return c.difficulty
}

// Command returns the direction the paddle should move this tick.
func (c *Controller) Command(obs Observation) int {
	c.cooldown--
	if c.cooldown <= 0 {
		c.cooldown = c.reactionDelay
		c.target = c.chooseTarget(obs)
	}

	center := obs.PaddleY + obs.PaddleHeight/2
	switch {
	case c.target < center-deadband:
		return CommandUp
	case c.target > center+deadband:
		return CommandDown
	default:
		return CommandNone
	}
}

func (c *Controller) chooseTarget(obs Observation) float64 {
	jitter := (c.rng.Float64()*2 - 1) * c.aimError

	movingToward := (obs.PaddleX > obs.BallX && obs.BallVX > 0) ||
		(obs.PaddleX < obs.BallX && obs.BallVX < 0)
	if !movingToward {
		// Drift back toward the middle while the ball travels away.
		return obs.FieldHeight/2 + jitter
	}

	dt := math.Abs((obs.PaddleX - obs.BallX) / obs.BallVX)
	if dt > c.horizon {
		return obs.BallY + jitter
	}
	projected := obs.BallY + obs.BallVY*dt
	return reflectY(projected, obs.BallRadius, obs.FieldHeight-obs.BallRadius) + jitter
}

// reflectY folds a projected y coordinate back into the playfield, mirroring
// at each wall the ball would have bounced off.
func reflectY(y, minY, maxY float64) float64 {
	span := maxY - minY
	if span <= 0 {
		return y
	}
	y = math.Mod(y-minY, 2*span)
	if y < 0 {
		y += 2 * span
	}
	if y > span {
		y = 2*span - y
	}
	return y + minY
}
