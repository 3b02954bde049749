package session

import (
	"math"
	"math/rand"
	"time"
)

// Playfield and tuning constants. Positions are in pixels with the origin at
// the top-left corner and y increasing downward. Velocities are in pixels
// per second.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 12.0
	PaddleHeight = 90.0
	PaddleMargin = 20.0
	PaddleSpeed  = 420.0

	BallRadius    = 8.0
	BallBaseSpeed = 360.0
	BallMaxSpeed  = 850.0
	BallSpeedStep = 1.04

	// MaxDeflection caps the angle a paddle edge hit can send the ball at.
	MaxDeflection = 0.9
	// ServeSpread is the half-range of the randomized serve angle.
	ServeSpread = 0.4

	TickRate = 60
	WinScore = 5
)

// TickInterval is the wall-clock duration of one simulation step.
const TickInterval = time.Second / TickRate

// Direction is a commanded paddle direction. The values match the wire
// encoding used by move events.
type Direction int

const (
	DirectionNone Direction = 0
	DirectionUp   Direction = 1
	DirectionDown Direction = 2
)

// ParseDirection validates a wire direction value.
func ParseDirection(value int) (Direction, bool) {
	switch Direction(value) {
	case DirectionNone, DirectionUp, DirectionDown:
		return Direction(value), true
	}
	return DirectionNone, false
}

// Ball is the simulated ball.
type Ball struct {
	X, Y   float64
	VX, VY float64
}

// Paddle tracks the top edge of one player's paddle and the direction it is
// commanded to move on the next tick.
type Paddle struct {
	Y         float64
	Direction Direction
}

// Ball advance outcomes.
const (
	exitNone = iota
	// exitLeft means the ball left through the left boundary; the right
	// player scores.
	exitLeft
	// exitRight means the ball left through the right boundary; the left
	// player scores.
	exitRight
)

func movePaddle(p *Paddle, dt float64) {
	switch p.Direction {
	case DirectionUp:
		p.Y -= PaddleSpeed * dt
	case DirectionDown:
		p.Y += PaddleSpeed * dt
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if limit := FieldHeight - PaddleHeight; p.Y > limit {
		p.Y = limit
	}
}

// advanceBall moves the ball one step, bouncing off horizontal walls and
// deflecting off paddles, and reports which boundary the ball exited, if any.
func advanceBall(b *Ball, left, right *Paddle, dt float64) int {
	b.X += b.VX * dt
	b.Y += b.VY * dt

	if b.Y-BallRadius < 0 && b.VY < 0 {
		b.Y = BallRadius
		b.VY = -b.VY
	}
	if b.Y+BallRadius > FieldHeight && b.VY > 0 {
		b.Y = FieldHeight - BallRadius
		b.VY = -b.VY
	}

	// The overlap window (paddle width plus ball diameter) exceeds the
	// largest per-tick displacement, so a rect test cannot tunnel.
	if b.VX < 0 && overlapsPaddle(b, left, PaddleMargin) {
		deflect(b, left, true)
		b.X = PaddleMargin + PaddleWidth + BallRadius
	} else if b.VX > 0 && overlapsPaddle(b, right, FieldWidth-PaddleMargin-PaddleWidth) {
		deflect(b, right, false)
		b.X = FieldWidth - PaddleMargin - PaddleWidth - BallRadius
	}

	if b.X+BallRadius < 0 {
		return exitLeft
	}
	if b.X-BallRadius > FieldWidth {
		return exitRight
	}
	return exitNone
}

func overlapsPaddle(b *Ball, p *Paddle, faceX float64) bool {
	if b.X+BallRadius < faceX || b.X-BallRadius > faceX+PaddleWidth {
		return false
	}
	return b.Y+BallRadius >= p.Y && b.Y-BallRadius <= p.Y+PaddleHeight
}

// deflect reflects the ball off a paddle. The outgoing angle is proportional
// to how far from the paddle center the ball struck, and each hit speeds the
// ball up until the cap.
func deflect(b *Ball, p *Paddle, rightward bool) {
	offset := (b.Y - (p.Y + PaddleHeight/2)) / (PaddleHeight / 2)
	if offset < -1 {
		offset = -1
	}
	if offset > 1 {
		offset = 1
	}
	angle := offset * MaxDeflection

	speed := math.Hypot(b.VX, b.VY) * BallSpeedStep
	if speed > BallMaxSpeed {
		speed = BallMaxSpeed
	}

	b.VX = math.Cos(angle) * speed
	if !rightward {
		b.VX = -b.VX
	}
	b.VY = math.Sin(angle) * speed
}

// serveBall places the ball at the exact field center moving toward one side
// at the base speed. The angle comes from the session RNG so a seeded session
// replays identically.
func serveBall(b *Ball, rng *rand.Rand, towardLeft bool) {
	b.X = FieldWidth / 2
	b.Y = FieldHeight / 2

	angle := (rng.Float64()*2 - 1) * ServeSpread
	b.VX = math.Cos(angle) * BallBaseSpeed
	if towardLeft {
		b.VX = -b.VX
	}
	b.VY = math.Sin(angle) * BallBaseSpeed
}
