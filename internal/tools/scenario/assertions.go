package scenario

import (
	"fmt"
	"log"
)

// AssertionMode selects how unmet expectations are handled.
type AssertionMode int

const (
	// AssertionStrict fails the run on the first unmet expectation.
	AssertionStrict AssertionMode = iota
	// AssertionLogOnly records unmet expectations and keeps going.
	AssertionLogOnly
)

// Assertions applies the configured mode to expectation checks.
type Assertions struct {
	Mode   AssertionMode
	Logger *log.Logger
}

// Failf reports a scripting problem the run cannot recover from,
// regardless of mode.
func (a Assertions) Failf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Assertf reports an unmet expectation, demoted to a log line in
// AssertionLogOnly mode.
func (a Assertions) Assertf(format string, args ...any) error {
	if a.Mode == AssertionLogOnly {
		if a.Logger != nil {
			a.Logger.Printf("expectation: "+format, args...)
		}
		return nil
	}
	return fmt.Errorf(format, args...)
}
