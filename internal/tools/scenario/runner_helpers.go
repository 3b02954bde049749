package scenario

import (
	"fmt"
	"strings"
)

func (r *Runner) failf(format string, args ...any) error {
	return r.assertions.Failf(format, args...)
}

func (r *Runner) assertf(format string, args ...any) error {
	return r.assertions.Assertf(format, args...)
}

// actingPlayer resolves the connection named by the step's player argument.
func (r *Runner) actingPlayer(state *scenarioState, step Step) (*player, error) {
	name := requiredString(step.Args, "player")
	if name == "" {
		return nil, r.failf("player is required")
	}
	return state.player(name)
}

func (s *scenarioState) player(name string) (*player, error) {
	p, ok := s.players[name]
	if !ok {
		return nil, fmt.Errorf("player %s is not connected", name)
	}
	return p, nil
}

func (s *scenarioState) closeAll() {
	for _, p := range s.players {
		p.close()
	}
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

func stringList(args map[string]any, key string) ([]string, error) {
	value, ok := args[key]
	if !ok {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", key)
		}
		out = append(out, text)
	}
	return out, nil
}
