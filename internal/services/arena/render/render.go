// Package render produces the localized notification copy the arena pushes
// to players: private-match invitations, bracket pairings, and tournament
// outcomes. Copy lives in the shared locale catalogs under the arena
// namespace.
package render

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/louisbranch/volley.zone/internal/platform/i18n/catalog"
)

const (
	defaultGenericTitle = "Notification"
	defaultGenericBody  = "You have a new notification."
)

var supportedTags = []language.Tag{
	language.MustParse(catalog.BaseLocale),
	language.MustParse("pt-BR"),
}

var tagMatcher = language.NewMatcher(supportedTags)

// Notification is one localized push message with a short title and body.
type Notification struct {
	Title string
	Body  string
}

// Localizer is the minimal message-printer contract required by the renderers.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// PrinterFor returns a message printer for the closest supported locale.
// Unknown or malformed locales resolve to the base catalog locale.
func PrinterFor(locale string) *message.Printer {
	parsed, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return message.NewPrinter(supportedTags[0])
	}
	matched, _, _ := tagMatcher.Match(parsed)
	return message.NewPrinter(matched)
}

// Invitation renders the copy pushed to a player invited to a private match.
func Invitation(loc Localizer, inviterName string) Notification {
	title := localize(loc, "arena.invitation.title")
	body := localize(loc, "arena.invitation.body", inviterName)
	if title == "arena.invitation.title" || body == "arena.invitation.body" {
		return genericNotification(loc)
	}

	return Notification{Title: title, Body: body}
}

// MatchReady renders the bracket pairing notice for one tournament player.
func MatchReady(loc Localizer, round int, opponentName string) Notification {
	title := localize(loc, "arena.match_ready.title")
	body := localize(loc, "arena.match_ready.body", round, opponentName)
	if title == "arena.match_ready.title" || body == "arena.match_ready.body" {
		return genericNotification(loc)
	}

	return Notification{Title: title, Body: body}
}

// TournamentCompleted renders the final-standings notice for one participant.
func TournamentCompleted(loc Localizer, winnerName string) Notification {
	title := localize(loc, "arena.tournament_completed.title")
	body := localize(loc, "arena.tournament_completed.body", winnerName)
	if title == "arena.tournament_completed.title" || body == "arena.tournament_completed.body" {
		return genericNotification(loc)
	}

	return Notification{Title: title, Body: body}
}

func genericNotification(loc Localizer) Notification {
	return Notification{
		Title: localizeWithFallback(loc, "arena.generic.title", defaultGenericTitle),
		Body:  localizeWithFallback(loc, "arena.generic.body", defaultGenericBody),
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
