package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage/filter"
)

type matchView struct {
	ID           string `json:"id"`
	GameID       int64  `json:"gameId"`
	TournamentID int64  `json:"tournamentId,omitempty"`
	Round        int    `json:"round,omitempty"`
	Mode         string `json:"mode"`
	Player1ID    int64  `json:"player1Id"`
	Player2ID    int64  `json:"player2Id,omitempty"`
	WinnerID     int64  `json:"winnerId,omitempty"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
	Forfeit      bool   `json:"forfeit,omitempty"`
	Cancelled    bool   `json:"cancelled,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	CreatedAt    string `json:"createdAt"`
}

type matchListResponse struct {
	Matches []matchView `json:"matches"`
}

func matchViewOf(record storage.MatchRecord) matchView {
	return matchView{
		ID:           record.ID,
		GameID:       record.GameID,
		TournamentID: record.TournamentID,
		Round:        record.Round,
		Mode:         string(record.Mode),
		Player1ID:    record.Player1ID,
		Player2ID:    record.Player2ID,
		WinnerID:     record.WinnerID,
		Player1Score: record.Player1Score,
		Player2Score: record.Player2Score,
		Forfeit:      record.Forfeit,
		Cancelled:    record.Cancelled,
		DurationMs:   record.Duration.Milliseconds(),
		CreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// matchFilterFields are the identifiers accepted in /v1/matches filter
// expressions.
func matchFilterFields() filter.Fields {
	return filter.Fields{
		"game_id":       filter.FieldInt,
		"tournament_id": filter.FieldInt,
		"round":         filter.FieldInt,
		"mode":          filter.FieldString,
		"player1_id":    filter.FieldInt,
		"player2_id":    filter.FieldInt,
		"winner_id":     filter.FieldInt,
	}
}

func matchResolver(record storage.MatchRecord) filter.Resolver {
	return func(name string) (any, bool) {
		switch name {
		case "game_id":
			return record.GameID, true
		case "tournament_id":
			return record.TournamentID, true
		case "round":
			return record.Round, true
		case "mode":
			return string(record.Mode), true
		case "player1_id":
			return record.Player1ID, true
		case "player2_id":
			return record.Player2ID, true
		case "winner_id":
			return record.WinnerID, true
		default:
			return nil, false
		}
	}
}

func (a *arena) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.matches == nil {
		http.Error(w, "match history is not configured", http.StatusServiceUnavailable)
		return
	}

	predicate, err := filter.Parse(r.URL.Query().Get("filter"), matchFilterFields())
	if err != nil {
		http.Error(w, "invalid filter expression", http.StatusBadRequest)
		return
	}

	limit := defaultMatchPageSize
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
		if limit > maxMatchPageSize {
			limit = maxMatchPageSize
		}
	}

	// An unfiltered listing reads exactly one page; a filtered one scans a
	// bounded window and keeps the records the predicate accepts.
	fetch := limit
	if predicate != nil {
		fetch = matchScanLimit
	}
	records, err := a.matches.ListMatches(r.Context(), fetch)
	if err != nil {
		log.Printf("arena: list matches: %v", err)
		http.Error(w, "match history is unavailable", http.StatusInternalServerError)
		return
	}

	views := make([]matchView, 0, limit)
	for _, record := range records {
		matched, err := filter.Evaluate(predicate, matchResolver(record))
		if err != nil {
			http.Error(w, "invalid filter expression", http.StatusBadRequest)
			return
		}
		if !matched {
			continue
		}
		views = append(views, matchViewOf(record))
		if len(views) == limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(matchListResponse{Matches: views}); err != nil {
		log.Printf("arena: encode match listing: %v", err)
	}
}
