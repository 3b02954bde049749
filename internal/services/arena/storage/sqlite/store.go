// Package sqlite provides SQLite-backed persistence for arena match
// history, tournament results, and player profiles.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/volley.zone/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for arena state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an arena SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// PutMatch persists one completed session row.
func (s *Store) PutMatch(ctx context.Context, record storage.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeMatchRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
	INSERT INTO matches (
		id, game_id, tournament_id, round, mode, player1_id, player2_id,
		winner_id, player1_score, player2_score, forfeit, cancelled, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		game_id = excluded.game_id,
		tournament_id = excluded.tournament_id,
		round = excluded.round,
		mode = excluded.mode,
		player1_id = excluded.player1_id,
		player2_id = excluded.player2_id,
		winner_id = excluded.winner_id,
		player1_score = excluded.player1_score,
		player2_score = excluded.player2_score,
		forfeit = excluded.forfeit,
		cancelled = excluded.cancelled,
		duration_ms = excluded.duration_ms,
		created_at = excluded.created_at
	`,
		normalized.ID,
		normalized.GameID,
		normalized.TournamentID,
		normalized.Round,
		string(normalized.Mode),
		normalized.Player1ID,
		normalized.Player2ID,
		normalized.WinnerID,
		normalized.Player1Score,
		normalized.Player2Score,
		boolToInt(normalized.Forfeit),
		boolToInt(normalized.Cancelled),
		normalized.Duration.Milliseconds(),
		toMillis(normalized.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put match: %w", err)
	}
	return nil
}

// ListMatches lists match records newest-first up to limit.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]storage.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, game_id, tournament_id, round, mode, player1_id, player2_id,
       winner_id, player1_score, player2_score, forfeit, cancelled, duration_ms, created_at
FROM matches
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	results := make([]storage.MatchRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanMatch(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan match row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match rows: %w", err)
	}
	return results, nil
}

// PutTournament persists one completed tournament row.
func (s *Store) PutTournament(ctx context.Context, record storage.TournamentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeTournamentRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
	INSERT INTO tournament_results (
		id, tournament_id, name, winner_id, max_players, player_count, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		tournament_id = excluded.tournament_id,
		name = excluded.name,
		winner_id = excluded.winner_id,
		max_players = excluded.max_players,
		player_count = excluded.player_count,
		duration_ms = excluded.duration_ms,
		created_at = excluded.created_at
	`,
		normalized.ID,
		normalized.TournamentID,
		normalized.Name,
		normalized.WinnerID,
		normalized.MaxPlayers,
		normalized.PlayerCount,
		normalized.Duration.Milliseconds(),
		toMillis(normalized.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put tournament: %w", err)
	}
	return nil
}

// ListTournaments lists tournament results newest-first up to limit.
func (s *Store) ListTournaments(ctx context.Context, limit int) ([]storage.TournamentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, tournament_id, name, winner_id, max_players, player_count, duration_ms, created_at
FROM tournament_results
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	results := make([]storage.TournamentRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanTournament(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan tournament row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tournament rows: %w", err)
	}
	return results, nil
}

// UpsertProfile inserts or refreshes one player profile, keeping the
// original created_at on refresh.
func (s *Store) UpsertProfile(ctx context.Context, record storage.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeProfileRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
	INSERT INTO profiles (user_id, display_name, locale, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		locale = excluded.locale,
		updated_at = excluded.updated_at
	`,
		normalized.UserID,
		normalized.DisplayName,
		normalized.Locale,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile loads one player profile by user id.
func (s *Store) GetProfile(ctx context.Context, userID int64) (storage.ProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProfileRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProfileRecord{}, fmt.Errorf("storage is not configured")
	}
	if userID <= 0 {
		return storage.ProfileRecord{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, display_name, locale, created_at, updated_at
FROM profiles
WHERE user_id = ?
`, userID)
	var record storage.ProfileRecord
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(&record.UserID, &record.DisplayName, &record.Locale, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProfileRecord{}, storage.ErrNotFound
		}
		return storage.ProfileRecord{}, fmt.Errorf("get profile: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

type scanner func(dest ...any) error

func normalizeMatchRecord(record storage.MatchRecord) (storage.MatchRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.Mode = storage.Mode(strings.TrimSpace(string(record.Mode)))
	if record.ID == "" {
		return storage.MatchRecord{}, fmt.Errorf("match id is required")
	}
	if record.GameID <= 0 {
		return storage.MatchRecord{}, fmt.Errorf("game id is required")
	}
	if record.Mode == "" {
		return storage.MatchRecord{}, fmt.Errorf("match mode is required")
	}
	if record.Player1ID <= 0 {
		return storage.MatchRecord{}, fmt.Errorf("player1 id is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.MatchRecord{}, fmt.Errorf("created_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func normalizeTournamentRecord(record storage.TournamentRecord) (storage.TournamentRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.Name = strings.TrimSpace(record.Name)
	if record.ID == "" {
		return storage.TournamentRecord{}, fmt.Errorf("tournament result id is required")
	}
	if record.TournamentID <= 0 {
		return storage.TournamentRecord{}, fmt.Errorf("tournament id is required")
	}
	if record.Name == "" {
		return storage.TournamentRecord{}, fmt.Errorf("tournament name is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.TournamentRecord{}, fmt.Errorf("created_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func normalizeProfileRecord(record storage.ProfileRecord) (storage.ProfileRecord, error) {
	record.DisplayName = strings.TrimSpace(record.DisplayName)
	record.Locale = strings.TrimSpace(record.Locale)
	if record.UserID <= 0 {
		return storage.ProfileRecord{}, fmt.Errorf("user id is required")
	}
	if record.DisplayName == "" {
		return storage.ProfileRecord{}, fmt.Errorf("display name is required")
	}
	if record.Locale == "" {
		record.Locale = "en"
	}
	if record.CreatedAt.IsZero() {
		return storage.ProfileRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.ProfileRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func scanMatch(scan scanner) (storage.MatchRecord, error) {
	var record storage.MatchRecord
	var mode string
	var forfeit int
	var cancelled int
	var durationMillis int64
	var createdAt int64
	if err := scan(
		&record.ID,
		&record.GameID,
		&record.TournamentID,
		&record.Round,
		&mode,
		&record.Player1ID,
		&record.Player2ID,
		&record.WinnerID,
		&record.Player1Score,
		&record.Player2Score,
		&forfeit,
		&cancelled,
		&durationMillis,
		&createdAt,
	); err != nil {
		return storage.MatchRecord{}, err
	}
	record.Mode = storage.Mode(mode)
	record.Forfeit = forfeit != 0
	record.Cancelled = cancelled != 0
	record.Duration = time.Duration(durationMillis) * time.Millisecond
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func scanTournament(scan scanner) (storage.TournamentRecord, error) {
	var record storage.TournamentRecord
	var durationMillis int64
	var createdAt int64
	if err := scan(
		&record.ID,
		&record.TournamentID,
		&record.Name,
		&record.WinnerID,
		&record.MaxPlayers,
		&record.PlayerCount,
		&durationMillis,
		&createdAt,
	); err != nil {
		return storage.TournamentRecord{}, err
	}
	record.Duration = time.Duration(durationMillis) * time.Millisecond
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
