package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/volley.zone/internal/platform/timeouts"
	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/lobby"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/session"
	"github.com/louisbranch/volley.zone/internal/services/arena/domain/tournament"
	"github.com/louisbranch/volley.zone/internal/services/arena/registry"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage/sqlite"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxTournamentNameRunes = 80

	defaultMatchPageSize = 50
	maxMatchPageSize     = 200
	// matchScanLimit bounds how many stored matches a filtered listing reads
	// before giving up on filling the page.
	matchScanLimit = 1000
)

// TokenVerifier authenticates the access grant presented at upgrade.
type TokenVerifier interface {
	Verify(token string) (auth.Grant, error)
}

// Config defines the inputs for the arena transport boundary.
type Config struct {
	HTTPAddr          string
	DBPath            string
	Grants            auth.Config
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the arena HTTP/WebSocket process.
type Server struct {
	listener        net.Listener
	shutdownTimeout time.Duration
	httpServer      *http.Server
	arena           *arena
	store           *sqlite.Store
}

// arena bundles the live state behind the handler: the connection registry,
// the game and tournament managers, and the persistence sinks.
type arena struct {
	verifier    TokenVerifier
	registry    *registry.Registry
	sessions    *session.Manager
	queue       *lobby.Queue
	tournaments *tournament.Manager
	profiles    storage.ProfileStore
	matches     storage.MatchStore
}

// newArena wires the domain managers to the registry and the stores. Nil
// stores disable persistence without disabling play.
func newArena(verifier TokenVerifier, matches storage.MatchStore, tournamentStore storage.TournamentStore, profiles storage.ProfileStore) *arena {
	reg := registry.New()
	sink := &resultsSink{matches: matches, tournaments: tournamentStore}
	sessions := session.NewManager(&sessionEvents{registry: reg}, sink.recordMatch)
	queue := lobby.NewQueue(sessions)
	tournaments := tournament.NewManager(sessions, &tournamentEvents{registry: reg, profiles: profiles, sink: sink})
	return &arena{
		verifier:    verifier,
		registry:    reg,
		sessions:    sessions,
		queue:       queue,
		tournaments: tournaments,
		profiles:    profiles,
		matches:     matches,
	}
}

// close stops every running session and drops all live connections.
func (a *arena) close() {
	a.sessions.Shutdown()
	a.registry.CloseAll()
}

// NewServer builds a configured arena server and binds its listen address.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if len(config.Grants.Key) != ed25519.PublicKeySize {
		return nil, errors.New("grant public key is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}

	var store *sqlite.Store
	var matches storage.MatchStore
	var tournaments storage.TournamentStore
	var profiles storage.ProfileStore
	if dbPath := strings.TrimSpace(config.DBPath); dbPath != "" {
		opened, err := sqlite.Open(dbPath)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("open arena store: %w", err)
		}
		store = opened
		matches = opened
		tournaments = opened
		profiles = opened
	} else {
		log.Printf("arena: no database path configured, results and profiles will not persist")
	}

	a := newArena(auth.NewGrantVerifier(config.Grants), matches, tournaments, profiles)
	httpServer := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		listener:        listener,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		arena:           a,
		store:           store,
	}, nil
}

// Addr reports the bound listen address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an arena server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init arena server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve arena: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("arena server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("arena server listening on %s", s.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.arena.close()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close arena store: %v", err)
		}
	}
}
