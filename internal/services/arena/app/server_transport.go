package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/volley.zone/internal/platform/timeouts"
	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
)

type wsGrantContextKey struct{}

func (a *arena) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(a.handleWSConn)

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if a.verifier == nil {
			http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
			return
		}

		accessToken := accessTokenFromRequest(r)
		if accessToken == "" {
			log.Printf("arena: websocket unauthorized: missing access token for host=%q remote=%s path=%q", r.Host, r.RemoteAddr, r.URL.Path)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		grant, err := a.verifier.Verify(accessToken)
		if err != nil {
			log.Printf("arena: websocket unauthorized: grant rejected for host=%q remote=%s path=%q err=%v", r.Host, r.RemoteAddr, r.URL.Path, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsGrantContextKey{}, grant)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	mux.HandleFunc("/v1/matches", a.handleListMatches)

	return mux
}

// accessTokenFromRequest extracts the bearer grant from the access_token
// query parameter or the Authorization header. Browser WebSocket clients
// cannot set headers, so the query parameter is the primary path.
func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// wsTransport adapts a websocket connection to the registry's Transport.
// The registry guarantees single-writer access, so the mutex only guards
// Close racing a Send.
type wsTransport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn, encoder: json.NewEncoder(conn)}
}

func (t *wsTransport) Send(frame any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(timeouts.WriteStall)); err != nil {
		return err
	}
	return t.encoder.Encode(frame)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// client is the per-connection view of the authenticated player.
type client struct {
	grant auth.Grant
}

func (c *client) userID() int64 {
	return c.grant.UserID
}

func (a *arena) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	if request == nil {
		return
	}
	grant, ok := request.Context().Value(wsGrantContextKey{}).(auth.Grant)
	if !ok || grant.UserID == 0 {
		return
	}

	farewell := eventFrame(eventSuperseded, "", supersededPayload{
		Message: "another connection signed in for this user",
	})
	connRef, evicted := a.registry.Register(grant.UserID, newWSTransport(conn), farewell)
	if evicted {
		log.Printf("arena: user %d superseded a prior connection", grant.UserID)
	}
	defer func() {
		// A false return means this connection was itself superseded and the
		// user is still online, so their games and registrations stand.
		if a.registry.Unregister(grant.UserID, connRef) {
			a.queue.HandleDisconnect(grant.UserID)
			a.sessions.HandleDisconnect(grant.UserID)
			a.tournaments.HandleDisconnect(grant.UserID)
		}
	}()

	// Upsert before the connected frame so a client that has seen it can rely
	// on its profile being visible to lookups.
	a.upsertProfile(request.Context(), grant)
	a.registry.Unicast(grant.UserID, eventFrame(eventConnected, "", connectedPayload{UserID: grant.UserID}))
	a.sessions.HandleReconnect(grant.UserID)

	c := &client{grant: grant}
	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-connRef.Done():
				return
			default:
			}
			decodeErrors++
			a.writeWireError(c, eventGameError, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			a.writeWireError(c, errorEventFor(frame.Type), frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			a.writeWireError(c, errorEventFor(frame.Type), frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case eventJoinMatchmaking:
			a.handleJoinMatchmakingFrame(c, frame)
		case eventCreatePrivate:
			a.handleCreatePrivateFrame(c, frame)
		case eventJoinPrivate:
			a.handleJoinPrivateFrame(c, frame)
		case eventCreateAI:
			a.handleCreateAIFrame(c, frame)
		case eventMove:
			a.handleMoveFrame(c, frame)
		case eventLeave:
			a.handleLeaveFrame(c, frame)
		case eventInvite:
			a.handleInviteFrame(c, frame)
		case eventTournamentCreate:
			a.handleTournamentCreateFrame(c, frame)
		case eventTournamentJoin:
			a.handleTournamentJoinFrame(c, frame)
		case eventTournamentStart:
			a.handleTournamentStartFrame(c, frame)
		case eventTournamentListActive:
			a.handleTournamentListFrame(c, frame)
		default:
			a.writeWireError(c, errorEventFor(frame.Type), frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (a *arena) upsertProfile(ctx context.Context, grant auth.Grant) {
	if a.profiles == nil {
		return
	}
	err := a.profiles.UpsertProfile(ctx, storageProfile(grant))
	if err != nil {
		log.Printf("arena: upsert profile for user %d: %v", grant.UserID, err)
	}
}
