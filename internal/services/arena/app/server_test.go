package server

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
	"github.com/louisbranch/volley.zone/internal/services/arena/storage"
)

func TestNewServerValidation(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	if _, err := NewServer(Config{Grants: auth.Config{Key: publicKey}}); err == nil {
		t.Fatal("expected error for missing http address")
	}
	if _, err := NewServer(Config{HTTPAddr: ":0"}); err == nil {
		t.Fatal("expected error for missing grant key")
	}

	server, err := NewServer(Config{HTTPAddr: ":0", Grants: auth.Config{Issuer: "auth", Audience: "arena", Key: publicKey}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer server.Close()
	if server.httpServer.ReadHeaderTimeout <= 0 {
		t.Fatal("read header timeout not defaulted")
	}
	if server.shutdownTimeout <= 0 {
		t.Fatal("shutdown timeout not defaulted")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, Config{
			HTTPAddr: "127.0.0.1:0",
			DBPath:   filepath.Join(t.TempDir(), "arena.db"),
			Grants:   auth.Config{Issuer: "auth", Audience: "arena", Key: publicKey},
		})
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func signGrant(t *testing.T, key ed25519.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	return signed
}

func TestSignedGrantsAdmitPlayers(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	a := newArena(auth.NewGrantVerifier(auth.Config{
		Issuer:   "volley-auth",
		Audience: "arena",
		Key:      publicKey,
	}), nil, nil, nil)
	t.Cleanup(a.close)
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	token := signGrant(t, privateKey, jwt.MapClaims{
		"iss":    "volley-auth",
		"aud":    "arena",
		"sub":    "42",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"name":   "Ada",
		"locale": "en-US",
	})

	conn, err := dialArenaErr(srv, token)
	if err != nil {
		t.Fatalf("dial with signed grant: %v", err)
	}
	defer conn.Close()

	got := readFrame(t, conn)
	if got.Type != eventConnected || !strings.Contains(string(got.Payload), `"userId":42`) {
		t.Fatalf("first frame = %+v, want connected for user 42", got)
	}
}

func TestSignedGrantViaAuthorizationHeader(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	a := newArena(auth.NewGrantVerifier(auth.Config{
		Issuer:   "volley-auth",
		Audience: "arena",
		Key:      publicKey,
	}), nil, nil, nil)
	t.Cleanup(a.close)
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	token := signGrant(t, privateKey, jwt.MapClaims{
		"iss": "volley-auth",
		"aud": "arena",
		"sub": "7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	config, err := websocket.NewConfig(wsURL, srv.URL)
	if err != nil {
		t.Fatalf("websocket config: %v", err)
	}
	config.Header = http.Header{"Authorization": {"Bearer " + token}}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	defer conn.Close()

	got := readFrame(t, conn)
	if got.Type != eventConnected || !strings.Contains(string(got.Payload), `"userId":7`) {
		t.Fatalf("first frame = %+v, want connected for user 7", got)
	}
}

func TestRejectedGrants(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate second key: %v", err)
	}

	a := newArena(auth.NewGrantVerifier(auth.Config{
		Issuer:   "volley-auth",
		Audience: "arena",
		Key:      publicKey,
	}), nil, nil, nil)
	t.Cleanup(a.close)
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	base := jwt.MapClaims{
		"iss": "volley-auth",
		"aud": "arena",
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	cases := []struct {
		name  string
		token string
	}{
		{"expired", signGrant(t, privateKey, jwt.MapClaims{
			"iss": "volley-auth", "aud": "arena", "sub": "42",
			"exp": time.Now().Add(-time.Minute).Unix(),
		})},
		{"wrong audience", signGrant(t, privateKey, jwt.MapClaims{
			"iss": "volley-auth", "aud": "billing", "sub": "42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"wrong issuer", signGrant(t, privateKey, jwt.MapClaims{
			"iss": "someone-else", "aud": "arena", "sub": "42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"wrong key", signGrant(t, otherKey, base)},
		{"garbage", "not-a-token"},
	}
	for _, tc := range cases {
		if _, err := dialArenaErr(srv, tc.token); err == nil {
			t.Fatalf("%s: expected dial to fail", tc.name)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestArena(t, testBackends{})

	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("GET /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "OK" {
		t.Fatalf("body = %q, want OK", string(body))
	}
}

func seedMatchStore(t *testing.T, matches *fakeMatchStore) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []storage.MatchRecord{
		{
			ID: "01AAAAAAAAAAAAAAAAAAAAAAAA", GameID: 11, Mode: storage.ModeMatchmade,
			Player1ID: 1, Player2ID: 2, WinnerID: 1, Player1Score: 5, Player2Score: 3,
			Duration: 90 * time.Second, CreatedAt: base,
		},
		{
			ID: "01BBBBBBBBBBBBBBBBBBBBBBBB", GameID: 12, Mode: storage.ModeAI,
			Player1ID: 1, WinnerID: 1, Player1Score: 5, Player2Score: 1,
			Duration: 48 * time.Second, CreatedAt: base.Add(time.Minute),
		},
		{
			ID: "01CCCCCCCCCCCCCCCCCCCCCCCC", GameID: 13, Mode: storage.ModeTournament,
			TournamentID: 4, Round: 1, Player1ID: 2, Player2ID: 3, WinnerID: 3,
			Player1Score: 0, Player2Score: 0, Forfeit: true, Cancelled: true,
			Duration: 12 * time.Second, CreatedAt: base.Add(2 * time.Minute),
		},
	}
	for _, record := range records {
		if err := matches.PutMatch(context.Background(), record); err != nil {
			t.Fatalf("seed match: %v", err)
		}
	}
}

func getMatches(t *testing.T, srv *httptest.Server, query string) (int, []matchView) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/v1/matches" + query)
	if err != nil {
		t.Fatalf("GET /v1/matches%s: %v", query, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var payload struct {
		Matches []matchView `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode match list: %v", err)
	}
	return resp.StatusCode, payload.Matches
}

func TestListMatches(t *testing.T) {
	matches := &fakeMatchStore{}
	seedMatchStore(t, matches)
	_, srv := newTestArena(t, testBackends{matches: matches})

	status, listed := getMatches(t, srv, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d matches, want 3", len(listed))
	}
	// Newest first.
	if listed[0].GameID != 13 || listed[2].GameID != 11 {
		t.Fatalf("order = %d,%d,%d, want 13,12,11", listed[0].GameID, listed[1].GameID, listed[2].GameID)
	}
	if listed[2].DurationMs != 90000 {
		t.Fatalf("durationMs = %d, want 90000", listed[2].DurationMs)
	}
	if listed[2].CreatedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("createdAt = %q", listed[2].CreatedAt)
	}
	if !listed[0].Forfeit || !listed[0].Cancelled || listed[0].TournamentID != 4 {
		t.Fatalf("tournament record view = %+v", listed[0])
	}
}

func TestListMatchesLimit(t *testing.T) {
	matches := &fakeMatchStore{}
	seedMatchStore(t, matches)
	_, srv := newTestArena(t, testBackends{matches: matches})

	status, listed := getMatches(t, srv, "?limit=1")
	if status != http.StatusOK || len(listed) != 1 || listed[0].GameID != 13 {
		t.Fatalf("limit=1 gave status %d, %+v", status, listed)
	}

	for _, bad := range []string{"?limit=0", "?limit=-3", "?limit=abc"} {
		if status, _ := getMatches(t, srv, bad); status != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", bad, status)
		}
	}
}

func TestListMatchesFilter(t *testing.T) {
	matches := &fakeMatchStore{}
	seedMatchStore(t, matches)
	_, srv := newTestArena(t, testBackends{matches: matches})

	query := "?" + url.Values{"filter": {`mode = "ai"`}}.Encode()
	status, listed := getMatches(t, srv, query)
	if status != http.StatusOK || len(listed) != 1 || listed[0].GameID != 12 {
		t.Fatalf("mode filter gave status %d, %+v", status, listed)
	}

	query = "?" + url.Values{"filter": {`winner_id = 1`}}.Encode()
	status, listed = getMatches(t, srv, query)
	if status != http.StatusOK || len(listed) != 2 {
		t.Fatalf("winner filter gave status %d, %+v", status, listed)
	}

	query = "?" + url.Values{"filter": {`mode = "private"`}}.Encode()
	status, listed = getMatches(t, srv, query)
	if status != http.StatusOK || len(listed) != 0 {
		t.Fatalf("empty filter result gave status %d, %+v", status, listed)
	}

	query = "?" + url.Values{"filter": {`mode = `}}.Encode()
	if status, _ := getMatches(t, srv, query); status != http.StatusBadRequest {
		t.Fatalf("broken filter status = %d, want 400", status)
	}

	query = "?" + url.Values{"filter": {`stadium = "north"`}}.Encode()
	if status, _ := getMatches(t, srv, query); status != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", status)
	}
}

func TestListMatchesMethodAndAvailability(t *testing.T) {
	matches := &fakeMatchStore{}
	_, srv := newTestArena(t, testBackends{matches: matches})

	resp, err := http.Post(srv.URL+"/v1/matches", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /v1/matches: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("Allow = %q, want GET", allow)
	}

	_, bare := newTestArena(t, testBackends{})
	if status, _ := getMatches(t, bare, ""); status != http.StatusServiceUnavailable {
		t.Fatalf("no-store status = %d, want 503", status)
	}
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	_, srv := newTestArena(t, testBackends{})

	resp, err := http.Post(srv.URL+"/ws", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("Allow = %q, want GET", allow)
	}
}
