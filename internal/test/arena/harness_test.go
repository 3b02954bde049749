//go:build scenario

package arena

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	server "github.com/louisbranch/volley.zone/internal/services/arena/app"
	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
)

var (
	grantIssuer     = "scenario-issuer"
	grantAudience   = "arena"
	grantKeyOnce    sync.Once
	grantPrivateKey ed25519.PrivateKey
	grantPublicKey  ed25519.PublicKey
)

func scenarioTimeout() time.Duration {
	return 15 * time.Second
}

// pointTimeout bounds how long a script waits for live play to produce a
// point. A rally against a pinned paddle resolves well inside this window.
func pointTimeout() time.Duration {
	return 90 * time.Second
}

func grantKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	grantKeyOnce.Do(func() {
		publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate grant key: %v", err)
		}
		grantPublicKey = publicKey
		grantPrivateKey = privateKey
	})
	return grantPublicKey, grantPrivateKey
}

func startArenaServer(t *testing.T) (string, func()) {
	t.Helper()

	publicKey, _ := grantKeys(t)
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := server.NewServer(server.Config{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "arena.db"),
		Grants: auth.Config{
			Issuer:   grantIssuer,
			Audience: grantAudience,
			Key:      publicKey,
		},
	})
	if err != nil {
		cancel()
		t.Fatalf("new arena server: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	addr := srv.Addr()
	waitForHealth(t, addr)
	stop := func() {
		cancel()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Fatalf("arena server error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for arena server to stop")
		}
		srv.Close()
	}

	return addr, stop
}

func waitForHealth(t *testing.T, addr string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/up", addr)
	backoff := 50 * time.Millisecond
	for {
		response, err := http.Get(url)
		if err == nil {
			response.Body.Close()
			if response.StatusCode == http.StatusOK {
				return
			}
		}

		select {
		case <-ctx.Done():
			if err != nil {
				t.Fatalf("wait for arena health: %v", err)
			}
			t.Fatalf("wait for arena health: %v", ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}

func mintGrant(t *testing.T, userID int64, displayName, locale string) string {
	t.Helper()

	_, privateKey := grantKeys(t)
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":    grantIssuer,
		"aud":    grantAudience,
		"sub":    strconv.FormatInt(userID, 10),
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
		"name":   displayName,
		"locale": locale,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	return signed
}

func repoRoot(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve runtime caller")
	}

	dir := filepath.Dir(filename)
	for {
		candidate := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(candidate); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("go.mod not found from %s", filename)
	return ""
}
