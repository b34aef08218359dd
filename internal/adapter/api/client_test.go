package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	"github.com/Strob0t/CodePulse/internal/config"
	"github.com/Strob0t/CodePulse/internal/credential"
	"github.com/Strob0t/CodePulse/internal/resilience"
)

func newTestClient(t *testing.T, baseURL string, authEnabled bool) (*api.Client, *credential.Store) {
	t.Helper()
	creds, err := credential.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	client := api.NewClient(
		config.API{BaseURL: baseURL, Timeout: 5 * time.Second},
		config.Auth{Enabled: authEnabled},
		creds,
	)
	return client, creds
}

func TestDoAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)

	// API key only.
	if err := creds.SetAPIKey("cpk_key"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Do(context.Background(), http.MethodGet, "/health", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer cpk_key" {
		t.Fatalf("auth = %q, want api key", gotAuth)
	}

	// Access token outranks the key.
	if err := creds.SetAccess("acc", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Do(context.Background(), http.MethodGet, "/health", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer acc" {
		t.Fatalf("auth = %q, want access token", gotAuth)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, `{"detail":"Task not found"}`, http.StatusNotFound)
		case "/nodb":
			w.WriteHeader(http.StatusNotImplemented)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	ctx := context.Background()

	tests := []struct {
		path string
		want api.Kind
	}{
		{"/missing", api.KindNotFound},
		{"/nodb", api.KindUnavailable},
		{"/teapot", api.KindHTTP},
		{"/forbidden", api.KindAuth},
	}
	for _, tt := range tests {
		_, err := client.Do(ctx, http.MethodGet, tt.path, nil)
		if err == nil {
			t.Fatalf("%s: expected error", tt.path)
		}
		if got := api.KindOf(err); got != tt.want {
			t.Errorf("%s: kind = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNetworkErrorIsDistinctFromHTTPError(t *testing.T) {
	// Point at a closed port.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	_, err := client.Do(context.Background(), http.MethodGet, "/health", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := api.KindOf(err); got != api.KindNetwork {
		t.Fatalf("kind = %q, want network_error", got)
	}
}

func TestInsecureEndpointGuard(t *testing.T) {
	creds, err := credential.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	client := api.NewClient(
		config.API{BaseURL: "http://insecure.example", Timeout: time.Second, RequireTLS: true},
		config.Auth{},
		creds,
	)

	_, err = client.Do(context.Background(), http.MethodGet, "/health", nil)
	if api.KindOf(err) != api.KindNetwork {
		t.Fatalf("expected network_error before any dial, got %v", err)
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	var refreshCalls, taskCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		// Hold the refresh open so every concurrent 401 observer joins it.
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"r2"}`))
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		taskCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"running"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess("stale", "r1", nil); err != nil {
		t.Fatal(err)
	}

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
	// Each request hits the endpoint twice: the 401 and the single retry.
	if got := taskCalls.Load(); got != 2*n {
		t.Errorf("task calls = %d, want %d", got, 2*n)
	}

	cred := creds.Get()
	if cred.AccessToken != "fresh" || cred.RefreshToken != "r2" {
		t.Errorf("credential not rotated: %+v", cred)
	}
}

// expiredToken mints a signed JWT whose exp claim is already in the past.
func expiredToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestProactiveRefreshOnExpiredToken(t *testing.T) {
	var refreshCalls, taskCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"r2"}`))
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		taskCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			t.Errorf("expired token reached the server: %q", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"running"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess(expiredToken(t), "r1", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	// The rotation happened before the request: no 401 round trip was spent.
	if got := taskCalls.Load(); got != 1 {
		t.Fatalf("task calls = %d, want 1 (no reactive retry)", got)
	}
	if cred := creds.Get(); cred.AccessToken != "fresh" {
		t.Errorf("credential not rotated: %+v", cred)
	}
}

func TestOpaqueTokenSkipsProactiveRefresh(t *testing.T) {
	// A non-JWT access token has no readable exp claim; only a real 401 may
	// trigger the refresh.
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"running"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess("opaque-token", "r1", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if refreshCalls.Load() != 0 {
		t.Fatal("refresh must not run for a token without an exp claim")
	}
}

func TestRefreshFailureClearsCredentialAndBoundsRetry(t *testing.T) {
	var taskCalls, refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		taskCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess("stale", "r1", nil); err != nil {
		t.Fatal(err)
	}

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
	if api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected auth_error, got %v", err)
	}

	if got := taskCalls.Load(); got != 1 {
		t.Errorf("task calls = %d, want 1 (no retry after failed refresh)", got)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}

	cred := creds.Get()
	if cred.AccessToken != "" || cred.RefreshToken != "" {
		t.Errorf("credential should be cleared, got %+v", cred)
	}

	// The next 401 finds no refresh token: no second refresh attempt.
	_, _ = client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls after clear = %d, want still 1", got)
	}
}

func TestRetryAfterRefreshHappensOnce(t *testing.T) {
	// Adversarial server: always 401, refresh always "succeeds".
	var taskCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		taskCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess("stale", "r1", nil); err != nil {
		t.Fatal(err)
	}

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
	if api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected auth_error, got %v", err)
	}
	if got := taskCalls.Load(); got != 2 {
		t.Fatalf("task calls = %d, want exactly 2 (original + one retry)", got)
	}
}

func TestNoRefreshWhenAuthDisabled(t *testing.T) {
	var refreshCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, false)
	if err := creds.SetAccess("stale", "r1", nil); err != nil {
		t.Fatal(err)
	}

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
	if api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected auth_error, got %v", err)
	}
	if refreshCalls.Load() != 0 {
		t.Fatal("refresh must not run with auth disabled")
	}
}

func TestNoRefreshWhenAPIKeyWasUsed(t *testing.T) {
	// A static key failing with 401 is not refresh-meaningful: refreshing
	// would not change what the next request sends.
	var refreshCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("GET /api/tasks/t1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAPIKey("cpk_bad"); err != nil {
		t.Fatal(err)
	}
	if err := creds.SetAccess("", "r1", nil); err != nil {
		t.Fatal(err)
	}

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tasks/t1", nil)
	if api.KindOf(err) != api.KindAuth {
		t.Fatalf("expected auth_error, got %v", err)
	}
	if refreshCalls.Load() != 0 {
		t.Fatal("refresh must not run for a failed static key")
	}
}

func TestBreakerRejectsAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // every call is a connection failure

	client, _ := newTestClient(t, srv.URL, false)
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	ctx := context.Background()
	_, _ = client.Do(ctx, http.MethodGet, "/health", nil)
	_, _ = client.Do(ctx, http.MethodGet, "/health", nil)

	_, err := client.Do(ctx, http.MethodGet, "/health", nil)
	if api.KindOf(err) != api.KindNetwork {
		t.Fatalf("expected normalized network_error from open breaker, got %v", err)
	}
}

func TestLoginStoresCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"access_token":"acc","refresh_token":"ref","user":{"id":"u1","email":"dev@example.com"}}`))
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	u, err := client.Login(context.Background(), "dev@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Email != "dev@example.com" {
		t.Errorf("user = %+v", u)
	}

	cred := creds.Get()
	if cred.AccessToken != "acc" || cred.RefreshToken != "ref" {
		t.Errorf("credential = %+v", cred)
	}
}

func TestLogoutClearsEvenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL, true)
	if err := creds.SetAccess("acc", "ref", nil); err != nil {
		t.Fatal(err)
	}

	if err := client.Logout(context.Background()); err == nil {
		t.Fatal("expected server error to propagate")
	}
	if cred := creds.Get(); cred.AccessToken != "" || cred.RefreshToken != "" {
		t.Fatalf("credential survived logout: %+v", cred)
	}
}
