package solark_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solark "github.com/bbyrd74/go-solark"
)

var (
	mux    *http.ServeMux
	server *httptest.Server
	client *solark.Client
)

func setup(t *testing.T, opts ...solark.OptionFunc) func() {
	t.Helper()

	mux = http.NewServeMux()
	server = httptest.NewServer(mux)

	var err error
	client, err = solark.NewClient("foo@example.com", "secret",
		append([]solark.OptionFunc{
			solark.WithBaseURL(server.URL),
			solark.WithAPIBase(server.URL),
		}, opts...)...)
	require.NoError(t, err)

	return func() {
		server.Close()
	}
}

// decodeLogin reads the login payload and reports which strategy sent it.
func decodeLogin(r *http.Request) (map[string]string, bool) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body, body["grant_type"] == "password"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientValidation(t *testing.T) {
	_, err := solark.NewClient("", "secret")
	assert.Error(t, err)

	_, err = solark.NewClient("foo@example.com", "")
	assert.Error(t, err)

	_, err = solark.NewClient("foo@example.com", "secret", solark.WithAuthMode("Bogus"))
	assert.Error(t, err)

	_, err = solark.NewClient("foo@example.com", "secret", solark.WithBaseURL(""))
	assert.Error(t, err)
}

func TestAuthenticateAutoFallsBackToLegacy(t *testing.T) {
	teardown := setup(t)
	defer teardown()

	var logins int32
	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		body, strict := decodeLogin(r)
		if strict {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if body["username"] == "foo@example.com" && body["pwd"] == "secret" {
			writeJSON(w, map[string]any{"token": "legacy-token"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/plant/p1/inverters", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer legacy-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"infos": []any{}}})
	})

	ok, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&logins))

	// The Legacy-derived token is the one used for authenticated calls.
	_, err = client.Fetch(context.Background(), "p1")
	assert.NoError(t, err)
}

func TestAuthenticateAutoStopsOnConnectionError(t *testing.T) {
	teardown := setup(t)
	defer teardown()

	var logins int32
	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Authenticate(context.Background())
	var connErr *solark.ConnectionError
	require.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
	// Legacy must not be attempted: a connectivity failure is
	// environment-level, not credential-level.
	assert.EqualValues(t, 1, atomic.LoadInt32(&logins))
}

func TestAuthenticateAutoAggregatesFailures(t *testing.T) {
	teardown := setup(t)
	defer teardown()

	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	ok, err := client.Authenticate(context.Background())
	assert.False(t, ok)
	var authErr *solark.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Message, "strict")
	assert.Contains(t, authErr.Message, "legacy")
}

func TestAuthenticateRateLimit(t *testing.T) {
	teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
	defer teardown()

	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Authenticate(context.Background())
	var rlErr *solark.RateLimitError
	assert.True(t, errors.As(err, &rlErr), "expected RateLimitError, got %v", err)
}

func TestAuthenticateTokenShapes(t *testing.T) {
	shapes := []map[string]any{
		{"data": map[string]any{"token": "tok"}},
		{"data": map[string]any{"access_token": "tok"}},
		{"token": "tok"},
		{"access_token": "tok"},
	}
	for i, shape := range shapes {
		shape := shape
		t.Run(fmt.Sprintf("shape_%d", i), func(t *testing.T) {
			teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
			defer teardown()

			mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, shape)
			})

			ok, err := client.Authenticate(context.Background())
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestAuthenticateSuccessFalseMessage(t *testing.T) {
	teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
	defer teardown()

	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": false, "msg": "account locked"})
	})

	_, err := client.Authenticate(context.Background())
	var authErr *solark.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Message, "account locked")
}

func TestAuthenticateMissingToken(t *testing.T) {
	teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
	defer teardown()

	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{}})
	})

	_, err := client.Authenticate(context.Background())
	var apiErr *solark.APIError
	assert.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
}

func TestAuthenticateSingleFlight(t *testing.T) {
	teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
	defer teardown()

	var logins int32
	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, map[string]any{"data": map[string]any{"token": "tok", "expires_in": 3600}})
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := client.Authenticate(context.Background())
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	// The second caller awaits the in-flight attempt and reuses its token.
	assert.EqualValues(t, 1, atomic.LoadInt32(&logins))
}

func TestSeededTokenSkipsLogin(t *testing.T) {
	teardown := setup(t, solark.WithToken("opaque-token"))
	defer teardown()

	// No login handler is registered: an unexpected login attempt fails the
	// fetch below.
	mux.HandleFunc("/api/v1/plant/p1/inverters", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"infos": []any{}}})
	})

	_, err := client.Fetch(context.Background(), "p1")
	assert.NoError(t, err)
}

func TestTestConnection(t *testing.T) {
	teardown := setup(t, solark.WithAuthMode(solark.AuthModeStrict))
	defer teardown()

	mux.HandleFunc("/rest/account/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"token": "tok"})
	})
	mux.HandleFunc("/api/v1/plant/p1/inverters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"infos": []any{}}})
	})

	assert.NoError(t, client.TestConnection(context.Background(), "p1"))
}

func TestDiscoverBaseURL(t *testing.T) {
	reachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer reachable.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	saved := solark.KnownBaseURLs
	solark.KnownBaseURLs = []string{deadURL, reachable.URL}
	defer func() { solark.KnownBaseURLs = saved }()

	base, err := solark.DiscoverBaseURL(context.Background())
	require.NoError(t, err)
	// Any HTTP response counts as reachable, even a 404.
	assert.Equal(t, reachable.URL, base)
}
