package solark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.solarkcloud.com"

	defaultLoginTimeout = 15 * time.Second
	defaultFetchTimeout = 30 * time.Second

	// tokenSafetyMargin is subtracted from the server-declared lifetime so a
	// token is refreshed before it actually lapses.
	tokenSafetyMargin = 60 * time.Second

	// defaultTokenLifetime applies when the server declares no lifetime and
	// the token itself carries no expiry.
	defaultTokenLifetime = 30 * time.Minute
)

const (
	loginEndpoint     = "/rest/account/login"
	plantDataEndpoint = "/rest/plant/getPlantData"
)

// Client talks to the Sol-Ark monitoring cloud. It owns the bearer token and
// its expiry; both are mutated only by successful (re-)authentication.
type Client struct {
	sync.Mutex

	// authMu serializes login attempts: concurrent callers that find an
	// expired token await the in-flight attempt instead of issuing
	// duplicate logins.
	authMu sync.Mutex

	httpClient *http.Client

	baseURL  string
	apiBase  string
	email    string
	password string
	authMode AuthMode

	token        string
	tokenExpires time.Time

	loginTimeout time.Duration
	fetchTimeout time.Duration

	log          zerolog.Logger
	notification Notification

	now func() time.Time
}

// NewClient builds a client for the given account. No network call is made;
// authentication happens lazily on the first fetch or via Authenticate.
func NewClient(email, password string, opts ...OptionFunc) (*Client, error) {
	client := &Client{
		httpClient:   &http.Client{},
		baseURL:      defaultBaseURL,
		email:        email,
		password:     password,
		authMode:     AuthModeAuto,
		loginTimeout: defaultLoginTimeout,
		fetchTimeout: defaultFetchTimeout,
		log:          zerolog.Nop(),
		notification: NilNotification,
		now:          time.Now,
	}

	for _, o := range opts {
		if err := o(client); err != nil {
			return nil, err
		}
	}
	if client.email == "" || client.password == "" {
		return nil, fmt.Errorf("missing email or password")
	}
	if client.baseURL == "" {
		return nil, fmt.Errorf("invalid or missing baseURL")
	}
	if client.apiBase == "" {
		client.apiBase = client.baseURL
	}
	switch client.authMode {
	case AuthModeAuto, AuthModeStrict, AuthModeLegacy:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", client.authMode)
	}
	return client, nil
}

// InvalidateToken drops the cached bearer token, forcing a re-login on the
// next authenticated call.
func (c *Client) InvalidateToken() {
	c.Lock()
	defer c.Unlock()

	c.token = ""
	c.tokenExpires = time.Time{}
}

// Close invalidates the session. The client holds no other resources.
func (c *Client) Close() {
	c.InvalidateToken()
}

// TestConnection authenticates and performs one fetch. Used by hosts to
// validate configuration at setup time.
func (c *Client) TestConnection(ctx context.Context, plantID string) error {
	if _, err := c.Authenticate(ctx); err != nil {
		return err
	}
	_, err := c.Fetch(ctx, plantID)
	return err
}

func (c *Client) tokenValid() bool {
	c.Lock()
	defer c.Unlock()

	return c.token != "" && c.now().Before(c.tokenExpires)
}

func (c *Client) bearer() string {
	c.Lock()
	defer c.Unlock()

	return c.token
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.tokenValid() {
		return nil
	}
	c.log.Debug().Msg("token missing or expired, authenticating")
	_, err := c.Authenticate(ctx)
	return err
}

// doJSON performs one HTTP round trip and decodes the JSON object response.
// Transport failures map to ConnectionError, statuses to the taxonomy in
// errors.go, and undecodable bodies to APIError. A 401 on an authenticated
// call additionally invalidates the cached token.
func (c *Client) doJSON(ctx context.Context, method, url string, payload any, authed bool, timeout time.Duration, what string) (map[string]any, error) {
	var body *bytes.Buffer
	if payload != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", what, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", what, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.bearer()))
	}

	c.log.Debug().Str("method", method).Str("url", url).Msg(what)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Message: fmt.Sprintf("%s: cannot reach %s", what, url), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if statusErr := classifyStatus(resp.StatusCode, what); statusErr != nil {
		if authed && resp.StatusCode == http.StatusUnauthorized {
			c.InvalidateToken()
		}
		return nil, statusErr
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("%s: invalid JSON response", what)}
	}
	return decoded, nil
}

// checkEnvelope validates the application-level response code that vendor
// endpoints wrap their payloads in. Absent and zero codes pass.
func checkEnvelope(resp map[string]any, what string) error {
	code, ok := resp["code"]
	if !ok || code == nil {
		return nil
	}
	switch t := code.(type) {
	case float64:
		if t == 0 {
			return nil
		}
	case string:
		if t == "0" {
			return nil
		}
	}
	msg, _ := resp["msg"].(string)
	if msg == "" {
		msg = "unknown error"
	}
	return &APIError{Message: fmt.Sprintf("%s: %s", what, msg), Code: fmt.Sprintf("%v", code)}
}
