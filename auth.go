package solark

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Authenticate obtains a bearer token using the configured auth mode. In
// Auto mode the Strict strategy is tried before Legacy; a strategy failing
// with an auth error falls through to the next, while connectivity failures
// propagate immediately (falling back would mask a real outage as "all
// logins failed"). At most one login attempt is in flight at a time.
func (c *Client) Authenticate(ctx context.Context) (bool, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	// A concurrent caller may have refreshed the token while we waited.
	if c.tokenValid() {
		return true, nil
	}

	if c.authMode != AuthModeAuto {
		if err := c.loginWith(ctx, c.authMode); err != nil {
			c.notification.TokenError(err)
			return false, err
		}
		return true, nil
	}

	var failures []string
	for _, mode := range []AuthMode{AuthModeStrict, AuthModeLegacy} {
		err := c.loginWith(ctx, mode)
		if err == nil {
			c.log.Info().Str("mode", string(mode)).Msg("authenticated")
			return true, nil
		}
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			c.notification.TokenError(err)
			return false, err
		}
		c.log.Debug().Str("mode", string(mode)).Err(err).Msg("login strategy failed")
		failures = append(failures, fmt.Sprintf("%s: %v", strings.ToLower(string(mode)), err))
	}
	err := &AuthError{Message: "authentication failed with all modes: " + strings.Join(failures, " | ")}
	c.notification.TokenError(err)
	return false, err
}

func (c *Client) loginWith(ctx context.Context, mode AuthMode) error {
	var payload map[string]string
	if mode == AuthModeStrict {
		payload = map[string]string{
			"email":      c.email,
			"password":   c.password,
			"grant_type": "password",
		}
	} else {
		payload = map[string]string{
			"username": c.email,
			"pwd":      c.password,
		}
	}

	what := fmt.Sprintf("login (%s)", strings.ToLower(string(mode)))
	resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL+loginEndpoint, payload, false, c.loginTimeout, what)
	if err != nil {
		return err
	}

	token, lifetime := extractToken(resp)
	if token == "" {
		if flagFalse(resp, "success") || flagFalse(resp, "Success") {
			return &AuthError{Message: "authentication failed: " + envelopeMessage(resp)}
		}
		return &APIError{Message: "authentication response missing token"}
	}

	c.setToken(token, lifetime)
	c.notification.TokenRefreshed(token)
	return nil
}

// extractToken tolerates the token response shapes seen across firmware and
// endpoint generations: nested under "data" or at the top level, named
// "token" or "access_token". The returned lifetime is zero when the server
// declares none.
func extractToken(resp map[string]any) (string, time.Duration) {
	var lifetime time.Duration
	if data, ok := resp["data"].(map[string]any); ok {
		if secs := safeFloat(data["expires_in"]); secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
		for _, key := range []string{"token", "access_token"} {
			if token, ok := data[key].(string); ok && token != "" {
				return token, lifetime
			}
		}
	}
	for _, key := range []string{"token", "access_token"} {
		if token, ok := resp[key].(string); ok && token != "" {
			if secs := safeFloat(resp["expires_in"]); secs > 0 {
				lifetime = time.Duration(secs) * time.Second
			}
			return token, lifetime
		}
	}
	return "", 0
}

// setToken stores the token and computes its expiry: the server-declared
// lifetime minus a safety margin when available, else the token's own JWT
// exp claim, else a fixed default.
func (c *Client) setToken(token string, lifetime time.Duration) {
	c.Lock()
	defer c.Unlock()

	now := c.now()
	switch {
	case lifetime > 0:
		c.tokenExpires = now.Add(lifetime - tokenSafetyMargin)
	default:
		c.tokenExpires = now.Add(defaultTokenLifetime)
		if jwtExpires, err := GetJWTExpired(token); err == nil && jwtExpires.After(now) {
			c.tokenExpires = jwtExpires.Add(-tokenSafetyMargin)
		}
	}
	c.token = token
}

func flagFalse(resp map[string]any, key string) bool {
	v, ok := resp[key].(bool)
	return ok && !v
}

func envelopeMessage(resp map[string]any) string {
	for _, key := range []string{"message", "Message", "msg", "error"} {
		if s, ok := resp[key].(string); ok && s != "" {
			return s
		}
	}
	return "unknown error"
}
