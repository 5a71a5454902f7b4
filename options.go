package solark

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type OptionFunc func(*Client) error

// WithBaseURL sets the account/login endpoint base.
func WithBaseURL(baseURL string) OptionFunc {
	return func(client *Client) error {
		client.baseURL = trimSlash(baseURL)
		return nil
	}
}

// WithAPIBase sets the device/telemetry API base. Defaults to the base URL.
func WithAPIBase(apiBase string) OptionFunc {
	return func(client *Client) error {
		client.apiBase = trimSlash(apiBase)
		return nil
	}
}

// WithAuthMode selects the login strategy. Defaults to AuthModeAuto.
func WithAuthMode(mode AuthMode) OptionFunc {
	return func(client *Client) error {
		client.authMode = mode
		return nil
	}
}

// WithToken seeds the client with a previously obtained bearer token.
// Treats an empty token as a noop.
func WithToken(rawToken string) OptionFunc {
	return func(client *Client) error {
		if rawToken == "" {
			return nil
		}
		expires := client.now().Add(defaultTokenLifetime)
		if jwtExpires, err := GetJWTExpired(rawToken); err == nil {
			if jwtExpires.Before(client.now()) {
				return fmt.Errorf("token has expired: %v", jwtExpires)
			}
			expires = jwtExpires.Add(-tokenSafetyMargin)
		}
		client.token = rawToken
		client.tokenExpires = expires
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) OptionFunc {
	return func(client *Client) error {
		if httpClient == nil {
			return fmt.Errorf("nil http client")
		}
		client.httpClient = httpClient
		return nil
	}
}

// WithTimeouts overrides the login and fetch timeouts.
func WithTimeouts(login, fetch time.Duration) OptionFunc {
	return func(client *Client) error {
		if login > 0 {
			client.loginTimeout = login
		}
		if fetch > 0 {
			client.fetchTimeout = fetch
		}
		return nil
	}
}

// WithLogger sets the structured logging sink. Defaults to a nop logger.
func WithLogger(log zerolog.Logger) OptionFunc {
	return func(client *Client) error {
		client.log = log
		return nil
	}
}

// WithNotification registers a lifecycle event observer.
func WithNotification(notification Notification) OptionFunc {
	return func(client *Client) error {
		if notification == nil {
			notification = NilNotification
		}
		client.notification = notification
		return nil
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
