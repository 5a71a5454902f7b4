package solark

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultPollInterval = 120 * time.Second
	MinPollInterval     = 30 * time.Second
	MaxPollInterval     = 3600 * time.Second
)

// Poller invokes fetch-and-normalize on a fixed cadence and publishes each
// canonical reading through the client's Notification. At most one cycle is
// in flight at a time.
type Poller struct {
	client   *Client
	plantID  string
	interval time.Duration

	cycleMu sync.Mutex
}

// NewPoller builds a poller for one plant. The interval is clamped to the
// supported 30s-3600s range; zero selects the default cadence.
func NewPoller(client *Client, plantID string, interval time.Duration) *Poller {
	switch {
	case interval == 0:
		interval = DefaultPollInterval
	case interval < MinPollInterval:
		interval = MinPollInterval
	case interval > MaxPollInterval:
		interval = MaxPollInterval
	}
	return &Poller{
		client:   client,
		plantID:  plantID,
		interval: interval,
	}
}

// Interval reports the effective polling cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run performs an immediate first refresh, then polls until the context is
// cancelled. Transient failures (connection, rate limit, API errors) are
// reported through the Notification and retried on the next tick. A non-nil
// error is returned only when the context ends or authentication fails
// beyond the single re-auth retry, which requires host reconfiguration.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Poller) refresh(ctx context.Context) error {
	_, err := p.Cycle(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	p.client.log.Warn().Str("plant", p.plantID).Err(err).Msg("update failed")
	p.client.notification.CycleError(err)
	return nil
}

// Cycle runs one fetch-and-normalize pass. On token expiry it attempts
// exactly one re-authentication before retrying the fetch; an auth failure
// past that point is surfaced as-is.
func (p *Poller) Cycle(ctx context.Context) (Reading, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	raw, err := p.client.Fetch(ctx, p.plantID)
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			return nil, err
		}
		if _, err := p.client.Authenticate(ctx); err != nil {
			return nil, err
		}
		raw, err = p.client.Fetch(ctx, p.plantID)
		if err != nil {
			return nil, err
		}
	}

	reading := Normalize(raw)
	p.client.notification.ReadingPublished(reading)
	return reading, nil
}
