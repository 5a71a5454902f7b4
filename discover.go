package solark

import (
	"context"
	"net/http"
	"time"
)

// KnownBaseURLs are the vendor cloud endpoints a plant may be homed on.
var KnownBaseURLs = []string{
	"https://api.solarkcloud.com",
	"https://www.solarkcloud.com",
	"https://pv.inteless.com",
}

// DiscoverBaseURL probes the known vendor endpoints and returns the first
// one that answers. Any HTTP response counts as reachable; only transport
// failures move on to the next candidate.
func DiscoverBaseURL(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, base := range KnownBaseURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", &ConnectionError{Message: "endpoint discovery cancelled", Err: ctx.Err()}
			}
			continue
		}
		_ = resp.Body.Close()
		return base, nil
	}
	return "", &ConnectionError{Message: "no known vendor endpoint reachable"}
}
