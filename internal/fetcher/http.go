package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"launch-alerts/internal/resilience"
)

const maxBodyBytes = 4 << 20

// getJSON issues a GET and decodes a 200 response into out. A 404 returns
// found=false. 429, 5xx and transport failures are transient; undecodable
// payloads are validation errors.
func getJSON(ctx context.Context, client *http.Client, service, endpoint string, headers map[string]string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, resilience.Transient(service, 0, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, resilience.Transient(service, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, resilience.Transient(service, resp.StatusCode, httpError(resp.StatusCode, payload))
	default:
		return false, fmt.Errorf("%s: %w", service, httpError(resp.StatusCode, payload))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return false, resilience.Invalid(service+" response", "decode: %v", err)
	}
	return true, nil
}

func httpError(status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Errorf("api error (%d)", status)
	}
	return fmt.Errorf("api error (%d): %s", status, body)
}
