package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var errNoHTTPClient = errors.New("http client not configured")

// StatusError carries a non-2xx upstream answer so callers can relay it.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// rawResponse is a fully read upstream answer.
type rawResponse struct {
	StatusCode int
	Body       []byte
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			// Client-side rejections (4xx other than 429) say nothing about
			// upstream health.
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode != http.StatusTooManyRequests && se.StatusCode < 500
			}
			return err == nil
		},
	})
}

// doRequestWithResilience executes one attempt through the circuit breaker.
// A non-2xx answer comes back as *StatusError; an open breaker as
// ErrCircuitOpen.
func doRequestWithResilience(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (rawResponse, error) {
	if client == nil {
		return rawResponse{}, errNoHTTPClient
	}
	if err := ctx.Err(); err != nil {
		return rawResponse{}, err
	}

	req, err := buildRequest()
	if err != nil {
		return rawResponse{}, err
	}
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read upstream body: %w", readErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
		}
		return rawResponse{StatusCode: resp.StatusCode, Body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return rawResponse{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return rawResponse{}, err
	}

	raw, ok := result.(rawResponse)
	if !ok {
		return rawResponse{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return raw, nil
}
