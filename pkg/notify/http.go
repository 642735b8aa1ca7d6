package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/core-tools/hsu-spotbot/pkg/errors"
	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

const (
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultRetryAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond
)

// HTTPOptions tunes the transport shared by the HTTP sinks
type HTTPOptions struct {
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	Client        *http.Client
}

type poster struct {
	client            *http.Client
	attempts          uint
	retryDelay        time.Duration
	// retryServerErrors adds 5xx to the retried responses
	retryServerErrors bool
	logger            logging.Logger
}

func newPoster(options HTTPOptions, retryServerErrors bool, logger logging.Logger) *poster {
	client := options.Client
	if client == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	attempts := options.RetryAttempts
	if attempts == 0 {
		attempts = DefaultRetryAttempts
	}
	retryDelay := options.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &poster{
		client:            client,
		attempts:          attempts,
		retryDelay:        retryDelay,
		retryServerErrors: retryServerErrors,
		logger:            logger,
	}
}

// post sends body to url, retrying transport errors and 429 responses, plus 5xx
// responses when retryServerErrors is set
func (p *poster) post(ctx context.Context, url string, contentType string, body []byte, decorate func(*http.Request)) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(errors.NewValidationError("failed to build request", err))
			}
			req.Header.Set("Content-Type", contentType)
			if decorate != nil {
				decorate(req)
			}

			resp, err := p.client.Do(req)
			if err != nil {
				return errors.NewNetworkError("request failed", err)
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			statusErr := errors.NewNetworkError(fmt.Sprintf("unexpected response status: %s", resp.Status), nil).
				WithContext("status_code", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || (p.retryServerErrors && resp.StatusCode >= 500) {
				return statusErr
			}
			return retry.Unrecoverable(statusErr)
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			p.logger.Debugf("Retrying POST, attempt: %d, error: %v", attempt+1, err)
		}),
	)
}
