package source

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/chatloop/core/telegram/netutil"
)

const (
	dialTimeout       = 5 * time.Second
	tlsHandshake      = 5 * time.Second
	idleConnTimeout   = 90 * time.Second
	keepAliveInterval = 30 * time.Second
	retryAttempts     = 2
	retryBackoff      = time.Second
)

// requestSlack is added to the long poll timeout for the client deadline.
const requestSlack = 15 * time.Second

// NewHTTPClient returns a client for the Bot API whose deadline outlives a
// getUpdates call held open for pollTimeout.
func NewHTTPClient(pollTimeout time.Duration) *http.Client {
	if pollTimeout <= 0 {
		pollTimeout = DefaultLongPollTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   pollTimeout + requestSlack,
		Transport: &retryTransport{base: transport, retries: retryAttempts, backoff: retryBackoff},
	}
}

// retryTransport repeats requests that provably never reached Telegram.
// Anything else is left to the caller, which knows whether the call is safe
// to repeat. Requests whose body cannot be replayed are tried once.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	replayable := req.Body == nil || req.GetBody != nil

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && replayable && netutil.NotDelivered(err); attempt++ {
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			next.Body = body
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}
