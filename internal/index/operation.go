package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mooring-labs/searchlink/internal/logger"
	"github.com/mooring-labs/searchlink/internal/telemetry"
)

// operationState is the decoded status of a long-running operation. The wire
// string is parsed once per poll response; everything downstream switches on
// this type.
type operationState int

const (
	operationPending operationState = iota
	operationSucceeded
	operationFailed
)

func (s operationState) String() string {
	switch s {
	case operationPending:
		return "pending"
	case operationSucceeded:
		return "succeeded"
	case operationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// parseOperationState decodes the status field of a poll response body.
func parseOperationState(body []byte) (operationState, error) {
	raw := gjson.GetBytes(body, "status").String()
	switch strings.ToLower(raw) {
	case "inprogress", "in-progress":
		return operationPending, nil
	case "succeeded":
		return operationSucceeded, nil
	case "failed":
		return operationFailed, nil
	default:
		return 0, fmt.Errorf("unrecognized operation status %q", raw)
	}
}

// operationTransport converts long-running index operations into synchronous
// calls at the transport layer. A schema mutation whose response is 202 with
// an operation locator is polled to a terminal state before the caller sees
// anything; a status poll issued by a caller directly is driven to a
// terminal state the same way. Callers never observe an in-progress
// response.
type operationTransport struct {
	next         http.RoundTripper
	pollInterval time.Duration
	pollDeadline time.Duration
	metrics      *telemetry.OperationMetrics
}

func newOperationTransport(next http.RoundTripper, pollInterval, pollDeadline time.Duration, metrics *telemetry.OperationMetrics) *operationTransport {
	return &operationTransport{
		next:         next,
		pollInterval: pollInterval,
		pollDeadline: pollDeadline,
		metrics:      metrics,
	}
}

func (t *operationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isOperationPoll(req) {
		return t.pollUntilDone(req.Context(), req.URL, req.Header, false)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil || !isSchemaMutation(req) {
		return resp, err
	}
	if resp.StatusCode != http.StatusAccepted {
		return resp, nil
	}

	location, ok := operationLocation(req, resp)
	if !ok {
		return resp, nil
	}
	drainBody(resp)

	logger.Debugf("Schema mutation accepted, polling operation at %s", location)
	return t.pollUntilDone(req.Context(), location, req.Header, true)
}

// pollUntilDone polls the operation at location until it reaches a terminal
// state or the deadline expires. The deadline is checked at the top of each
// iteration, so once it has passed no further request is issued. Implemented
// as a loop so long polls do not grow the call stack.
func (t *operationTransport) pollUntilDone(ctx context.Context, location *url.URL, header http.Header, waitFirst bool) (*http.Response, error) {
	start := time.Now()
	polls := 0

	// Polls inherit the originating request's headers, minus the ones
	// describing a body the status GET does not carry.
	pollHeader := header.Clone()
	if pollHeader == nil {
		pollHeader = http.Header{}
	}
	pollHeader.Del("Content-Type")
	pollHeader.Del("Content-Length")

	if waitFirst {
		if err := t.waitInterval(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if time.Since(start) > t.pollDeadline {
			t.metrics.RecordOperationDuration(ctx, time.Since(start), "timeout")
			return nil, fmt.Errorf("%w: operation %s not terminal after %s (%d polls)", ErrOperationTimeout, location, t.pollDeadline, polls)
		}

		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build operation poll request: %w", err)
		}
		pollReq.Header = pollHeader.Clone()
		resp, err := t.next.RoundTrip(pollReq)
		if err != nil {
			return nil, err
		}
		polls++

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			// Hand the response back untouched so the caller's normal error
			// handling applies. No retry is layered on top of polling.
			return resp, nil
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read operation status from %s: %w", location, err)
		}

		state, err := parseOperationState(body)
		if err != nil {
			return nil, err
		}
		t.metrics.RecordPoll(ctx, state.String())

		switch state {
		case operationSucceeded:
			elapsed := time.Since(start)
			t.metrics.RecordOperationDuration(ctx, elapsed, "succeeded")
			logger.Debugf("Operation %s succeeded after %s (%d polls)", location, elapsed.Round(time.Millisecond), polls)
			resp.Body = io.NopCloser(bytes.NewReader(body))
			resp.ContentLength = int64(len(body))
			return resp, nil
		case operationFailed:
			t.metrics.RecordOperationDuration(ctx, time.Since(start), "failed")
			return nil, &OperationError{
				Code:    gjson.GetBytes(body, "error.code").String(),
				Message: gjson.GetBytes(body, "error.message").String(),
			}
		}

		logger.Debugf("Operation %s in progress, next poll in %s", location, t.pollInterval)
		if err := t.waitInterval(ctx); err != nil {
			return nil, err
		}
	}
}

func (t *operationTransport) waitInterval(ctx context.Context) error {
	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isSchemaMutation reports whether req is a schema registration, the one
// request shape that may start a long-running operation.
func isSchemaMutation(req *http.Request) bool {
	if req.Method != http.MethodPost && req.Method != http.MethodPatch {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(req.URL.Path, "/"), "/schema")
}

// isOperationPoll reports whether req asks for the status of an operation.
func isOperationPoll(req *http.Request) bool {
	return req.Method == http.MethodGet && strings.Contains(req.URL.Path, "/operations/")
}

// operationLocation extracts the operation URL from an accepted response,
// resolving it against the request URL when relative.
func operationLocation(req *http.Request, resp *http.Response) (*url.URL, bool) {
	raw := resp.Header.Get("Location")
	if raw == "" {
		raw = resp.Header.Get("Operation-Location")
	}
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return req.URL.ResolveReference(u), true
}

func drainBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
