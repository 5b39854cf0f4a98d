package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches APIErrors with a NOT_FOUND entry and missing
	// repositories or issues.
	ErrNotFound = errors.New("not found")

	// ErrTransport marks network, authentication and protocol failures.
	ErrTransport = errors.New("github transport error")
)

// ErrorTypeNotFound is the GraphQL error type GitHub uses for unknown ids.
const ErrorTypeNotFound = "NOT_FOUND"

// GraphQLError is one entry of the `errors` array of a GraphQL response.
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// APIError carries the structured errors GitHub returned for a request.
type APIError struct {
	Errors []GraphQLError
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		if ge.Type != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", ge.Type, ge.Message))
		} else {
			msgs = append(msgs, ge.Message)
		}
	}
	return "github graphql: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrNotFound) match a NOT_FOUND entry.
func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	for _, ge := range e.Errors {
		if ge.Type == ErrorTypeNotFound {
			return true
		}
	}
	return false
}

// responseSink receives what the GraphQL library does not expose: the HTTP
// status and the typed error list.
type responseSink struct {
	status int
	errors []GraphQLError
}

type sinkKey struct{}

func withSink(ctx context.Context, sink *responseSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// captureTransport buffers each response body, records status and errors in
// the request's sink, and hands an identical body to the GraphQL decoder.
type captureTransport struct {
	next http.RoundTripper
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	sink, ok := req.Context().Value(sinkKey{}).(*responseSink)
	if !ok {
		return res, nil
	}

	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))

	sink.status = res.StatusCode
	var payload struct {
		Errors []GraphQLError `json:"errors"`
	}
	if json.Unmarshal(body, &payload) == nil {
		sink.errors = payload.Errors
	}

	return res, nil
}
