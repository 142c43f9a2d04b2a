package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/l7mp/dflow/pkg/auth"
	"github.com/l7mp/dflow/pkg/dataflow"
)

var (
	// ErrUnknownPath is returned for a path that serves no view.
	ErrUnknownPath = errors.New("unknown path")
	// ErrRateLimited is returned for envelopes exceeding the message rate of a session.
	ErrRateLimited = errors.New("rate limit exceeded")
)

type ErrPath = error

func NewUnknownPathError(path string) ErrPath {
	return fmt.Errorf("%w %q", ErrUnknownPath, path)
}

// ErrorFrame is sent to a WebSocket client when a request fails. The session stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPath), errors.Is(err, dataflow.ErrUnknownLeaf):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, dataflow.ErrUnknownRoot), errors.Is(err, dataflow.ErrRowShapeMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
