package ws

import (
	"errors"
	"net/http"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// Stable error codes shared by HTTP error bodies and stream error frames.
const (
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeInvalidState    = "invalid_state"
	CodeCancelled       = "cancelled"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"

	CodeMethodNotAllowed = "method_not_allowed"
)

var errMethodNotAllowed = errors.New("method not allowed")

func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, session.ErrInvalidArgument):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, session.ErrCancelled):
		return http.StatusServiceUnavailable, CodeCancelled
	case errors.Is(err, broadcast.ErrSlowConsumer):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed, CodeMethodNotAllowed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// KindForCode maps a wire error code back to the session error kind it was
// produced from. Unknown codes map to nil.
func KindForCode(code string) error {
	switch code {
	case CodeNotFound:
		return session.ErrNotFound
	case CodeInvalidArgument:
		return session.ErrInvalidArgument
	case CodeInvalidState:
		return session.ErrInvalidState
	case CodeCancelled:
		return session.ErrCancelled
	case CodeUnavailable:
		return broadcast.ErrSlowConsumer
	default:
		return nil
	}
}
