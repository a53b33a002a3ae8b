package client

import (
	"errors"
	"fmt"

	"github.com/slaclab/acclive/pkg/wire"
)

// Client errors.
var (
	ErrClosed             = errors.New("client context closed")
	ErrNotConnected       = errors.New("pv not connected")
	ErrBlockingInCallback = errors.New("blocking call from callback")
	ErrNotResolved        = errors.New("pv name not resolved")
)

// StatusError is a request the server answered with an error status.
type StatusError struct {
	Name    string
	Op      wire.Operation
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Name, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Name, e.Status)
}

func statusError(name string, op wire.Operation, resp *wire.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{Name: name, Op: op, Status: resp.Status, Message: resp.ErrorMessage()}
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status wire.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
