package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionEnded is returned once the session cannot be renewed; the
	// token store has been cleared and the user must sign in again.
	ErrSessionEnded = errors.New("client: session ended")
	// ErrNotAuthenticated is returned by calls that need a session when the
	// token store is empty.
	ErrNotAuthenticated = errors.New("client: not authenticated")
	// ErrNoMorePages is returned by Pager.LoadMore at the last page.
	ErrNoMorePages = errors.New("client: no more pages")
	// ErrStale is returned by the pager for a response that was discarded
	// because a newer request has been applied or the query changed.
	ErrStale = errors.New("client: stale response")
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Action    string
	Shortages []Shortage
	// Order is set when checkout was rejected for stock; the rejection is
	// stored under the idempotency key.
	Order *Order
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// CodeOf returns the API error code of err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsInsufficientStock reports a checkout stock rejection and returns the
// itemized shortages.
func IsInsufficientStock(err error) ([]Shortage, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == CodeInsufficientStock {
		return ae.Shortages, true
	}
	return nil, false
}

func accessRejected(err error) bool {
	c := CodeOf(err)
	return c == CodeExpiredAccess || c == CodeInvalidAccess
}

func sessionRejected(err error) bool {
	c := CodeOf(err)
	return c == CodeInvalidSession || c == CodeSessionCompromised
}
