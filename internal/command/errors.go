package command

import (
	"errors"
	"fmt"

	"github.com/greenfelt/cardroom/internal/store"
)

// Kind is the stable machine-readable code attached to every refused
// command
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidAction Kind = "invalid_action"
	KindStoreFailure  Kind = "store_failure"
	KindInternal      Kind = "internal"
)

// Error is a refused command: a kind for machines and a message for
// humans
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from err, defaulting to internal
func KindOf(err error) Kind {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	return KindInternal
}

// storeErr maps a store failure onto the taxonomy: a missing record is
// not_found, anything else is the backing store's fault
func storeErr(err error, what string) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return errf(KindNotFound, "%s not found", what)
	}
	return errf(KindStoreFailure, "%s unavailable", what)
}
