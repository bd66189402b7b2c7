package models

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the core. Controllers map these to HTTP
// statuses; callers test them with errors.Is.
var (
	// ErrNotFound means a referenced node, user or permission row does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means authorization failed. It carries no
	// detail about which grant was missing.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidMove means a move would place a node inside its own
	// subtree. Rejected before any remote call.
	ErrInvalidMove = errors.New("cannot move a node into its own subtree")
)

// RemoteError wraps a failure from the remote storage gateway. Transient
// errors (network, timeout, throttling, 5xx) are safe for the caller to
// retry; permanent errors (quota, not-found, conflict) are not.
type RemoteError struct {
	Op        string
	Code      string
	Transient bool
	Err       error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s: %s", e.Op, e.Code)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteTransient reports whether err is a retryable gateway failure.
func IsRemoteTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// SyncItemError records a single delta item that failed to apply during a
// sync pass. It is logged and skipped, never aborting the page.
type SyncItemError struct {
	RemoteID string
	Err      error
}

func (e *SyncItemError) Error() string {
	return fmt.Sprintf("sync item %s: %v", e.RemoteID, e.Err)
}

func (e *SyncItemError) Unwrap() error {
	return e.Err
}
