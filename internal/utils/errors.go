package utils

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
)

// recoverableMessages are error prefixes that indicate a transient remote failure.
var recoverableMessages = []string{
	"model API returned status",
	"dial tcp",
	"connection refused",
	"connection reset",
	"i/o timeout",
}

// IsRecoverableError reports whether a failed remote operation is worth retrying.
// Errors may opt in or out by implementing Recoverable() bool.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var classified interface{ Recoverable() bool }
	if errors.As(err, &classified) {
		return classified.Recoverable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	for _, recoverable := range recoverableMessages {
		if strings.HasPrefix(err.Error(), recoverable) {
			return true
		}
	}
	return false
}
