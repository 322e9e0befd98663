package pipeline

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

var networkSignatures = []string{
	"timeout",
	"timed out",
	"etimedout",
	"econnreset",
	"econnrefused",
	"connection reset",
	"connection refused",
	"socket hang up",
	"network",
}

// IsNetworkError reports whether err looks like a transient network failure worth an
// immediate retry of the page fetch.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range networkSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
