// internal/protocol/net_errors.go
package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// netErrorCode maps a socket error to a symbolic code
func netErrorCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, io.EOF):
		return "REMOTE_CLOSED"
	case errors.Is(err, net.ErrClosed):
		return "SOCKET_CLOSED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "CONNECTION_REFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "CONNECTION_RESET"
	case errors.Is(err, syscall.EPIPE):
		return "BROKEN_PIPE"
	case errors.Is(err, syscall.EADDRINUSE):
		return "ADDRESS_IN_USE"
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return "ADDRESS_NOT_AVAILABLE"
	case errors.Is(err, syscall.EACCES):
		return "PERMISSION_DENIED"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return "HOST_UNREACHABLE"
	case errors.Is(err, syscall.EMSGSIZE):
		return "DATAGRAM_TOO_LARGE"
	case errors.As(err, &dnsErr):
		return "HOST_NOT_FOUND"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "TIMEOUT"
	default:
		return "NETWORK_ERROR"
	}
}

// applyWriteDeadline carries a context deadline over to the socket
func applyWriteDeadline(ctx context.Context, conn interface{ SetWriteDeadline(time.Time) error }) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	conn.SetWriteDeadline(deadline)
}
