package wire

import (
	"errors"
	"fmt"
	"net"
)

// ParseError reports structural corruption in a response envelope. It is
// never retryable: it indicates a client/server contract mismatch.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: parse error at offset %d: %s", e.Offset, e.Message)
}

// ProviderError is an application-level rejection reported inside a
// well-formed envelope, carrying the provider's numeric code and text.
type ProviderError struct {
	Code int
	Text string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wire: provider rejected request: %d %s", e.Code, e.Text)
}

// Retryable reports whether the provider signalled a server-side condition
// worth retrying. Codes below 500 are business rejections.
func (e *ProviderError) Retryable() bool {
	return e.Code >= 500
}

// TransportError wraps a network or HTTP failure between client and provider.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("wire: transport failure (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("wire: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable is true for timeouts, connection failures, and 5xx responses.
// A 4xx status means the request itself is wrong and retrying cannot help.
func (e *TransportError) Retryable() bool {
	if e.Status >= 500 {
		return true
	}
	if e.Status >= 400 {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	return true
}

// IsRetryable reports whether err may succeed on a later attempt. Anything
// that does not explicitly declare itself retryable is treated as permanent.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
