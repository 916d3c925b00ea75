package pi

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired reports that the gateway rejected the user access
	// token; callers force a re-login when they see this.
	ErrTokenExpired = errors.New("pi: access token expired")

	// ErrGatewayUnreachable wraps transport-level failures reaching the
	// platform API.
	ErrGatewayUnreachable = errors.New("pi: gateway unreachable")

	// ErrAlreadyCompleted is returned by CompletePayment when the gateway
	// has already processed the completion. It is a success signal to the
	// reconciliation flow, not a failure.
	ErrAlreadyCompleted = errors.New("pi: payment already completed")
)

// GatewayError is any non-2xx response from the platform API other than the
// conditions above.
type GatewayError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pi: %s failed: status=%d %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("pi: %s failed: status=%d", e.Op, e.Status)
}
