package llmgw

import (
	"errors"
	"net/http"
)

// Error classifications attached to AttemptResult.ErrorType, log records and
// metrics labels.
const (
	ErrorTypeConfiguration      = "configuration"
	ErrorTypeTransport          = "transport"
	ErrorTypeProvider           = "provider"
	ErrorTypeCircuitOpen        = "circuit_open"
	ErrorTypeConcurrencyTimeout = "concurrency_timeout"
)

type (
	// ConfigurationError means no route could be resolved; no network
	// attempt was made.
	ConfigurationError struct{ Err error }

	// TransportError covers timeouts and connection failures. Retryable.
	TransportError struct{ Err error }

	// CircuitOpenError means the route's breaker is open; no attempt made.
	CircuitOpenError struct{ Err error }

	// ConcurrencyTimeoutError means the provider semaphore could not be
	// acquired within the attempt timeout; no attempt made.
	ConcurrencyTimeoutError struct{ Err error }
)

// ProviderError is a non-2xx response from a provider. 429 and 5xx are
// retryable; other 4xx are attributed to the request and terminal.
type ProviderError struct {
	Err        error
	StatusCode int
}

func (e ConfigurationError) Error() string      { return e.Err.Error() }
func (e ConfigurationError) Unwrap() error      { return e.Err }
func (e TransportError) Error() string          { return e.Err.Error() }
func (e TransportError) Unwrap() error          { return e.Err }
func (e CircuitOpenError) Error() string        { return e.Err.Error() }
func (e CircuitOpenError) Unwrap() error        { return e.Err }
func (e ConcurrencyTimeoutError) Error() string { return e.Err.Error() }
func (e ConcurrencyTimeoutError) Unwrap() error { return e.Err }
func (e ProviderError) Error() string           { return e.Err.Error() }
func (e ProviderError) Unwrap() error           { return e.Err }

// Classify maps an error to its ErrorType constant. Unknown errors are
// treated as transport failures, which keeps them retryable.
func Classify(err error) string {
	var (
		configErr      ConfigurationError
		transportErr   TransportError
		providerErr    ProviderError
		circuitErr     CircuitOpenError
		concurrencyErr ConcurrencyTimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &configErr):
		return ErrorTypeConfiguration
	case errors.As(err, &circuitErr):
		return ErrorTypeCircuitOpen
	case errors.As(err, &concurrencyErr):
		return ErrorTypeConcurrencyTimeout
	case errors.As(err, &providerErr):
		return ErrorTypeProvider
	case errors.As(err, &transportErr):
		return ErrorTypeTransport
	default:
		return ErrorTypeTransport
	}
}

// Retryable reports whether another try against the same route could
// reasonably succeed. Breaker-open and semaphore-timeout failures are not
// retried locally; the route is already known to be saturated.
func Retryable(err error) bool {
	var (
		providerErr    ProviderError
		circuitErr     CircuitOpenError
		concurrencyErr ConcurrencyTimeoutError
		configErr      ConfigurationError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &configErr), errors.As(err, &circuitErr), errors.As(err, &concurrencyErr):
		return false
	case errors.As(err, &providerErr):
		return providerErr.StatusCode == http.StatusTooManyRequests || providerErr.StatusCode >= 500
	default:
		// Transport failures and anything unclassified.
		return true
	}
}
