package services

import (
	"errors"
	"fmt"
)

// Marketplace integration error constants
var (
	ErrConfiguration = errors.New("marketplace configuration error")
	ErrAuth          = errors.New("marketplace authentication failed")
	ErrNetwork       = errors.New("marketplace request failed")
	ErrNotFound      = errors.New("marketplace resource not found")
)

// ConfigurationError reports a missing required marketplace setting
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required marketplace credential: %s", e.Key)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// AuthError reports a failed access token refresh
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("marketplace token refresh returned status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("marketplace token refresh failed: %v", e.Err)
	default:
		return "marketplace token refresh failed"
	}
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}

// NetworkError reports a failed marketplace API call
type NetworkError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("marketplace request %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("marketplace request %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}

// NotFoundError reports a catalog resource that does not exist
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("marketplace resource not found: %s", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// statusCode returns the HTTP status carried by a NetworkError, or 0
func statusCode(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.StatusCode
	}
	return 0
}
