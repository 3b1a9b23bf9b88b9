package error

import (
	"errors"
	"fmt"
	"net/http"
)

// Platform-facing failure taxonomy. TransientPlatformError and
// CredentialError are retriable through the backoff queue,
// ConfigurationError is not, AssetNotReadyError is a deferral rather
// than a failure.

type TransientPlatformError struct {
	Platform string
	Err      error
}

func (e TransientPlatformError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Platform, e.Err)
}

func (e TransientPlatformError) Unwrap() error { return e.Err }

func (e TransientPlatformError) ErrCode() string { return "TRANSIENT_PLATFORM_ERROR" }

func (e TransientPlatformError) StatusCode() int { return http.StatusBadGateway }

type CredentialError struct {
	Platform  string
	AccountID string
	Err       error
}

func (e CredentialError) Error() string {
	return fmt.Sprintf("credential error on %s account %s: %v", e.Platform, e.AccountID, e.Err)
}

func (e CredentialError) Unwrap() error { return e.Err }

func (e CredentialError) ErrCode() string { return "CREDENTIAL_ERROR" }

func (e CredentialError) StatusCode() int { return http.StatusUnauthorized }

type ConfigurationError struct {
	Platform string
	Reason   string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error on %s: %s", e.Platform, e.Reason)
}

func (e ConfigurationError) ErrCode() string { return "CONFIGURATION_ERROR" }

func (e ConfigurationError) StatusCode() int { return http.StatusUnprocessableEntity }

type AssetNotReadyError struct {
	ContentID string
}

func (e AssetNotReadyError) Error() string {
	return fmt.Sprintf("media for item %s is not ready", e.ContentID)
}

func (e AssetNotReadyError) ErrCode() string { return "ASSET_NOT_READY" }

func (e AssetNotReadyError) StatusCode() int { return http.StatusConflict }

// IsRetriable reports whether a dispatch failure should go through the
// backoff queue. Configuration problems need an operator, not a retry.
func IsRetriable(err error) bool {
	var transient TransientPlatformError
	var credential CredentialError
	return errors.As(err, &transient) || errors.As(err, &credential)
}
