package platforms

import (
	"fmt"
	"net/http"

	pkgError "github.com/storylinehq/publisher/pkg/error"
)

// MapHTTPError classifies a non-2xx platform response into the failure
// taxonomy: auth problems trigger a refresh, rate limits and server errors
// go through backoff, the rest needs an operator.
func MapHTTPError(platform, accountID string, status int, body string) error {
	msg := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgError.CredentialError{Platform: platform, AccountID: accountID, Err: msg}
	case status == http.StatusTooManyRequests || status >= 500:
		return pkgError.TransientPlatformError{Platform: platform, Err: msg}
	default:
		return pkgError.ConfigurationError{Platform: platform, Reason: msg.Error()}
	}
}

// MapNetworkError wraps transport-level failures (timeouts, DNS, resets).
func MapNetworkError(platform string, err error) error {
	return pkgError.TransientPlatformError{Platform: platform, Err: err}
}
