package catalog

import (
	"errors"
	"net/http"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/apperrors"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/httpclient"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog/dialect"
)

// Error taxonomy for the catalog client. Every operation rejects with one of
// these sentinels (or an error derived from one), so callers can branch with
// errors.Is regardless of which operation failed.
var (
	// ErrNetwork indicates the transport could not reach the service.
	ErrNetwork apperrors.Error = apperrors.New("catalog service unreachable")

	// ErrHTTP indicates a 4xx/5xx response from the service. The status code
	// is carried on the error.
	ErrHTTP apperrors.Error = apperrors.New("catalog service returned an error")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound apperrors.Error = ErrHTTP.New("resource not found").SetStatusCode(http.StatusNotFound)

	// ErrValidation indicates a client-side precondition failed before any
	// network call was attempted.
	ErrValidation apperrors.Error = apperrors.New("validation failed").SetStatusCode(http.StatusBadRequest)

	// ErrSQLRejected indicates a query text that is not a read-only SELECT.
	ErrSQLRejected = dialect.ErrSQLRejected
)

// normalizeError maps raw transport failures into the client taxonomy.
// Errors already in the taxonomy pass through unchanged.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusNotFound {
			return ErrNotFound.Msg(httpErr.Message)
		}
		return ErrHTTP.MsgErr(httpErr.Message, httpErr).SetStatusCode(httpErr.StatusCode)
	}
	return ErrNetwork.Err(err)
}

// fieldError builds a validation error naming the offending field.
func fieldError(field, msg string) apperrors.Error {
	return ErrValidation.Msg(field + ": " + msg)
}
