// Package apperrors provides the error type shared across the catalog client.
// It extends the standard error interface with error chaining and HTTP status
// code management so transport failures, server rejections, and client-side
// validation failures can all flow through one taxonomy while remaining
// compatible with errors.Is / errors.As.
package apperrors

// Error defines the interface for catalog client errors. All methods return
// Error to support method chaining.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	// Extended methods
	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetStatusCode(int) Error               // sets HTTP status code for the error
	StatusCode() int                       // returns the current status code
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
