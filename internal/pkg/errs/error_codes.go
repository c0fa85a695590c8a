/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific request handling or relay errors both internally
within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1002

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1003
)

// 2xxx: Session and Relay Errors
const (
	// ErrMessageRateExceeded indicates that a paired connection sent messages faster than the per-connection limit.
	ErrMessageRateExceeded = 2001

	// ErrNotPaired indicates that an operation requiring an active pairing was attempted while unpaired.
	ErrNotPaired = 2002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
