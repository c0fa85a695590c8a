/*
Package randx provides functions for generating unique identifiers.

It is used to mint the opaque connection identifiers assigned to every network
session and the fallback identifiers for messages that arrive without one.
*/
package randx

import (
	"github.com/google/uuid"
)

// ConnectionID generates the server-assigned opaque identifier for a network session.
// The identifier is stable for the lifetime of the session and unique across the process.
func ConnectionID() string {
	return uuid.New().String()
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
// It is used when a client submits a message without a caller-supplied identity.
func MessageID() string {
	return uuid.New().String()
}
