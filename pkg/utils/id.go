package utils

import "github.com/google/uuid"

// GenerateConnectionID mints the identifier assigned to one signaling
// socket. Role assignment sorts these lexicographically, so they only need
// to be unique and totally ordered.
func GenerateConnectionID() string {
	return uuid.NewString()
}
