package uuidx

import "github.com/google/uuid"

// New generates a new UUID using the version 7 format and returns it.
// Version 7 IDs sort by creation time, which keeps event streams ordered
// when they are keyed by ID. It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new version 7 UUID and returns it as a string.
func NewString() string {
	return New().String()
}
