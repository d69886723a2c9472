package pkg

import "github.com/google/uuid"

// GenerateID - a random id for connections and sessions.
func GenerateID() string {
	return uuid.NewString()
}
