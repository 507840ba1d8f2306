package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// ShortID returns the first n hex characters of a random UUID
func ShortID(n int) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}
