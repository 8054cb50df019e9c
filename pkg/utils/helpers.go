package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOpaqueID mints a server-side opaque identifier for sessions and runs.
// Dashes are stripped so the id survives the "{id}:{ordinal}" result-id
// format without visual noise.
func NewOpaqueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequestID generates a unique request ID for tracking
func NewRequestID() string {
	return uuid.New().String()
}

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ToISO renders a time as second-truncated RFC3339 UTC
func ToISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseISO parses an RFC3339 timestamp, returning the zero time on failure
func ParseISO(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Contains checks if a string slice contains a specific string
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetStringOrDefault returns the value if not empty, otherwise returns the default
func GetStringOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
