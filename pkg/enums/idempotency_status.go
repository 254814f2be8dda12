package enums

import "fmt"

// IdempotencyStatus tracks whether a keyed command has produced its response yet.
type IdempotencyStatus string

const (
	IdempotencyStatusInProgress IdempotencyStatus = "in_progress"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
)

var validIdempotencyStatuses = []IdempotencyStatus{
	IdempotencyStatusInProgress,
	IdempotencyStatusCompleted,
}

// String implements fmt.Stringer.
func (s IdempotencyStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s IdempotencyStatus) IsValid() bool {
	for _, candidate := range validIdempotencyStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseIdempotencyStatus converts raw input into an IdempotencyStatus.
func ParseIdempotencyStatus(value string) (IdempotencyStatus, error) {
	for _, candidate := range validIdempotencyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid idempotency status %q", value)
}
