package enums

import "fmt"

// SubscriptionStatus mirrors the confirmation state of a newsletter subscriber.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingConfirmation SubscriptionStatus = "pending_confirmation"
	SubscriptionStatusConfirmed           SubscriptionStatus = "confirmed"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPendingConfirmation,
	SubscriptionStatusConfirmed,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
