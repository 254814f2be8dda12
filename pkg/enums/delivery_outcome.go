package enums

// DeliveryOutcome labels the terminal or deferred result of one delivery attempt.
type DeliveryOutcome string

const (
	DeliveryOutcomeSent           DeliveryOutcome = "sent"
	DeliveryOutcomeSkippedInvalid DeliveryOutcome = "skipped_invalid"
	DeliveryOutcomeFailed         DeliveryOutcome = "failed"
)

func (o DeliveryOutcome) String() string {
	return string(o)
}
