package idempotency

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
)

const maxKeyLength = 50

// Key is a client-supplied idempotency key. Valid keys are 1 to 49 bytes long
// and compared byte-for-byte.
type Key struct {
	value string
}

// ParseKey validates raw and wraps it as a Key.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return Key{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key cannot be empty")
	}
	if len(raw) >= maxKeyLength {
		return Key{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("idempotency key must be shorter than %d characters", maxKeyLength)).
			WithDetails(map[string]any{"length": len(raw), "max": maxKeyLength - 1})
	}
	return Key{value: raw}, nil
}

func (k Key) String() string {
	return k.value
}
