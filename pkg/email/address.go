package email

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/newsletter-backend/pkg/errors"
)

var validate = validator.New()

// Address is a syntactically valid email address.
type Address struct {
	value string
}

// ParseAddress validates raw as an email address.
func ParseAddress(raw string) (Address, error) {
	if err := validate.Var(raw, "required,email"); err != nil {
		return Address{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%q is not a valid email address", raw))
	}
	return Address{value: raw}, nil
}

func (a Address) String() string {
	return a.value
}
