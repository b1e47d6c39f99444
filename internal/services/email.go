package services

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeEmail lowercases and trims raw, then rejects anything that is not a
// bare RFC 5322 address of at most 254 characters
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))

	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidEmail, err)
	}

	// Reject display-name forms such as "Name <a@b.com>"
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", models.ErrInvalidEmail
	}

	return email, nil
}
