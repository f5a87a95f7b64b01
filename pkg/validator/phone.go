package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the number has too few or too many digits
	ErrInvalidLength = errors.New("phone number must have between 7 and 15 digits")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and a leading +")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

const (
	minDigits = 7
	maxDigits = 15 // E.164
)

// phoneRegex matches an optional + followed by digits
var phoneRegex = regexp.MustCompile(`^\+?\d+$`)

// PhoneValidator normalizes passenger contact numbers
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a passenger phone number.
// Accepts formats like +86 138 0013 8000, 0086-138-0013-8000 or 13800138000.
// Returns the sanitized number (digits, with + for international form).
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	digits := len(strings.TrimPrefix(sanitized, "+"))
	if digits < minDigits || digits > maxDigits {
		return "", ErrInvalidLength
	}

	return sanitized, nil
}

// Sanitize removes common separators and rewrites a 00 international
// prefix as +
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, "(", "")
	phone = strings.ReplaceAll(phone, ")", "")
	phone = strings.ReplaceAll(phone, ".", "")

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	return phone
}

// IsInternational reports whether a valid number carries a country code
func (v *PhoneValidator) IsInternational(phone string) bool {
	sanitized, err := v.Validate(phone)
	return err == nil && strings.HasPrefix(sanitized, "+")
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// MustValidate validates and panics if invalid (use for testing only)
func (v *PhoneValidator) MustValidate(phone string) string {
	sanitized, err := v.Validate(phone)
	if err != nil {
		panic(fmt.Sprintf("invalid phone number %s: %v", phone, err))
	}
	return sanitized
}
