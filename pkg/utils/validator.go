package utils

import (
	"fmt"
	"regexp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateAmount validates a budget line amount
func ValidateAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %.2f", amount)
	}
	return nil
}

// ValidateProjectCode validates an RAB line item code (e.g. "A.1.2")
func ValidateProjectCode(code string) error {
	if code == "" {
		return fmt.Errorf("item code is required")
	}
	if len(code) > 32 {
		return fmt.Errorf("item code too long: %s", code)
	}
	return nil
}

// SanitizeString removes control characters from user-supplied text
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
