package service

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/GibsonWaheire/POS-salon/internal/store"
)

// ValidatePIN enforces the staff PIN policy: exactly five characters with at
// least one digit and at least one special character.
func ValidatePIN(pin string) error {
	if len(pin) != 5 {
		return fmt.Errorf("%w: pin must be exactly 5 characters", store.ErrValidation)
	}
	hasDigit := false
	hasSpecial := false
	for _, r := range pin {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSpecial = true
		}
	}
	if !hasDigit || !hasSpecial {
		return fmt.Errorf("%w: pin needs at least one digit and one special character", store.ErrValidation)
	}
	return nil
}

func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPIN(hash string, pin string) bool {
	if !isPINHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func isPINHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
