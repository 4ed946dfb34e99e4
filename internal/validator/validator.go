package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidPassword = errors.New("password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidOTP      = errors.New("otp must be 6 digits")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPhone    = errors.New("invalid phone number")
)

var (
	emailRegex  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	otpRegex    = regexp.MustCompile(`^[0-9]{6}$`)
	letterRegex = regexp.MustCompile(`[A-Za-z]`)
	digitRegex  = regexp.MustCompile(`[0-9]`)
	nameRegex   = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)
	phoneRegex  = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// NormalizeEmail is applied before every lookup so sessions and users are
// keyed case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 || !letterRegex.MatchString(password) || !digitRegex.MatchString(password) {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateOTP(code string) error {
	if !otpRegex.MatchString(code) {
		return ErrInvalidOTP
	}
	return nil
}

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 50 || !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func ValidatePhone(phone string) error {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)
	if !phoneRegex.MatchString(cleaned) {
		return ErrInvalidPhone
	}
	return nil
}
