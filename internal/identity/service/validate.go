package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"twofactor-session/internal/security"
)

// MinPasswordLength is the minimum password length in characters.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateRegistration(name, email, password string) error {
	v := &ValidationError{}
	if strings.TrimSpace(name) == "" {
		v.add("name", "name is required")
	}
	validateEmail(v, email)
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		v.add("password", "password must be at least 8 characters")
	case len(password) > security.MaxPasswordBytes:
		v.add("password", "password must be at most 72 bytes")
	}
	return v.orNil()
}

func validateLogin(email, password string) error {
	v := &ValidationError{}
	validateEmail(v, email)
	if password == "" {
		v.add("password", "password is required")
	}
	return v.orNil()
}

func validateEmail(v *ValidationError, email string) {
	switch {
	case email == "":
		v.add("email", "email is required")
	case !emailPattern.MatchString(email):
		v.add("email", "invalid email format")
	}
}
