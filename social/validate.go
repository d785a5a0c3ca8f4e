package social

import (
	"regexp"
	"strings"
)

const (
	msgEmail    = "Please enter a valid email."
	msgUsername = "Username must be at least 3 characters long and contain at least one letter."
	msgFullName = "Full name can only contain letters and spaces."
	msgPassword = "Password must be at least 6 characters long, contain at least one number, and one special character."

	passwordSpecials = "!@#$%^&*"
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,}$`)
	fullNameRe = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	passwordRe = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*]{6,}$`)
)

// FieldError is one rejected form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the rejected fields in form order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, " ")
}

// Message returns the message for field, or "".
func (e *ValidationError) Message(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

// ValidateSignup checks the signup form. It returns nil or a *ValidationError.
func ValidateSignup(in SignupInput) error {
	var fields []FieldError
	if !emailRe.MatchString(in.Email) {
		fields = append(fields, FieldError{"email", msgEmail})
	}
	if !usernameRe.MatchString(in.Username) || !hasLetter(in.Username) {
		fields = append(fields, FieldError{"username", msgUsername})
	}
	if !fullNameRe.MatchString(in.FullName) {
		fields = append(fields, FieldError{"fullName", msgFullName})
	}
	if !passwordRe.MatchString(in.Password) ||
		!strings.ContainsAny(in.Password, "0123456789") ||
		!strings.ContainsAny(in.Password, passwordSpecials) {
		fields = append(fields, FieldError{"password", msgPassword})
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func hasLetter(s string) bool {
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			return true
		}
	}
	return false
}
