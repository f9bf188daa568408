// Package contact holds the contact-form domain: the submission model, its
// validation rules and the SQLite-backed store the admin API reads from.
package contact

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Contact is one contact-form submission.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
	Notes     string    `json:"notes,omitempty"`
}

// FieldError describes one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationErrors collects every rejected field of a submission.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	fields := make([]string, len(v))
	for i, fe := range v {
		fields[i] = fe.Field
	}
	return fmt.Sprintf("invalid submission: %s", strings.Join(fields, ", "))
}

// Normalize trims whitespace and lowercases the email address. Call before
// Validate and before persisting.
func (c *Contact) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Subject = strings.TrimSpace(c.Subject)
	c.Message = strings.TrimSpace(c.Message)
}

// Validate checks the submission against the form rules. Returns a
// ValidationErrors listing every failing field, or nil.
func (c Contact) Validate() error {
	var errs ValidationErrors

	switch {
	case len(c.Name) < 2:
		errs = append(errs, FieldError{"name", "must be at least 2 characters"})
	case len(c.Name) > 200:
		errs = append(errs, FieldError{"name", "must be at most 200 characters"})
	}

	if c.Email == "" {
		errs = append(errs, FieldError{"email", "is required"})
	} else if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		errs = append(errs, FieldError{"email", "is not a valid email address"})
	}

	if len(c.Phone) > 20 {
		errs = append(errs, FieldError{"phone", "must be at most 20 characters"})
	}

	switch {
	case len(c.Subject) < 5:
		errs = append(errs, FieldError{"subject", "must be at least 5 characters"})
	case len(c.Subject) > 300:
		errs = append(errs, FieldError{"subject", "must be at most 300 characters"})
	}

	if len(c.Message) < 10 {
		errs = append(errs, FieldError{"message", "must be at least 10 characters"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
