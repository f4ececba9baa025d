// Package models holds the domain types shared by repositories, services and handlers.
//
// JSON tags describe the API shape; fields tagged `json:"-"` never leave the server.
package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// User is an account. Email is the unique login key.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    *string   `json:"firstName"`
	LastName     *string   `json:"lastName"`
	Pseudo       *string   `json:"pseudo"`
	Lang         *string   `json:"lang"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

// Validate normalizes and checks the request.
//   - Email: valid address, stored lower-case
//   - Password: see ValidatePassword, must equal ConfirmPassword
//   - FirstName, LastName: required, max 50 characters
func (r *RegisterRequest) Validate() error {
	email, err := normalizeEmail(r.Email)
	if err != nil {
		return err
	}
	r.Email = email

	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if r.Password != r.ConfirmPassword {
		return fmt.Errorf("passwords do not match")
	}

	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if err := validateName("first name", r.FirstName); err != nil {
		return err
	}
	return validateName("last name", r.LastName)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate only checks presence; password complexity is not re-checked at login.
func (r *LoginRequest) Validate() error {
	email, err := normalizeEmail(r.Email)
	if err != nil {
		return err
	}
	r.Email = email

	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// UpdatePasswordRequest is the body of PUT /api/users/me/password.
type UpdatePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

func (r *UpdatePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return fmt.Errorf("current password is required")
	}
	if err := ValidatePassword(r.NewPassword); err != nil {
		return err
	}
	if r.NewPassword != r.ConfirmNewPassword {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// UpdateProfileRequest is the body of PUT /api/users/me. Every field is
// optional; a nil field leaves the stored value untouched.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Pseudo    *string `json:"pseudo"`
	Lang      *string `json:"lang"`
}

// Validate trims and checks the fields that are present.
//   - FirstName, LastName: non-empty, max 50 characters
//   - Pseudo: 3-30 characters, unique across users (checked by the store)
//   - Lang: "en" or "fr"
func (r *UpdateProfileRequest) Validate() error {
	if r.FirstName != nil {
		v := strings.TrimSpace(*r.FirstName)
		if err := validateName("first name", v); err != nil {
			return err
		}
		r.FirstName = &v
	}
	if r.LastName != nil {
		v := strings.TrimSpace(*r.LastName)
		if err := validateName("last name", v); err != nil {
			return err
		}
		r.LastName = &v
	}
	if r.Pseudo != nil {
		v := strings.TrimSpace(*r.Pseudo)
		n := utf8.RuneCountInString(v)
		if n < 3 || n > 30 {
			return fmt.Errorf("pseudo must be 3 to 30 characters")
		}
		r.Pseudo = &v
	}
	if r.Lang != nil && *r.Lang != "en" && *r.Lang != "fr" {
		return fmt.Errorf("unsupported language %q", *r.Lang)
	}
	return nil
}

// ValidatePassword enforces 8-100 characters with at least one upper-case
// letter, one lower-case letter, one digit and one symbol.
func ValidatePassword(p string) error {
	n := utf8.RuneCountInString(p)
	if n < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if n > 100 {
		return fmt.Errorf("password is too long")
	}

	var upper, lower, digit, special bool
	for _, ch := range p {
		switch {
		case ch >= 'A' && ch <= 'Z':
			upper = true
		case ch >= 'a' && ch <= 'z':
			lower = true
		case ch >= '0' && ch <= '9':
			digit = true
		default:
			special = true
		}
	}

	switch {
	case !upper:
		return fmt.Errorf("password must contain an upper-case letter")
	case !lower:
		return fmt.Errorf("password must contain a lower-case letter")
	case !digit:
		return fmt.Errorf("password must contain a number")
	case !special:
		return fmt.Errorf("password must contain a special character")
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", fmt.Errorf("invalid email format")
	}
	return email, nil
}

func validateName(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(v) > 50 {
		return fmt.Errorf("%s must be at most 50 characters", field)
	}
	for _, ch := range v {
		if unicode.IsControl(ch) {
			return fmt.Errorf("%s contains invalid characters", field)
		}
	}
	return nil
}
