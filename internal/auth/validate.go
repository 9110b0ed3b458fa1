package auth

import (
	"net/mail"
	"strings"

	"ainotebook/internal/apperr"
)

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || in.ConfirmPassword == "" {
		return apperr.Validation("all fields are required")
	}
	if !validEmail(in.Email) {
		return apperr.Validation("invalid email address")
	}
	if in.Password != in.ConfirmPassword {
		return apperr.Validation("passwords do not match")
	}
	if len([]rune(in.Password)) < MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}
	return nil
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return apperr.Validation("email and password are required")
	}
	return nil
}

// ProfileInput is the body of PUT /users/profile. Nil fields are unchanged.
type ProfileInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func (in ProfileInput) Validate() error {
	if in.Username == nil && in.Email == nil {
		return apperr.Validation("username or email is required")
	}
	if in.Username != nil && strings.TrimSpace(*in.Username) == "" {
		return apperr.Validation("username cannot be empty")
	}
	if in.Email != nil && !validEmail(*in.Email) {
		return apperr.Validation("invalid email address")
	}
	return nil
}

// PasswordInput is the body of PUT /users/password.
type PasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (in PasswordInput) Validate() error {
	if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return apperr.Validation("current, new and confirmation password are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperr.Validation("passwords do not match")
	}
	if len([]rune(in.NewPassword)) < MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}
	return nil
}

// validEmail accepts a bare address only, not a display-name form.
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
