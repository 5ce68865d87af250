package user

import (
	"time"

	"github.com/trezcool/darasa/core"
)

// Roles
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

var AllRoles = []string{RoleStudent, RoleInstructor, RoleAdmin}

// User is the authenticated account as served by /user/profile and
// cached (obfuscated) in the local store.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) IsStudent() bool    { return u.Role == RoleStudent }
func (u User) IsInstructor() bool { return u.Role == RoleInstructor }
func (u User) IsAdmin() bool      { return u.Role == RoleAdmin }

func (u User) HasRole(role string) bool { return u.Role == role }

func (u User) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// Preferences is the free-form preference bag persisted locally and
// mirrored to the server.
type Preferences map[string]interface{}

// Forms

type RegisterForm struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordForm struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordForm struct {
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type UpdateProfileForm struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type ChangePasswordForm struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (f RegisterForm) Validate() error { return core.TranslateValidationErrors(core.Validate.Struct(f)) }
func (f LoginForm) Validate() error    { return core.TranslateValidationErrors(core.Validate.Struct(f)) }

func (f ForgotPasswordForm) Validate() error {
	return core.TranslateValidationErrors(core.Validate.Struct(f))
}

func (f ResetPasswordForm) Validate() error {
	return core.TranslateValidationErrors(core.Validate.Struct(f))
}

func (f UpdateProfileForm) Validate() error {
	return core.TranslateValidationErrors(core.Validate.Struct(f))
}

func (f ChangePasswordForm) Validate() error {
	return core.TranslateValidationErrors(core.Validate.Struct(f))
}
