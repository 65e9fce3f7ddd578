package user

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/admissions/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"

	DefaultGroup = "NEW"
)

var (
	AllRoles = []string{RoleStudent, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Initials     string     `json:"initials"`
	Role         string     `json:"role"`
	Program      string     `json:"program"`
	Group        string     `json:"group"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`           // UTC
	UpdatedAt    time.Time  `json:"updatedAt"`           // UTC
	LastLogin    *time.Time `json:"lastLogin,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string, cost int) error {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword compares pwd with the stored hash in constant time.
func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// DeriveInitials returns the upper-cased first letter of every word of name.
func DeriveInitials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,notblank"`
	Role     string `json:"role" validate:"omitempty,role"`
	Program  string `json:"program" validate:"omitempty,max=200"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Program = core.CleanString(nu.Program)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}
	return validate.Struct(nu)
}

// Credentials are exchanged for a token on login.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return validate.Struct(c)
}

type ResetUserPassword struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	return validate.Struct(rp)
}
