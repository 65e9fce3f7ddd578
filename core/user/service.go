package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/admissions/core"
)

var (
	// errors
	ErrNotFound           = core.NewError(core.KindNotFound, "user not found")
	ErrEmailExists        = core.NewError(core.KindConflict, "email already registered")
	ErrInvalidCredentials = core.NewError(core.KindUnauthenticated, "invalid credentials")
)

type (
	Repository interface {
		// CreateUser fails with ErrEmailExists when the email is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdatePassword(ctx context.Context, id string, hash []byte, updatedAt time.Time) error
		SetLastLogin(ctx context.Context, id string, at time.Time) error
	}

	// TokenIssuer issues bearer tokens for authenticated users.
	TokenIssuer interface {
		Issue(usr User) (string, error)
	}

	Service struct {
		repo       Repository
		tokens     TokenIssuer
		mailSvc    core.EmailService
		bcryptCost int

		// dummyHash is compared against when the email is unknown so that
		// both login failures cost one bcrypt comparison.
		dummyHash []byte
	}
)

func NewService(repo Repository, tokens TokenIssuer, mailSvc core.EmailService, conf *core.Config) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), conf.Auth.BcryptCost)
	return &Service{
		repo:       repo,
		tokens:     tokens,
		mailSvc:    mailSvc,
		bcryptCost: conf.Auth.BcryptCost,
		dummyHash:  dummy,
	}
}

// Register creates a student (default) or admin account and returns it with a fresh token.
// nu must have been validated.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, string, error) {
	now := core.Now()
	usr := User{
		ID:        uuid.NewString(),
		Email:     nu.Email,
		Name:      nu.Name,
		Initials:  DeriveInitials(nu.Name),
		Role:      nu.Role,
		Program:   nu.Program,
		Group:     DefaultGroup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleStudent
	}
	if err := usr.SetPassword(nu.Password, svc.bcryptCost); err != nil {
		return User{}, "", errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, "", errors.Wrap(err, "creating user")
	}

	token, err := svc.tokens.Issue(usr)
	if err != nil {
		return User{}, "", errors.Wrap(err, "issuing token")
	}
	return usr, token, nil
}

// Authenticate returns ErrInvalidCredentials for both unknown emails and wrong passwords.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, string, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			_ = bcrypt.CompareHashAndPassword(svc.dummyHash, []byte(pwd))
			return User{}, "", ErrInvalidCredentials
		}
		return User{}, "", errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, "", ErrInvalidCredentials
	}

	now := core.Now()
	if err = svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, "", errors.Wrap(err, "setting lastLogin")
	}
	usr.LastLogin = &now

	token, err := svc.tokens.Issue(usr)
	if err != nil {
		return User{}, "", errors.Wrap(err, "issuing token")
	}
	return usr, token, nil
}

// ResetPassword sets a new password on the account identified by email.
// No proof of ownership is required; outstanding tokens stay valid.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(rp.Email, true /* lower */))
	if err != nil {
		return errors.Wrap(err, "finding user by email")
	}
	if err = usr.SetPassword(rp.NewPassword, svc.bcryptCost); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err = svc.repo.UpdatePassword(ctx, usr.ID, usr.PasswordHash, core.Now()); err != nil {
		return errors.Wrap(err, "updating password")
	}
	svc.sendPasswordChangedMail(usr)
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) sendPasswordChangedMail(usr User) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your password has been changed",
		TemplateName: "password_changed",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"Email": usr.Email,
			"Date":  core.Now().Format(time.RFC1123),
		},
	})
}
