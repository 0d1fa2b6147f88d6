// Package account is the self-service side of the user store: sign-up and
// the signed-in user's own profile.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// UserBackend is the part of the remote user resource accounts need.
type UserBackend interface {
	ByUsername(ctx context.Context, username string) (*domain.User, error)
	ByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, in *domain.User) (*domain.User, error)
	Update(ctx context.Context, id string, in *domain.User) (*domain.User, error)
}

// PrincipalSource reports who is signed in.
type PrincipalSource interface {
	Principal() (domain.Principal, bool)
}

// Accounts runs account operations for one session.
type Accounts struct {
	users    UserBackend
	who      PrincipalSource
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates the account operations for the principal reported by who.
func New(users UserBackend, who PrincipalSource, notifier notify.Notifier, logger *slog.Logger) *Accounts {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Accounts{users: users, who: who, notifier: notifier, logger: logger}
}

// Register creates a customer account. Username and email must be unused.
// The session is not signed in; callers log in with the same credentials.
func (a *Accounts) Register(ctx context.Context, in domain.Registration) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validator.Validate(in); err != nil {
		a.notifier.Notify(ctx, notify.Error(notify.MsgRegisterFailed))
		return nil, err
	}
	user := in.ToUser()
	if err := a.ensureUnique(ctx, user, "", notify.MsgRegisterFailed); err != nil {
		return nil, err
	}

	created, err := a.users.Create(ctx, user)
	if err != nil {
		return nil, a.fail(ctx, err, notify.MsgRegisterFailed, "register", slog.String("username", user.Username))
	}
	logger.WithContext(ctx, a.logger).InfoContext(ctx, "account registered",
		slog.String("user_id", created.ID),
		slog.String("username", created.Username),
	)
	a.notifier.Notify(ctx, notify.Success(notify.MsgRegistered))
	return created, nil
}

// UpdateProfile replaces the signed-in user's username, email and, when
// given, password. The role is never changed here.
func (a *Accounts) UpdateProfile(ctx context.Context, in domain.ProfileInput) (*domain.User, error) {
	p, ok := a.who.Principal()
	if !ok {
		a.notifier.Notify(ctx, notify.Error(notify.MsgProfileUpdateFailed))
		return nil, apperrors.NotSignedIn()
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validator.Validate(in); err != nil {
		a.notifier.Notify(ctx, notify.Error(notify.MsgProfileUpdateFailed))
		return nil, err
	}
	user := &domain.User{Username: in.Username, Email: in.Email, Password: in.Password, Role: p.Role}
	if err := a.ensureUnique(ctx, user, p.UserID, notify.MsgProfileUpdateFailed); err != nil {
		return nil, err
	}

	updated, err := a.users.Update(ctx, p.UserID, user)
	if err != nil {
		return nil, a.fail(ctx, err, notify.MsgProfileUpdateFailed, "update profile", slog.String("user_id", p.UserID))
	}
	if updated.ID == "" {
		updated.ID = p.UserID
	}
	if updated.Role == "" {
		updated.Role = p.Role
	}
	logger.WithContext(ctx, a.logger).InfoContext(ctx, "profile updated", slog.String("user_id", p.UserID))
	a.notifier.Notify(ctx, notify.Success(notify.MsgProfileUpdated))
	return updated, nil
}

// ensureUnique rejects a username or email held by a user other than self.
func (a *Accounts) ensureUnique(ctx context.Context, u *domain.User, self, failMsg string) error {
	checks := []struct {
		field  string
		lookup func(context.Context, string) (*domain.User, error)
		value  string
	}{
		{"username", a.users.ByUsername, u.Username},
		{"email", a.users.ByEmail, u.Email},
	}
	for _, chk := range checks {
		existing, err := chk.lookup(ctx, chk.value)
		switch {
		case apperrors.IsNotFound(err):
			continue
		case err != nil:
			return a.fail(ctx, err, failMsg, "lookup "+chk.field)
		case existing.ID != self:
			a.notifier.Notify(ctx, notify.Error(fmt.Sprintf("That %s is already taken", chk.field)))
			return apperrors.Conflict(fmt.Sprintf("%s %q is already taken", chk.field, chk.value))
		}
	}
	return nil
}

func (a *Accounts) fail(ctx context.Context, err error, msg, action string, attrs ...any) error {
	attrs = append(attrs, slog.String("error", err.Error()))
	logger.WithContext(ctx, a.logger).ErrorContext(ctx, "account "+action+" failed", attrs...)
	a.notifier.Notify(ctx, notify.Error(msg))
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Remote("users", err)
}
