package backend

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
)

const usersService = "users"

// Users is the /users resource.
type Users struct {
	t *transport
}

func (u *Users) one(ctx context.Context, method, path string, body any) (*domain.User, error) {
	var user domain.User
	if err := u.t.call(ctx, usersService, method, path, nil, body, &user); err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}

// Login checks credentials. The backend answers 401 on a mismatch and 400
// when a field is missing.
func (u *Users) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	return u.one(ctx, http.MethodPost, "/users/login", creds)
}

// List returns every user.
func (u *Users) List(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := u.t.call(ctx, usersService, http.MethodGet, "/users", nil, nil, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	for i := range users {
		users[i].Password = ""
	}
	return users, nil
}

// Get fetches one user.
func (u *Users) Get(ctx context.Context, id string) (*domain.User, error) {
	return u.one(ctx, http.MethodGet, "/users/"+seg(id), nil)
}

// ByUsername looks a user up by username.
func (u *Users) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return u.one(ctx, http.MethodGet, "/users/username/"+seg(username), nil)
}

// ByEmail looks a user up by email.
func (u *Users) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.one(ctx, http.MethodGet, "/users/email/"+seg(email), nil)
}

// Create registers a user.
func (u *Users) Create(ctx context.Context, in *domain.User) (*domain.User, error) {
	return u.one(ctx, http.MethodPost, "/users", in)
}

// Update replaces a user. An empty password leaves it unchanged.
func (u *Users) Update(ctx context.Context, id string, in *domain.User) (*domain.User, error) {
	return u.one(ctx, http.MethodPut, "/users/"+seg(id), in)
}

// Delete removes a user.
func (u *Users) Delete(ctx context.Context, id string) error {
	return u.t.call(ctx, usersService, http.MethodDelete, "/users/"+seg(id), nil, nil, nil)
}
