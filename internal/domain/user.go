package domain

import "strings"

// Role is the backend's user role. Values are upper-case on the wire.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// IsAdmin reports whether r grants access to the back-office.
func (r Role) IsAdmin() bool {
	return strings.EqualFold(string(r), string(RoleAdmin))
}

// User is the backend user resource.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
}

// Principal identifies the signed-in user of a storefront session.
type Principal struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the principal may use the back-office.
func (p Principal) IsAdmin() bool {
	return p.Role.IsAdmin()
}

// PrincipalFromUser builds the principal for an authenticated backend user.
// An unknown or empty role is treated as a customer.
func PrincipalFromUser(u *User) Principal {
	role, ok := ParseRole(string(u.Role))
	if !ok {
		role = RoleCustomer
	}
	return Principal{UserID: u.ID, Username: u.Username, Role: role}
}

// Credentials is the login form.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserInput is the admin form for creating or updating a user. Password is
// optional on update.
type UserInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6"`
	Role     string `json:"role" validate:"required,oneof=CUSTOMER ADMIN customer admin"`
}

// ToUser converts the form into the backend resource.
func (in UserInput) ToUser() *User {
	role, _ := ParseRole(in.Role)
	return &User{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
		Role:     role,
	}
}

// Registration is the self-service sign-up form. New accounts are always
// customers.
type Registration struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ToUser converts the form into a customer resource.
func (r Registration) ToUser() *User {
	return &User{
		Username: strings.TrimSpace(r.Username),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
		Role:     RoleCustomer,
	}
}

// ProfileInput is the signed-in user's own profile form. An empty password
// keeps the current one.
type ProfileInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6"`
}
