package gateway

import (
	"context"
	"net/http"

	"github.com/dorominseok/festival-pj/app/models"
)

// SignupRequest is the signup payload
type SignupRequest struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Interests []string `json:"interests"`
}

// UserUpdate holds the editable profile fields, nil fields are left unchanged.
// Interests pointing to an empty list clears them.
type UserUpdate struct {
	Name      *string   `json:"name,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
}

// Signup registers a new user
func (c *Client) Signup(ctx context.Context, req SignupRequest) (models.User, error) {
	req.Interests = cleanTags(req.Interests)
	var p userPayload
	r := c.api(http.MethodPost, "/users/signup")
	r.body = req
	if err := c.do(ctx, r, &p); err != nil {
		return models.User{}, err
	}
	return p.model(), nil
}

// Login checks credentials and returns the user. Bad credentials come back as a
// *StatusError, see IsUnauthorized.
func (c *Client) Login(ctx context.Context, email, password string) (models.User, error) {
	var p userPayload
	r := c.api(http.MethodPost, "/users/login")
	r.body = struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	if err := c.do(ctx, r, &p); err != nil {
		return models.User{}, err
	}
	return p.model(), nil
}

// UpdateUser changes profile fields of the user
func (c *Client) UpdateUser(ctx context.Context, userID int64, upd UserUpdate) (models.User, error) {
	if upd.Interests != nil {
		tags := cleanTags(*upd.Interests)
		upd.Interests = &tags
	}
	var p userPayload
	r := c.api(http.MethodPut, idPath("/users/%d", userID))
	r.body = upd
	if err := c.do(ctx, r, &p); err != nil {
		return models.User{}, err
	}
	return p.model(), nil
}
