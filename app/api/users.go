package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/gateway"
	"github.com/dorominseok/festival-pj/app/models"
)

// POST /login {email, password}
func (s *Server) loginCtrl(w http.ResponseWriter, r *http.Request) {
	creds := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{}
	if err := render.DecodeJSON(r.Body, &creds); err != nil {
		sendError(w, r, http.StatusBadRequest, err, "can't decode credentials")
		return
	}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		sendError(w, r, http.StatusBadRequest, errors.New("empty credentials"), "email and password required")
		return
	}

	user, err := s.Session.Login(r.Context(), strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		if gateway.IsUnauthorized(err) {
			sendError(w, r, http.StatusUnauthorized, err, "invalid email or password")
			return
		}
		sendBackendError(w, r, err, "login failed")
		return
	}
	render.JSON(w, r, user)
}

// POST /logout
func (s *Server) logoutCtrl(w http.ResponseWriter, r *http.Request) {
	s.Session.Logout()
	render.JSON(w, r, rest.JSON{"status": "ok"})
}

// POST /signup {name, email, password, interests}
func (s *Server) signupCtrl(w http.ResponseWriter, r *http.Request) {
	req := gateway.SignupRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		sendError(w, r, http.StatusBadRequest, err, "can't decode signup request")
		return
	}
	req.Name, req.Email = strings.TrimSpace(req.Name), strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		sendError(w, r, http.StatusBadRequest, errors.New("missing fields"), "name, email and password required")
		return
	}

	user, err := s.Backend.Signup(r.Context(), req)
	if err != nil {
		sendBackendError(w, r, err, "signup failed")
		return
	}
	log.Printf("[INFO] signed up user %d", user.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

// GET /me
func (s *Server) meCtrl(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.Session.Current())
}

// PUT /me {name, interests}, interests also accepted as a comma-joined string
func (s *Server) updateMeCtrl(w http.ResponseWriter, r *http.Request) {
	user := s.Session.Current()
	upd := struct {
		Name      *string     `json:"name"`
		Interests interface{} `json:"interests"`
	}{}
	if err := render.DecodeJSON(r.Body, &upd); err != nil {
		sendError(w, r, http.StatusBadRequest, err, "can't decode profile update")
		return
	}

	req := gateway.UserUpdate{Name: upd.Name}
	switch v := upd.Interests.(type) {
	case nil:
	case string:
		tags := models.SplitTags(v)
		if tags == nil {
			tags = []string{}
		}
		req.Interests = &tags
	case []interface{}:
		tags := []string{}
		for _, t := range v {
			if tag, ok := t.(string); ok {
				tags = append(tags, tag)
			}
		}
		req.Interests = &tags
	default:
		sendError(w, r, http.StatusBadRequest, errors.Errorf("interests of %T", v), "interests must be a list or a string")
		return
	}

	updated, err := s.Backend.UpdateUser(r.Context(), user.ID, req)
	if err != nil {
		sendBackendError(w, r, err, "can't update profile")
		return
	}
	// update response may omit the role
	updated.Admin = updated.Admin || user.Admin
	s.Session.Set(&updated)
	render.JSON(w, r, updated)
}

// GET /me/reviews
func (s *Server) myReviewsCtrl(w http.ResponseWriter, r *http.Request) {
	user := s.Session.Current()
	reviews, err := s.Backend.GetUserReviews(r.Context(), user.ID)
	if err != nil {
		sendBackendError(w, r, err, "can't get reviews")
		return
	}
	render.JSON(w, r, s.Moderator.ModerateAll(r.Context(), reviews))
}
