package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/gateway"
	"github.com/dorominseok/festival-pj/app/models"
)

// GET /reservations
func (s *Server) reservationsCtrl(w http.ResponseWriter, r *http.Request) {
	user := s.Session.Current()
	list, err := s.Backend.GetUserReservations(r.Context(), user.ID)
	if err != nil {
		sendBackendError(w, r, err, "can't get reservations")
		return
	}
	render.JSON(w, r, list)
}

// POST /reservations {festivalId, productId, date, time, headCount, discountRate}
func (s *Server) reserveCtrl(w http.ResponseWriter, r *http.Request) {
	user := s.Session.Current()
	req := models.ReservationRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		sendError(w, r, http.StatusBadRequest, err, "can't decode reservation")
		return
	}
	req.UserID = user.ID
	if req.FestivalID <= 0 || req.ProductID <= 0 || req.HeadCount <= 0 {
		sendError(w, r, http.StatusBadRequest, errors.New("incomplete reservation"),
			"festivalId, productId and a positive headCount required")
		return
	}

	res, err := s.Backend.CreateReservation(r.Context(), req)
	if err != nil {
		sendBackendError(w, r, err, "can't make reservation")
		return
	}
	log.Printf("[INFO] reservation %d for user %d, product %d", res.ID, user.ID, req.ProductID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

// PUT /reservations/{id}/cancel
func (s *Server) cancelReservationCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad reservation id")
		return
	}
	user := s.Session.Current()
	res, err := s.Backend.CancelReservation(r.Context(), id, user.ID)
	if err != nil {
		sendBackendError(w, r, err, "can't cancel reservation")
		return
	}
	log.Printf("[INFO] reservation %d canceled by user %d", id, user.ID)
	render.JSON(w, r, res)
}

// POST /reviews {festivalId, rating, content}
func (s *Server) createReviewCtrl(w http.ResponseWriter, r *http.Request) {
	user := s.Session.Current()
	req, err := s.decodeReview(r, user.ID)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, err.Error())
		return
	}

	ok, err := s.Backend.CheckReviewEligibility(r.Context(), user.ID, req.FestivalID)
	if err != nil {
		sendBackendError(w, r, err, "can't check review eligibility")
		return
	}
	if !ok {
		sendError(w, r, http.StatusForbidden, errors.Errorf("user %d can't review %d", user.ID, req.FestivalID),
			"only visitors with a reservation can review")
		return
	}

	rv, err := s.Backend.CreateReview(r.Context(), req)
	if err != nil {
		sendBackendError(w, r, err, "can't create review")
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, s.Moderator.Moderate(r.Context(), rv))
}

// PUT /reviews/{id} {festivalId, rating, content}
func (s *Server) updateReviewCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad review id")
		return
	}
	user := s.Session.Current()
	req, err := s.decodeReview(r, user.ID)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, err.Error())
		return
	}

	rv, err := s.Backend.UpdateReview(r.Context(), id, req)
	if err != nil {
		sendBackendError(w, r, err, "can't update review")
		return
	}
	render.JSON(w, r, s.Moderator.Moderate(r.Context(), rv))
}

// DELETE /reviews/{id}, admins can delete any review
func (s *Server) deleteReviewCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad review id")
		return
	}
	user := s.Session.Current()
	if user.Admin {
		err = s.Backend.DeleteReviewAdmin(r.Context(), id)
	} else {
		err = s.Backend.DeleteReview(r.Context(), id, user.ID)
	}
	if err != nil {
		sendBackendError(w, r, err, "can't delete review")
		return
	}
	log.Printf("[INFO] review %d deleted by user %d", id, user.ID)
	render.NoContent(w, r)
}

// decodeReview reads and checks the review body, content is sanitized
func (s *Server) decodeReview(r *http.Request, userID int64) (models.ReviewRequest, error) {
	req := models.ReviewRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return req, errors.Wrap(err, "can't decode review")
	}
	req.UserID = userID
	req.Content = s.Moderator.Sanitize(req.Content)
	switch {
	case req.FestivalID <= 0:
		return req, errors.New("festivalId required")
	case req.Rating < 1 || req.Rating > 5:
		return req, errors.New("rating must be between 1 and 5")
	case strings.TrimSpace(req.Content) == "":
		return req, errors.New("content required")
	}
	return req, nil
}

// GET /admin/reviews
func (s *Server) allReviewsCtrl(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.Backend.GetAllReviews(r.Context())
	if err != nil {
		sendBackendError(w, r, err, "can't get reviews")
		return
	}
	render.JSON(w, r, s.Moderator.ModerateAll(r.Context(), reviews))
}

// POST /admin/festivals
func (s *Server) createFestivalCtrl(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFestival(r)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, err.Error())
		return
	}
	created, err := s.Backend.CreateFestival(r.Context(), gateway.NewFestivalRequest(f))
	if err != nil {
		sendBackendError(w, r, err, "can't create festival")
		return
	}
	log.Printf("[INFO] festival %d %q created", created.ID, created.Title)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// PUT /admin/festivals/{id}
func (s *Server) updateFestivalCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad festival id")
		return
	}
	f, err := decodeFestival(r)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, err.Error())
		return
	}
	updated, err := s.Backend.UpdateFestival(r.Context(), id, gateway.NewFestivalRequest(f))
	if err != nil {
		sendBackendError(w, r, err, "can't update festival")
		return
	}
	log.Printf("[INFO] festival %d updated", id)
	render.JSON(w, r, updated)
}

// DELETE /admin/festivals/{id}
func (s *Server) deleteFestivalCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad festival id")
		return
	}
	if err := s.Backend.DeleteFestival(r.Context(), id); err != nil {
		sendBackendError(w, r, err, "can't delete festival")
		return
	}
	log.Printf("[INFO] festival %d deleted", id)
	render.NoContent(w, r)
}

func decodeFestival(r *http.Request) (models.Festival, error) {
	f := models.Festival{}
	if err := render.DecodeJSON(r.Body, &f); err != nil {
		return f, errors.Wrap(err, "can't decode festival")
	}
	f.Title = strings.TrimSpace(f.Title)
	switch {
	case f.Title == "":
		return f, errors.New("title required")
	case f.StartDate == "" || f.EndDate == "":
		return f, errors.New("startDate and endDate required")
	case (f.Lat == nil) != (f.Lng == nil):
		return f, errors.New("lat and lng go together")
	}
	return f, nil
}
