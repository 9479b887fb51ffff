// Package api exposes the festival client core over HTTP: session, composed feed,
// wishlist, bookings, reviews, admin festival management and a websocket change stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth_chi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/gateway"
	"github.com/dorominseok/festival-pj/app/models"
	"github.com/dorominseok/festival-pj/app/proc"
	"github.com/dorominseok/festival-pj/app/review"
	"github.com/dorominseok/festival-pj/app/session"
	"github.com/dorominseok/festival-pj/app/wishlist"
)

// Backend is the gateway part used by handlers
type Backend interface {
	Signup(ctx context.Context, req gateway.SignupRequest) (models.User, error)
	UpdateUser(ctx context.Context, userID int64, upd gateway.UserUpdate) (models.User, error)

	GetFestivals(ctx context.Context) ([]models.Festival, error)
	GetUpcomingFestivals(ctx context.Context) ([]models.Festival, error)
	GetRecommendedFestivals(ctx context.Context, userID int64) ([]models.Festival, error)
	GetFestival(ctx context.Context, id int64) (models.Festival, error)
	GetFestivalProducts(ctx context.Context, festivalID int64) ([]models.Product, error)
	CreateFestival(ctx context.Context, req gateway.FestivalRequest) (models.Festival, error)
	UpdateFestival(ctx context.Context, id int64, req gateway.FestivalRequest) (models.Festival, error)
	DeleteFestival(ctx context.Context, id int64) error

	CreateReservation(ctx context.Context, req models.ReservationRequest) (models.Reservation, error)
	GetUserReservations(ctx context.Context, userID int64) ([]models.Reservation, error)
	CancelReservation(ctx context.Context, reservationID, userID int64) (models.Reservation, error)

	GetFestivalReviews(ctx context.Context, festivalID int64) ([]models.Review, error)
	GetUserReviews(ctx context.Context, userID int64) ([]models.Review, error)
	GetAllReviews(ctx context.Context) ([]models.Review, error)
	CheckReviewEligibility(ctx context.Context, userID, festivalID int64) (bool, error)
	CreateReview(ctx context.Context, req models.ReviewRequest) (models.Review, error)
	UpdateReview(ctx context.Context, reviewID int64, req models.ReviewRequest) (models.Review, error)
	DeleteReview(ctx context.Context, reviewID, userID int64) error
	DeleteReviewAdmin(ctx context.Context, reviewID int64) error
}

// Snapshots is the persisted catalog used when the backend is down
type Snapshots interface {
	SaveFestivals(list []models.Festival, max int) (int, error)
	Festivals() ([]models.Festival, time.Time, error)
	Products(festivalID int64) ([]models.Product, error)
}

// Server is a rest access server
type Server struct {
	Version   string
	Conf      proc.Conf
	Backend   Backend
	Session   *session.Store
	Wishlist  *wishlist.Store
	Snapshots Snapshots // optional
	Moderator *review.Moderator
	Now       func() time.Time // nil for time.Now

	httpServer *http.Server
	lock       sync.Mutex
	streams    streamRegistry
}

// Run starts http server and closes it with all stream connections when ctx canceled
func (s *Server) Run(ctx context.Context, port int) error {
	log.Printf("[INFO] activate rest server on :%d", port)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		s.streams.closeAll()
		s.lock.Lock()
		defer s.lock.Unlock()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] http shutdown error, %s", err)
		}
		log.Print("[DEBUG] http server shutdown completed")
	}()

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Wrap(err, "rest server failed")
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(rest.AppInfo("festival-pj", "dorominseok", s.Version), rest.Ping)
	router.Use(logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler)

	router.Route("/api/v1", func(rapi chi.Router) {
		rapi.Use(tollbooth_chi.LimitHandler(tollbooth.NewLimiter(s.Conf.Server.RateLimit, nil)))

		rapi.Post("/login", s.loginCtrl)
		rapi.Post("/logout", s.logoutCtrl)
		rapi.Post("/signup", s.signupCtrl)

		rapi.Get("/feed", s.feedCtrl)
		rapi.Get("/festivals/upcoming", s.upcomingCtrl)
		rapi.Get("/festivals/{id}", s.festivalCtrl)

		rapi.Get("/wishlist", s.wishlistCtrl)
		rapi.Post("/wishlist/{id}", s.toggleWishlistCtrl)

		rapi.Get("/stream", s.streamCtrl)

		rapi.Group(func(ruser chi.Router) {
			ruser.Use(s.authRequired)
			ruser.Get("/me", s.meCtrl)
			ruser.Put("/me", s.updateMeCtrl)
			ruser.Get("/me/reviews", s.myReviewsCtrl)

			ruser.Get("/reservations", s.reservationsCtrl)
			ruser.Post("/reservations", s.reserveCtrl)
			ruser.Put("/reservations/{id}/cancel", s.cancelReservationCtrl)

			ruser.Post("/reviews", s.createReviewCtrl)
			ruser.Put("/reviews/{id}", s.updateReviewCtrl)
			ruser.Delete("/reviews/{id}", s.deleteReviewCtrl)
		})

		rapi.Route("/admin", func(radmin chi.Router) {
			radmin.Use(s.authRequired, s.adminOnly)
			radmin.Get("/reviews", s.allReviewsCtrl)
			radmin.Post("/festivals", s.createFestivalCtrl)
			radmin.Put("/festivals/{id}", s.updateFestivalCtrl)
			radmin.Delete("/festivals/{id}", s.deleteFestivalCtrl)
		})
	})

	return router
}

// authRequired rejects requests without a session user
func (s *Server) authRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Session.Current() == nil {
			sendError(w, r, http.StatusUnauthorized, errors.New("no session"), "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly rejects non-admin users, must run after authRequired
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := s.Session.Current(); u == nil || !u.Admin {
			sendError(w, r, http.StatusForbidden, errors.New("not admin"), "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// sendError logs and renders {"error": msg}
func sendError(w http.ResponseWriter, r *http.Request, code int, err error, msg string) {
	log.Printf("[DEBUG] %s %s, %d %s, %v", r.Method, r.URL.Path, code, msg, err)
	render.Status(r, code)
	render.JSON(w, r, rest.JSON{"error": msg})
}

// sendBackendError maps gateway errors to a response code
func sendBackendError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var se *gateway.StatusError
	switch {
	case gateway.IsUnauthorized(err) && errors.As(err, &se):
		sendError(w, r, se.Code, err, msg)
	case gateway.IsNotFound(err):
		sendError(w, r, http.StatusNotFound, err, msg)
	case errors.As(err, &se) && se.Code == http.StatusBadRequest:
		sendError(w, r, http.StatusBadRequest, err, msg)
	default:
		log.Printf("[WARN] %s %s, %s, %v", r.Method, r.URL.Path, msg, err)
		sendError(w, r, http.StatusBadGateway, err, msg)
	}
}

// idParam parses a positive int64 url param
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("bad %s %q", name, chi.URLParam(r, name))
	}
	return id, nil
}
