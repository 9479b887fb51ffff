package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/dorominseok/festival-pj/app/gateway"
	"github.com/dorominseok/festival-pj/app/models"
)

// fakeBackend is an in-memory festival backend and classifier
type fakeBackend struct {
	mu           sync.Mutex
	users        map[string]models.User // by email, password is always "secret"
	festivals    []models.Festival
	festErr      error
	upcoming     []models.Festival
	recommended  []models.Festival
	recErr       error
	products     map[int64][]models.Product
	prodErr      error
	wishlists    map[int64][]int64
	reservations []models.Reservation
	reviews      []models.Review
	eligible     bool
	calls        []string
	nextID       int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: map[string]models.User{
			"user@example.com":  {ID: 1, Name: "dana", Email: "user@example.com", Interests: []string{"music"}},
			"admin@example.com": {ID: 2, Name: "root", Email: "admin@example.com", Admin: true},
		},
		products:  map[int64][]models.Product{},
		wishlists: map[int64][]int64{},
		nextID:    100,
	}
}

func (b *fakeBackend) call(name string) {
	b.calls = append(b.calls, name)
}

func (b *fakeBackend) called(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func statusErr(code int) error {
	return &gateway.StatusError{Method: "GET", Path: "/fake", Code: code, Body: http.StatusText(code)}
}

func (b *fakeBackend) Login(_ context.Context, email, password string) (models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[email]
	if !ok || password != "secret" {
		return models.User{}, statusErr(http.StatusUnauthorized)
	}
	return u, nil
}

func (b *fakeBackend) Signup(_ context.Context, req gateway.SignupRequest) (models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[req.Email]; ok {
		return models.User{}, statusErr(http.StatusBadRequest)
	}
	b.nextID++
	u := models.User{ID: b.nextID, Name: req.Name, Email: req.Email, Interests: req.Interests}
	b.users[req.Email] = u
	return u, nil
}

func (b *fakeBackend) UpdateUser(_ context.Context, userID int64, upd gateway.UserUpdate) (models.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for email, u := range b.users {
		if u.ID != userID {
			continue
		}
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Interests != nil {
			u.Interests = *upd.Interests
		}
		u.Admin = false // role not reported back
		b.users[email] = u
		return u, nil
	}
	return models.User{}, statusErr(http.StatusNotFound)
}

func (b *fakeBackend) GetFestivals(context.Context) ([]models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.festErr != nil {
		return nil, b.festErr
	}
	return append([]models.Festival{}, b.festivals...), nil
}

func (b *fakeBackend) GetUpcomingFestivals(context.Context) ([]models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Festival{}, b.upcoming...), nil
}

func (b *fakeBackend) GetRecommendedFestivals(_ context.Context, userID int64) ([]models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("recommended")
	if b.recErr != nil {
		return nil, b.recErr
	}
	return append([]models.Festival{}, b.recommended...), nil
}

func (b *fakeBackend) GetFestival(_ context.Context, id int64) (models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.festErr != nil {
		return models.Festival{}, b.festErr
	}
	for _, f := range b.festivals {
		if f.ID == id {
			return f, nil
		}
	}
	return models.Festival{}, statusErr(http.StatusNotFound)
}

func (b *fakeBackend) GetFestivalProducts(_ context.Context, festivalID int64) ([]models.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prodErr != nil {
		return nil, b.prodErr
	}
	return b.products[festivalID], nil
}

func (b *fakeBackend) CreateFestival(_ context.Context, req gateway.FestivalRequest) (models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	f := models.Festival{ID: b.nextID, Title: req.Name, Categories: models.SplitTags(req.Categories),
		StartDate: req.StartDate, EndDate: req.EndDate, Lat: req.Lat, Lng: req.Lng}
	b.festivals = append(b.festivals, f)
	return f, nil
}

func (b *fakeBackend) UpdateFestival(_ context.Context, id int64, req gateway.FestivalRequest) (models.Festival, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.festivals {
		if f.ID == id {
			f.Title, f.StartDate, f.EndDate = req.Name, req.StartDate, req.EndDate
			f.Categories = models.SplitTags(req.Categories)
			b.festivals[i] = f
			return f, nil
		}
	}
	return models.Festival{}, statusErr(http.StatusNotFound)
}

func (b *fakeBackend) DeleteFestival(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.festivals {
		if f.ID == id {
			b.festivals = append(b.festivals[:i:i], b.festivals[i+1:]...)
			return nil
		}
	}
	return statusErr(http.StatusNotFound)
}

func (b *fakeBackend) CreateReservation(_ context.Context, req models.ReservationRequest) (models.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	res := models.Reservation{ID: b.nextID, UserID: req.UserID, FestivalID: req.FestivalID, ProductID: req.ProductID,
		Date: req.Date, Time: req.Time, HeadCount: req.HeadCount, Status: "RESERVED"}
	b.reservations = append(b.reservations, res)
	return res, nil
}

func (b *fakeBackend) GetUserReservations(_ context.Context, userID int64) ([]models.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := []models.Reservation{}
	for _, r := range b.reservations {
		if r.UserID == userID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (b *fakeBackend) CancelReservation(_ context.Context, reservationID, userID int64) (models.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.reservations {
		if r.ID == reservationID && r.UserID == userID {
			b.reservations[i].Status = "CANCELLED"
			return b.reservations[i], nil
		}
	}
	return models.Reservation{}, statusErr(http.StatusNotFound)
}

func (b *fakeBackend) GetFestivalReviews(_ context.Context, festivalID int64) ([]models.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := []models.Review{}
	for _, r := range b.reviews {
		if r.FestivalID == festivalID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (b *fakeBackend) GetUserReviews(_ context.Context, userID int64) ([]models.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := []models.Review{}
	for _, r := range b.reviews {
		if r.UserID == userID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (b *fakeBackend) GetAllReviews(context.Context) ([]models.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Review{}, b.reviews...), nil
}

func (b *fakeBackend) CheckReviewEligibility(context.Context, int64, int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eligible, nil
}

func (b *fakeBackend) CreateReview(_ context.Context, req models.ReviewRequest) (models.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	rv := models.Review{ID: b.nextID, UserID: req.UserID, FestivalID: req.FestivalID, Rating: req.Rating, Content: req.Content}
	b.reviews = append(b.reviews, rv)
	return rv, nil
}

func (b *fakeBackend) UpdateReview(_ context.Context, reviewID int64, req models.ReviewRequest) (models.Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.reviews {
		if r.ID == reviewID && r.UserID == req.UserID {
			b.reviews[i].Rating, b.reviews[i].Content = req.Rating, req.Content
			return b.reviews[i], nil
		}
	}
	return models.Review{}, statusErr(http.StatusForbidden)
}

func (b *fakeBackend) DeleteReview(_ context.Context, reviewID, userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("delete-review")
	for i, r := range b.reviews {
		if r.ID == reviewID && r.UserID == userID {
			b.reviews = append(b.reviews[:i:i], b.reviews[i+1:]...)
			return nil
		}
	}
	return statusErr(http.StatusForbidden)
}

func (b *fakeBackend) DeleteReviewAdmin(_ context.Context, reviewID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.call("delete-review-admin")
	for i, r := range b.reviews {
		if r.ID == reviewID {
			b.reviews = append(b.reviews[:i:i], b.reviews[i+1:]...)
			return nil
		}
	}
	return statusErr(http.StatusNotFound)
}

func (b *fakeBackend) GetWishlist(_ context.Context, userID int64) ([]models.WishlistEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := []models.WishlistEntry{}
	for _, id := range b.wishlists[userID] {
		res = append(res, models.WishlistEntry{UserID: userID, FestivalID: id, Added: true})
	}
	return res, nil
}

func (b *fakeBackend) ToggleWishlist(_ context.Context, userID, festivalID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.wishlists[userID]
	for i, id := range list {
		if id == festivalID {
			b.wishlists[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	b.wishlists[userID] = append(list, festivalID)
	return nil
}

func (b *fakeBackend) ClassifyText(_ context.Context, text string) (models.Toxicity, error) {
	if strings.Contains(text, "awful") {
		return models.Toxicity{LabelID: 1, LabelName: "insult", Score: 0.95}, nil
	}
	return models.Toxicity{LabelID: 10, LabelName: "clean", Score: 0.9}, nil
}
