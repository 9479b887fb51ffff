package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/syncs"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/feed"
	"github.com/dorominseok/festival-pj/app/models"
)

// GET /feed?q=&view=ongoing|ended&sort=default|nearby|rating|recommended
func (s *Server) feedCtrl(w http.ResponseWriter, r *http.Request) {
	festivals, err := s.catalog(r.Context())
	if err != nil {
		sendBackendError(w, r, err, "can't get festivals")
		return
	}

	req := feed.Request{
		Festivals:   festivals,
		Search:      r.URL.Query().Get("q"),
		View:        feed.ParseView(r.URL.Query().Get("view")),
		Sort:        feed.ParseSort(r.URL.Query().Get("sort")),
		Now:         s.now(),
		Origin:      s.Conf.Feed.Origin,
		EndedWindow: s.Conf.Feed.EndedWindowDays,
	}

	if user := s.Session.Current(); user != nil {
		req.Interests = user.Interests
		if req.Sort == feed.SortRecommended {
			rec, err := s.Backend.GetRecommendedFestivals(r.Context(), user.ID)
			if err != nil {
				log.Printf("[WARN] can't get recommended festivals for user %d, raw list used, %v", user.ID, err)
			} else {
				req.Recommended = rec
			}
		}
	}

	render.JSON(w, r, feed.Compose(req))
}

// GET /festivals/upcoming
func (s *Server) upcomingCtrl(w http.ResponseWriter, r *http.Request) {
	festivals, err := s.Backend.GetUpcomingFestivals(r.Context())
	if err != nil {
		sendBackendError(w, r, err, "can't get upcoming festivals")
		return
	}
	render.JSON(w, r, festivals)
}

type festivalDetail struct {
	Festival   models.Festival  `json:"festival"`
	Reviews    []models.Review  `json:"reviews"`
	Products   []models.Product `json:"products"`
	Wishlisted bool             `json:"wishlisted"`
	CanReview  bool             `json:"canReview"`
}

// GET /festivals/{id} returns the festival with moderated reviews and products.
// Only the festival itself is required, other parts degrade to empty.
func (s *Server) festivalCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad festival id")
		return
	}

	ctx := r.Context()
	user := s.Session.Current()
	res := festivalDetail{Reviews: []models.Review{}, Products: []models.Product{}, Wishlisted: s.Wishlist.IsWishlisted(id)}
	var festErr error
	var mu sync.Mutex

	swg := syncs.NewSizedGroup(4)
	swg.Go(func(context.Context) {
		f, err := s.Backend.GetFestival(ctx, id)
		mu.Lock()
		res.Festival, festErr = f, err
		mu.Unlock()
	})
	swg.Go(func(context.Context) {
		reviews, err := s.Backend.GetFestivalReviews(ctx, id)
		if err != nil {
			log.Printf("[WARN] can't get reviews of festival %d, %v", id, err)
			return
		}
		reviews = s.Moderator.ModerateAll(ctx, reviews)
		mu.Lock()
		res.Reviews = reviews
		mu.Unlock()
	})
	swg.Go(func(context.Context) {
		products := s.products(ctx, id)
		mu.Lock()
		res.Products = products
		mu.Unlock()
	})
	if user != nil {
		swg.Go(func(context.Context) {
			ok, err := s.Backend.CheckReviewEligibility(ctx, user.ID, id)
			if err != nil {
				log.Printf("[WARN] can't check review eligibility of user %d for %d, %v", user.ID, id, err)
				return
			}
			mu.Lock()
			res.CanReview = ok
			mu.Unlock()
		})
	}
	swg.Wait()

	if festErr != nil {
		sendBackendError(w, r, festErr, "can't get festival")
		return
	}
	render.JSON(w, r, res)
}

// GET /wishlist
func (s *Server) wishlistCtrl(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, rest.JSON{"state": s.Wishlist.State().String(), "festivals": s.Wishlist.Wishlist()})
}

// POST /wishlist/{id} flips membership, the response has the optimistic list
func (s *Server) toggleWishlistCtrl(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		sendError(w, r, http.StatusBadRequest, err, "bad festival id")
		return
	}

	festivals, err := s.catalog(r.Context())
	if err != nil {
		sendBackendError(w, r, err, "can't get festivals")
		return
	}
	var fest *models.Festival
	for i := range festivals {
		if festivals[i].ID == id {
			fest = &festivals[i]
			break
		}
	}
	if fest == nil {
		sendError(w, r, http.StatusNotFound, errors.Errorf("festival %d not in catalog", id), "festival not found")
		return
	}

	list := s.Wishlist.Toggle(*fest)
	wishlisted := false
	for _, f := range list {
		if f.ID == id {
			wishlisted = true
			break
		}
	}
	render.JSON(w, r, rest.JSON{"wishlisted": wishlisted, "festivals": list})
}

// catalog fetches all festivals and refreshes the snapshot. When the backend
// fails the snapshot is returned instead, if there is one.
func (s *Server) catalog(ctx context.Context) ([]models.Festival, error) {
	festivals, err := s.Backend.GetFestivals(ctx)
	if err == nil {
		if s.Snapshots != nil {
			if _, e := s.Snapshots.SaveFestivals(festivals, s.Conf.System.MaxKeepInDB); e != nil {
				log.Printf("[WARN] can't save catalog snapshot, %v", e)
			}
		}
		return festivals, nil
	}

	if s.Snapshots == nil {
		return nil, err
	}
	snap, savedAt, e := s.Snapshots.Festivals()
	if e != nil {
		log.Printf("[WARN] no catalog snapshot to fall back to, %v", e)
		return nil, err
	}
	log.Printf("[WARN] backend failed, serving catalog snapshot from %s, %v", savedAt.Format("2006-01-02 15:04:05"), err)
	return snap, nil
}

// products of the festival from the backend, falling back to the snapshot, empty if neither has them
func (s *Server) products(ctx context.Context, festivalID int64) []models.Product {
	products, err := s.Backend.GetFestivalProducts(ctx, festivalID)
	if err == nil && products != nil {
		return products
	}
	if err == nil {
		return []models.Product{}
	}
	log.Printf("[WARN] can't get products of festival %d, %v", festivalID, err)
	if s.Snapshots != nil {
		if snap, e := s.Snapshots.Products(festivalID); e == nil {
			return snap
		}
	}
	return []models.Product{}
}
