package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dorominseok/festival-pj/app/models"
)

// GetWishlist returns the user's wishlist entries as stored by the backend
func (c *Client) GetWishlist(ctx context.Context, userID int64) ([]models.WishlistEntry, error) {
	var ps []wishlistPayload
	if err := c.do(ctx, c.api(http.MethodGet, idPath("/wishlist/%d", userID)), &ps); err != nil {
		return nil, err
	}
	res := make([]models.WishlistEntry, 0, len(ps))
	for _, p := range ps {
		res = append(res, p.model())
	}
	return res, nil
}

// ToggleWishlist flips the festival's membership for the user on the backend
func (c *Client) ToggleWishlist(ctx context.Context, userID, festivalID int64) error {
	return c.do(ctx, c.api(http.MethodPost, idPath("/wishlist/%d/%d", userID, festivalID)), nil)
}

// CreateReservation books a product
func (c *Client) CreateReservation(ctx context.Context, req models.ReservationRequest) (models.Reservation, error) {
	r := c.api(http.MethodPost, "/reservations")
	r.body = req
	var p reservationPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Reservation{}, err
	}
	return p.model(), nil
}

// GetUserReservations lists the user's bookings
func (c *Client) GetUserReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	var ps []reservationPayload
	if err := c.do(ctx, c.api(http.MethodGet, idPath("/reservations/user/%d", userID)), &ps); err != nil {
		return nil, err
	}
	res := make([]models.Reservation, 0, len(ps))
	for _, p := range ps {
		res = append(res, p.model())
	}
	return res, nil
}

// CancelReservation cancels the user's booking and returns its new state
func (c *Client) CancelReservation(ctx context.Context, reservationID, userID int64) (models.Reservation, error) {
	r := c.api(http.MethodPut, idPath("/reservations/%d/cancel", reservationID))
	r.query = url.Values{"userId": []string{strconv.FormatInt(userID, 10)}}
	var resp struct {
		Success     bool               `json:"success"`
		Message     string             `json:"message"`
		Reservation reservationPayload `json:"reservation"`
	}
	if err := c.do(ctx, r, &resp); err != nil {
		return models.Reservation{}, err
	}
	return resp.Reservation.model(), nil
}
