package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dorominseok/festival-pj/app/models"
)

// FestivalRequest is the admin create/update payload.
// The backend takes categories comma-joined and snake_case dates.
type FestivalRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Region      string   `json:"region"`
	Categories  string   `json:"categories"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// NewFestivalRequest joins tags the way the backend expects them
func NewFestivalRequest(f models.Festival) FestivalRequest {
	return FestivalRequest{
		Name:        f.Title,
		Description: f.Description,
		Location:    f.Location,
		Region:      f.Region,
		Categories:  strings.Join(cleanTags(f.Categories), ","),
		Lat:         f.Lat,
		Lng:         f.Lng,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
		ImageURL:    f.ImageURL,
	}
}

// GetFestivals returns all festivals in backend order
func (c *Client) GetFestivals(ctx context.Context) ([]models.Festival, error) {
	return c.festivalList(ctx, c.api(http.MethodGet, "/festivals"))
}

// GetUpcomingFestivals returns festivals that have not started yet
func (c *Client) GetUpcomingFestivals(ctx context.Context) ([]models.Festival, error) {
	return c.festivalList(ctx, c.api(http.MethodGet, "/festivals/upcoming"))
}

// GetRecommendedFestivals returns the backend's recommendation for the user
func (c *Client) GetRecommendedFestivals(ctx context.Context, userID int64) ([]models.Festival, error) {
	r := c.api(http.MethodGet, "/festivals/recommended")
	r.query = url.Values{"userId": []string{strconv.FormatInt(userID, 10)}}
	return c.festivalList(ctx, r)
}

// GetFestival returns a single festival
func (c *Client) GetFestival(ctx context.Context, id int64) (models.Festival, error) {
	var p festivalPayload
	if err := c.do(ctx, c.api(http.MethodGet, idPath("/festivals/%d", id)), &p); err != nil {
		return models.Festival{}, err
	}
	return p.model(), nil
}

// CreateFestival adds a festival, admin only on the backend side
func (c *Client) CreateFestival(ctx context.Context, req FestivalRequest) (models.Festival, error) {
	r := c.api(http.MethodPost, "/festivals")
	r.body = req
	var p festivalPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Festival{}, err
	}
	return p.model(), nil
}

// UpdateFestival replaces festival fields
func (c *Client) UpdateFestival(ctx context.Context, id int64, req FestivalRequest) (models.Festival, error) {
	r := c.api(http.MethodPut, idPath("/festivals/%d", id))
	r.body = req
	var p festivalPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Festival{}, err
	}
	return p.model(), nil
}

// DeleteFestival removes a festival
func (c *Client) DeleteFestival(ctx context.Context, id int64) error {
	return c.do(ctx, c.api(http.MethodDelete, idPath("/festivals/%d", id)), nil)
}

// GetFestivalProducts returns activities sold for the festival
func (c *Client) GetFestivalProducts(ctx context.Context, festivalID int64) ([]models.Product, error) {
	var ps []productPayload
	if err := c.do(ctx, c.api(http.MethodGet, idPath("/festivals/%d/products", festivalID)), &ps); err != nil {
		return nil, err
	}
	res := make([]models.Product, 0, len(ps))
	for _, p := range ps {
		res = append(res, p.model())
	}
	return res, nil
}

// GetProduct returns a single activity
func (c *Client) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	var p productPayload
	if err := c.do(ctx, c.api(http.MethodGet, idPath("/products/%d", id)), &p); err != nil {
		return models.Product{}, err
	}
	return p.model(), nil
}

func (c *Client) festivalList(ctx context.Context, r request) ([]models.Festival, error) {
	var ps []festivalPayload
	if err := c.do(ctx, r, &ps); err != nil {
		return nil, err
	}
	res := make([]models.Festival, 0, len(ps))
	for _, p := range ps {
		res = append(res, p.model())
	}
	return res, nil
}
