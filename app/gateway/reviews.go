package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dorominseok/festival-pj/app/models"
)

// GetFestivalReviews lists reviews of the festival
func (c *Client) GetFestivalReviews(ctx context.Context, festivalID int64) ([]models.Review, error) {
	return c.reviewList(ctx, c.api(http.MethodGet, idPath("/reviews/festival/%d", festivalID)))
}

// GetUserReviews lists reviews written by the user
func (c *Client) GetUserReviews(ctx context.Context, userID int64) ([]models.Review, error) {
	return c.reviewList(ctx, c.api(http.MethodGet, idPath("/reviews/user/%d", userID)))
}

// GetAllReviews lists every review, used by admin screens
func (c *Client) GetAllReviews(ctx context.Context) ([]models.Review, error) {
	return c.reviewList(ctx, c.api(http.MethodGet, "/reviews/all"))
}

// CheckReviewEligibility tells if the user has a reservation for the festival
func (c *Client) CheckReviewEligibility(ctx context.Context, userID, festivalID int64) (bool, error) {
	r := c.api(http.MethodGet, "/reviews/eligible")
	r.query = url.Values{
		"userId":     []string{strconv.FormatInt(userID, 10)},
		"festivalId": []string{strconv.FormatInt(festivalID, 10)},
	}
	var ok bool
	if err := c.do(ctx, r, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// CreateReview posts a review
func (c *Client) CreateReview(ctx context.Context, req models.ReviewRequest) (models.Review, error) {
	r := c.api(http.MethodPost, "/reviews")
	r.body = req
	var p reviewPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Review{}, err
	}
	return p.model(), nil
}

// UpdateReview edits the user's own review
func (c *Client) UpdateReview(ctx context.Context, reviewID int64, req models.ReviewRequest) (models.Review, error) {
	r := c.api(http.MethodPut, idPath("/reviews/%d/%d", reviewID, req.UserID))
	r.body = req
	var p reviewPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Review{}, err
	}
	return p.model(), nil
}

// DeleteReview removes the user's own review
func (c *Client) DeleteReview(ctx context.Context, reviewID, userID int64) error {
	return c.do(ctx, c.api(http.MethodDelete, idPath("/reviews/%d/%d", reviewID, userID)), nil)
}

// DeleteReviewAdmin removes any review
func (c *Client) DeleteReviewAdmin(ctx context.Context, reviewID int64) error {
	return c.do(ctx, c.api(http.MethodDelete, idPath("/reviews/%d", reviewID)), nil)
}

// ClassifyText asks the classifier service for a toxicity verdict
func (c *Client) ClassifyText(ctx context.Context, text string) (models.Toxicity, error) {
	r := request{base: c.ClassifierURL, method: http.MethodPost, path: "/classify"}
	r.body = struct {
		Text string `json:"text"`
	}{Text: text}
	var p toxicityPayload
	if err := c.do(ctx, r, &p); err != nil {
		return models.Toxicity{}, err
	}
	return p.model(), nil
}

func (c *Client) reviewList(ctx context.Context, r request) ([]models.Review, error) {
	var ps []reviewPayload
	if err := c.do(ctx, r, &ps); err != nil {
		return nil, err
	}
	res := make([]models.Review, 0, len(ps))
	for _, p := range ps {
		res = append(res, p.model())
	}
	return res, nil
}
