// Package models contains canonical client-side records.
// Gateway payload variants are mapped into these shapes in the gateway package,
// nothing else branches on backend field names.
package models

import "strings"

// User presents the logged-in identity
type User struct {
	ID        int64    `json:"userId"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Interests []string `json:"interests"`
	JoinDate  string   `json:"joinDate,omitempty"`
	Admin     bool     `json:"admin"`
}

// Clone returns a deep copy of the user
func (u User) Clone() User {
	res := u
	if u.Interests != nil {
		res.Interests = append([]string(nil), u.Interests...)
	}
	return res
}

// Festival presents a festival snapshot as fetched from the backend
type Festival struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	Region        string   `json:"region"`
	Categories    []string `json:"categories"`
	AverageRating *float64 `json:"averageRating,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	ImageURL      string   `json:"imageUrl,omitempty"`
}

// HasCoords reports whether both coordinates are known
func (f Festival) HasCoords() bool {
	return f.Lat != nil && f.Lng != nil
}

// Rating returns the average rating, 0 if unrated
func (f Festival) Rating() float64 {
	if f.AverageRating == nil {
		return 0
	}
	return *f.AverageRating
}

// WishlistEntry presents a (user, festival) pairing persisted by the backend
type WishlistEntry struct {
	ID               int64  `json:"wishlistId"`
	UserID           int64  `json:"userId"`
	FestivalID       int64  `json:"festivalId"`
	FestivalName     string `json:"festivalName,omitempty"`
	FestivalImageURL string `json:"festivalImageUrl,omitempty"`
	Added            bool   `json:"added"`
}

// Product presents a paid activity tied to a festival
type Product struct {
	ID            int64  `json:"productId"`
	FestivalID    int64  `json:"festivalId"`
	FestivalName  string `json:"festivalName,omitempty"`
	Name          string `json:"name"`
	Price         int    `json:"price"`
	OriginalPrice *int   `json:"originalPrice,omitempty"`
	Stock         int    `json:"stock"`
	ProductType   string `json:"productType"`
	ImageURL      string `json:"imageUrl,omitempty"`
	Description   string `json:"description,omitempty"`
}

// ReservationRequest is the booking payload
type ReservationRequest struct {
	UserID       int64    `json:"userId"`
	FestivalID   int64    `json:"festivalId"`
	ProductID    int64    `json:"productId"`
	DiscountRate *float64 `json:"discountRate,omitempty"`
	Date         string   `json:"date"`
	Time         string   `json:"time"`
	HeadCount    int      `json:"headCount"`
}

// Reservation presents a booking
type Reservation struct {
	ID              int64    `json:"reservationId"`
	UserID          int64    `json:"userId"`
	FestivalID      int64    `json:"festivalId"`
	ProductID       int64    `json:"productId"`
	FestivalName    string   `json:"festivalName,omitempty"`
	ProductName     string   `json:"productName,omitempty"`
	ProductImageURL string   `json:"productImageUrl,omitempty"`
	DiscountRate    *float64 `json:"discountRate,omitempty"`
	ReservedAt      string   `json:"reservationDate,omitempty"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	HeadCount       int      `json:"headCount"`
	Status          string   `json:"status"`
}

// ReviewRequest is the create/update review payload
type ReviewRequest struct {
	UserID     int64   `json:"userId"`
	FestivalID int64   `json:"festivalId"`
	Rating     float64 `json:"rating"`
	Content    string  `json:"content"`
}

// Review presents a festival review with client-side moderation hints
type Review struct {
	ID           int64     `json:"reviewId"`
	UserID       int64     `json:"userId"`
	FestivalID   int64     `json:"festivalId"`
	Rating       float64   `json:"rating"`
	Content      string    `json:"content"`
	UserName     string    `json:"userName,omitempty"`
	FestivalName string    `json:"festivalName,omitempty"`
	ReviewDate   string    `json:"reviewDate,omitempty"`
	LastModified string    `json:"lastModified,omitempty"`
	Toxic        bool      `json:"isToxic"`
	Toxicity     *Toxicity `json:"toxicity,omitempty"`
}

// Toxicity is the classifier verdict for a piece of text
type Toxicity struct {
	LabelID   int     `json:"labelId"`
	LabelName string  `json:"labelName"`
	Score     float64 `json:"score"`
}

// SplitTags splits a legacy comma-joined tag string, dropping blanks
func SplitTags(s string) []string {
	var res []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			res = append(res, t)
		}
	}
	return res
}
