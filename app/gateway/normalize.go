package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/models"
)

// payload types accept every field variant the backend has been seen to send.
// They never leave this package, callers get app/models only.

type userPayload struct {
	UserID      flexInt  `json:"userId"`
	UserIDSnake flexInt  `json:"user_id"`
	ID          flexInt  `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Interests   []string `json:"interests"`
	Interest    *string  `json:"interest"`
	JoinDate    flexDate `json:"joinDate"`
	JoinDate2   flexDate `json:"join_date"`
	Admin       flexBool `json:"admin"`
	IsAdmin     flexBool `json:"isAdmin"`
}

type festivalPayload struct {
	ID             flexInt   `json:"id"`
	FestivalID     flexInt   `json:"festivalId"`
	FestivalID2    flexInt   `json:"festival_id"`
	Title          string    `json:"title"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	Region         string    `json:"region"`
	Categories     []string  `json:"categories"`
	Category       string    `json:"category"`
	AverageRating  flexFloat `json:"averageRating"`
	AverageRating2 flexFloat `json:"average_rating"`
	Lat            flexFloat `json:"lat"`
	Latitude       flexFloat `json:"latitude"`
	Lng            flexFloat `json:"lng"`
	Lon            flexFloat `json:"lon"`
	Longitude      flexFloat `json:"longitude"`
	StartDate      flexDate  `json:"startDate"`
	StartDate2     flexDate  `json:"start_date"`
	EndDate        flexDate  `json:"endDate"`
	EndDate2       flexDate  `json:"end_date"`
	ImageURL       string    `json:"imageUrl"`
	ImageURL2      string    `json:"image_url"`
}

type wishlistPayload struct {
	WishlistID       flexInt  `json:"wishlistId"`
	ID               flexInt  `json:"id"`
	UserID           flexInt  `json:"userId"`
	UserID2          flexInt  `json:"user_id"`
	FestivalID       flexInt  `json:"festivalId"`
	FestivalID2      flexInt  `json:"festival_id"`
	FestivalName     string   `json:"festivalName"`
	FestivalImageURL string   `json:"festivalImageUrl"`
	Added            flexBool `json:"added"`
}

type productPayload struct {
	ProductID     flexInt `json:"productId"`
	ID            flexInt `json:"id"`
	FestivalID    flexInt `json:"festivalId"`
	FestivalName  string  `json:"festivalName"`
	Name          string  `json:"name"`
	Price         flexInt `json:"price"`
	OriginalPrice flexInt `json:"originalPrice"`
	Stock         flexInt `json:"stock"`
	ProductType   string  `json:"productType"`
	ImageURL      string  `json:"imageUrl"`
	Description   string  `json:"description"`
}

type reservationPayload struct {
	ReservationID flexInt   `json:"reservationId"`
	ID            flexInt   `json:"id"`
	UserID        flexInt   `json:"userId"`
	FestivalID    flexInt   `json:"festivalId"`
	ProductID     flexInt   `json:"productId"`
	DiscountRate  flexFloat `json:"discountRate"`
	ReservedAt    string    `json:"reservationDate"`
	FestivalName  string    `json:"festivalName"`
	ProductName   string    `json:"productName"`
	Date          flexDate  `json:"date"`
	Time          string    `json:"time"`
	HeadCount     flexInt   `json:"headCount"`
	Status        string    `json:"status"`
	Product       *struct {
		ProductID flexInt `json:"productId"`
		Name      string  `json:"name"`
		ImageURL  string  `json:"imageUrl"`
		Festival  *struct {
			FestivalID flexInt `json:"festivalId"`
			Name       string  `json:"name"`
		} `json:"festival"`
	} `json:"product"`
}

type reviewPayload struct {
	ReviewID     flexInt   `json:"reviewId"`
	ID           flexInt   `json:"id"`
	Rating       flexFloat `json:"rating"`
	Content      string    `json:"content"`
	ReviewDate   flexDate  `json:"reviewDate"`
	LastModified flexDate  `json:"lastModified"`
	UserID       flexInt   `json:"userId"`
	UserName     string    `json:"userName"`
	FestivalID   flexInt   `json:"festivalId"`
	FestivalName string    `json:"festivalName"`
}

type toxicityPayload struct {
	LabelID    flexInt   `json:"label_id"`
	LabelID2   flexInt   `json:"labelId"`
	LabelName  string    `json:"label_name"`
	LabelName2 string    `json:"labelName"`
	Score      flexFloat `json:"score"`
}

func (p userPayload) model() models.User {
	res := models.User{
		ID:    firstInt(p.UserID, p.UserIDSnake, p.ID),
		Name:  p.Name,
		Email: p.Email,
		Admin: bool(p.Admin) || bool(p.IsAdmin),
	}
	res.JoinDate = firstString(string(p.JoinDate), string(p.JoinDate2))

	// explicit interests list wins, even when empty; legacy single field otherwise
	switch {
	case p.Interests != nil:
		res.Interests = cleanTags(p.Interests)
	case p.Interest != nil:
		res.Interests = models.SplitTags(*p.Interest)
	}
	return res
}

func (p festivalPayload) model() models.Festival {
	res := models.Festival{
		ID:            firstInt(p.ID, p.FestivalID, p.FestivalID2),
		Title:         firstString(p.Title, p.Name),
		Description:   p.Description,
		Location:      p.Location,
		Region:        p.Region,
		AverageRating: firstFloat(p.AverageRating, p.AverageRating2),
		Lat:           firstFloat(p.Lat, p.Latitude),
		Lng:           firstFloat(p.Lng, p.Lon, p.Longitude),
		StartDate:     firstString(string(p.StartDate), string(p.StartDate2)),
		EndDate:       firstString(string(p.EndDate), string(p.EndDate2)),
		ImageURL:      firstString(p.ImageURL, p.ImageURL2),
	}
	res.Categories = cleanTags(p.Categories)
	if len(res.Categories) == 0 {
		res.Categories = models.SplitTags(p.Category)
	}
	return res
}

func (p wishlistPayload) model() models.WishlistEntry {
	return models.WishlistEntry{
		ID:               firstInt(p.WishlistID, p.ID),
		UserID:           firstInt(p.UserID, p.UserID2),
		FestivalID:       firstInt(p.FestivalID, p.FestivalID2),
		FestivalName:     p.FestivalName,
		FestivalImageURL: p.FestivalImageURL,
		Added:            bool(p.Added),
	}
}

func (p productPayload) model() models.Product {
	res := models.Product{
		ID:           firstInt(p.ProductID, p.ID),
		FestivalID:   p.FestivalID.value(),
		FestivalName: p.FestivalName,
		Name:         p.Name,
		Price:        int(p.Price.value()),
		Stock:        int(p.Stock.value()),
		ProductType:  p.ProductType,
		ImageURL:     p.ImageURL,
		Description:  p.Description,
	}
	if p.OriginalPrice.set {
		v := int(p.OriginalPrice.v)
		res.OriginalPrice = &v
	}
	return res
}

func (p reservationPayload) model() models.Reservation {
	res := models.Reservation{
		ID:           firstInt(p.ReservationID, p.ID),
		UserID:       p.UserID.value(),
		FestivalID:   p.FestivalID.value(),
		ProductID:    p.ProductID.value(),
		FestivalName: p.FestivalName,
		ProductName:  p.ProductName,
		DiscountRate: p.DiscountRate.ptr(),
		ReservedAt:   p.ReservedAt,
		Date:         string(p.Date),
		Time:         p.Time,
		HeadCount:    int(p.HeadCount.value()),
		Status:       p.Status,
	}
	if p.Product != nil {
		if res.ProductID == 0 {
			res.ProductID = p.Product.ProductID.value()
		}
		res.ProductName = firstString(res.ProductName, p.Product.Name)
		res.ProductImageURL = p.Product.ImageURL
		if f := p.Product.Festival; f != nil {
			if res.FestivalID == 0 {
				res.FestivalID = f.FestivalID.value()
			}
			res.FestivalName = firstString(res.FestivalName, f.Name)
		}
	}
	return res
}

func (p reviewPayload) model() models.Review {
	return models.Review{
		ID:           firstInt(p.ReviewID, p.ID),
		UserID:       p.UserID.value(),
		FestivalID:   p.FestivalID.value(),
		Rating:       p.Rating.v,
		Content:      p.Content,
		UserName:     p.UserName,
		FestivalName: p.FestivalName,
		ReviewDate:   string(p.ReviewDate),
		LastModified: string(p.LastModified),
	}
}

func (p toxicityPayload) model() models.Toxicity {
	return models.Toxicity{
		LabelID:   int(firstInt(p.LabelID, p.LabelID2)),
		LabelName: firstString(p.LabelName, p.LabelName2),
		Score:     p.Score.v,
	}
}

func cleanTags(tags []string) []string {
	res := []string{}
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			res = append(res, t)
		}
	}
	return res
}

func firstInt(vals ...flexInt) int64 {
	for _, v := range vals {
		if v.set {
			return v.v
		}
	}
	return 0
}

func firstFloat(vals ...flexFloat) *float64 {
	for _, v := range vals {
		if v.set {
			return v.ptr()
		}
	}
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// flexInt accepts a json number or a numeric string, null leaves it unset
type flexInt struct {
	v   int64
	set bool
}

func (f flexInt) value() int64 { return f.v }

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Errorf("invalid integer %s", data)
	}
	f.v, f.set = int64(v), true
	return nil
}

// flexFloat accepts a json number or a numeric string, null leaves it unset
type flexFloat struct {
	v   float64
	set bool
}

func (f flexFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Errorf("invalid number %s", data)
	}
	f.v, f.set = v, true
	return nil
}

// flexBool accepts true/false, 0/1 and their string forms
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch s {
	case "", "null", "false", "0":
		*f = false
	case "true", "1":
		*f = true
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Errorf("invalid bool %s", data)
		}
		*f = n != 0
	}
	return nil
}

// flexDate accepts an ISO string or a jackson style [y,m,d(,h,m,s)] array.
// Arrays are rendered as ISO dates, or date-times when they carry a time part.
type flexDate string

func (f *flexDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexDate(strings.TrimSpace(s))
		return nil
	}
	var parts []int
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.Errorf("invalid date %s", data)
	}
	switch {
	case len(parts) >= 5:
		sec := 0
		if len(parts) >= 6 {
			sec = parts[5]
		}
		*f = flexDate(fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", parts[0], parts[1], parts[2], parts[3], parts[4], sec))
	case len(parts) >= 3:
		*f = flexDate(fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2]))
	default:
		return errors.Errorf("invalid date %s", data)
	}
	return nil
}
