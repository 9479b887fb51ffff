// Package feed builds the home feed: source selection, interest ordering,
// date-window filtering, title search and the secondary sort.
// Everything here is pure, no I/O and no stored state.
package feed

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dorominseok/festival-pj/app/models"
)

// View selects the date window
type View string

// enum of views
const (
	ViewOngoing View = "ongoing" // not concluded yet, diff <= 0
	ViewEnded   View = "ended"   // ended within the last EndedWindowDays days
)

// Sort selects the ordering
type Sort string

// enum of sort modes
const (
	SortDefault     Sort = "default"
	SortNearby      Sort = "nearby"
	SortRating      Sort = "rating"
	SortRecommended Sort = "recommended"
)

// DefaultEndedWindowDays is how far back the ended view reaches
const DefaultEndedWindowDays = 7

// Request holds everything Compose needs
type Request struct {
	Festivals   []models.Festival
	Recommended []models.Festival // nil when not supplied
	Search      string
	View        View
	Sort        Sort
	Interests   []string
	Now         time.Time
	Origin      Point // zero value means DefaultOrigin
	EndedWindow int   // days, zero means DefaultEndedWindowDays
}

// ParseView maps user input to a View, anything unknown is ongoing
func ParseView(s string) View {
	if View(strings.ToLower(strings.TrimSpace(s))) == ViewEnded {
		return ViewEnded
	}
	return ViewOngoing
}

// ParseSort maps user input to a Sort, anything unknown is default
func ParseSort(s string) Sort {
	switch v := Sort(strings.ToLower(strings.TrimSpace(s))); v {
	case SortNearby, SortRating, SortRecommended:
		return v
	}
	return SortDefault
}

// Compose returns the ordered list to display. It never fails and never mutates req.
func Compose(req Request) []models.Festival {
	source := req.Festivals
	if req.Sort == SortRecommended && req.Recommended != nil {
		source = req.Recommended
	}

	if req.Sort == SortRecommended && len(req.Interests) > 0 {
		source = partitionByInterest(source, req.Interests)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	window := req.EndedWindow
	if window <= 0 {
		window = DefaultEndedWindowDays
	}
	// outer spaces are not part of the query, inner ones are
	search := strings.ToLower(strings.TrimSpace(req.Search))

	res := make([]models.Festival, 0, len(source))
	for _, f := range source {
		diff, ok := DaysSinceEnd(f.EndDate, now)
		if !ok {
			continue
		}
		if req.View == ViewEnded {
			if diff <= 0 || diff > window {
				continue
			}
		} else if diff > 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(f.Title), search) {
			continue
		}
		res = append(res, f)
	}

	switch req.Sort {
	case SortNearby:
		origin := req.Origin
		if origin.IsZero() {
			origin = DefaultOrigin
		}
		type ranked struct {
			f    models.Festival
			dist float64
		}
		rr := make([]ranked, len(res))
		for i, f := range res {
			rr[i] = ranked{f: f, dist: distanceTo(origin, f)}
		}
		sort.SliceStable(rr, func(a, b int) bool { return rr[a].dist < rr[b].dist })
		for i := range rr {
			res[i] = rr[i].f
		}
	case SortRating:
		sort.SliceStable(res, func(a, b int) bool { return res[a].Rating() > res[b].Rating() })
	}
	return res
}

// DaysSinceEnd returns whole calendar days from the end date to now's date,
// positive once the festival has ended. ok is false for unparseable dates.
func DaysSinceEnd(endDate string, now time.Time) (diff int, ok bool) {
	end, ok := parseDate(endDate)
	if !ok {
		return 0, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(today.Sub(end).Hours() / 24)), true
}

// MatchesInterests reports whether any festival category is one of interests,
// compared trimmed and case-insensitive
func MatchesInterests(f models.Festival, interests []string) bool {
	for _, c := range f.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		for _, i := range interests {
			if strings.ToLower(strings.TrimSpace(i)) == c {
				return true
			}
		}
	}
	return false
}

// partitionByInterest is a stable partition, matched festivals first
func partitionByInterest(list []models.Festival, interests []string) []models.Festival {
	matched := make([]models.Festival, 0, len(list))
	var rest []models.Festival
	for _, f := range list {
		if MatchesInterests(f, interests) {
			matched = append(matched, f)
			continue
		}
		rest = append(rest, f)
	}
	return append(matched, rest...)
}

// distanceTo is +Inf for festivals without coordinates so they sort last
func distanceTo(origin Point, f models.Festival) float64 {
	if !f.HasCoords() {
		return math.Inf(1)
	}
	return Distance(origin, Point{Lat: *f.Lat, Lng: *f.Lng})
}

// parseDate reads the calendar date part of an ISO date or date-time, timezone ignored
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
